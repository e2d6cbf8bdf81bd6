package llmjson

import (
	"errors"
	"strings"
	"testing"

	"github.com/quarry-ai/quarry/internal/domain"
)

func TestStrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare json", in: `{"a": 1}`, want: `{"a": 1}`},
		{name: "json fence", in: "```json\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "plain fence", in: "```\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "surrounding whitespace", in: "  ```json\n{}\n```  ", want: "{}"},
		{name: "fence inside text untouched", in: "prefix ```json\n{}\n```", want: "prefix ```json\n{}\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Strip(tt.in); got != tt.want {
				t.Errorf("Strip = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnmarshal(t *testing.T) {
	var out struct {
		Category string `json:"category"`
	}
	if err := Unmarshal("```json\n{\"category\": \"simple\"}\n```", &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Category != "simple" {
		t.Errorf("category = %q", out.Category)
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	var out map[string]any
	err := Unmarshal("I cannot answer that.", &out)
	if !errors.Is(err, domain.ErrMalformedModelOutput) {
		t.Fatalf("err = %v, want ErrMalformedModelOutput", err)
	}
	if !strings.Contains(err.Error(), "I cannot answer") {
		t.Errorf("error should carry a raw preview: %v", err)
	}
}

func TestUnmarshalTruncatesPreview(t *testing.T) {
	var out map[string]any
	err := Unmarshal(strings.Repeat("x", 1000), &out)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(err.Error()) > 400 {
		t.Errorf("error message too long (%d chars), preview not truncated", len(err.Error()))
	}
}
