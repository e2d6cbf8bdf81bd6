// Package llmjson parses JSON out of LLM completions, tolerating the
// markdown code fences models wrap their output in.
package llmjson

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/quarry-ai/quarry/internal/domain"
)

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// Strip removes a surrounding markdown code fence, if any.
func Strip(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// Unmarshal parses an LLM completion into v. Parse failures are malformed
// model output: never retried against the same prompt, always resolved by
// the caller's fail-open default.
func Unmarshal(completion string, v any) error {
	text := Strip(completion)
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("%w: %w (raw: %s)", domain.ErrMalformedModelOutput, err, truncate(text, 200))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
