package docparse

import (
	"strings"

	"github.com/quarry-ai/quarry/internal/domain"
)

// parseText splits plain text into paragraph sections on blank lines.
func parseText(filename string, data []byte) domain.StructuredDocument {
	doc := domain.StructuredDocument{Title: docTitle(filename)}

	position := 0
	for _, para := range strings.Split(string(data), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		doc.Sections = append(doc.Sections, domain.Section{
			Type:     domain.SectionParagraph,
			Content:  para,
			Position: position,
		})
		position++
	}

	return doc
}
