package docparse

import (
	"bytes"
	"fmt"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/quarry-ai/quarry/internal/domain"
)

// parsePDF extracts plain text page by page. Each page becomes a heading
// section followed by its paragraphs, so page boundaries survive chunking
// as section titles.
func parsePDF(filename string, data []byte) (domain.StructuredDocument, error) {
	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.StructuredDocument{}, fmt.Errorf("open pdf: %w", err)
	}

	doc := domain.StructuredDocument{Title: docTitle(filename)}
	position := 0

	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip unreadable pages rather than failing the document.
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		heading := fmt.Sprintf("Page %d", pageNum)
		doc.Sections = append(doc.Sections, domain.Section{
			Type:     domain.SectionHeading,
			Content:  heading,
			Level:    1,
			Position: position,
		})
		position++

		for _, para := range strings.Split(text, "\n\n") {
			para = strings.TrimSpace(para)
			if para == "" {
				continue
			}
			doc.Sections = append(doc.Sections, domain.Section{
				Type:          domain.SectionParagraph,
				Content:       para,
				ParentHeading: heading,
				Position:      position,
			})
			position++
		}
	}

	if len(doc.Sections) == 0 {
		return doc, fmt.Errorf("pdf %s contains no extractable text", filename)
	}
	return doc, nil
}
