// Package docparse turns raw document bytes into an ordered sequence of
// typed structural sections, the input shape the chunker works on.
package docparse

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/quarry-ai/quarry/internal/domain"
)

// Parse dispatches on the filename extension and returns the document's
// structural skeleton.
func Parse(filename string, data []byte) (domain.StructuredDocument, error) {
	switch FileType(filename) {
	case "md":
		return parseMarkdown(filename, data)
	case "txt":
		return parseText(filename, data), nil
	case "pdf":
		return parsePDF(filename, data)
	default:
		return domain.StructuredDocument{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedFileType, filename)
	}
}

// FileType normalizes a filename into its retrieval file-type tag.
func FileType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".markdown":
		return "md"
	case ".txt", ".text", "":
		return "txt"
	case ".pdf":
		return "pdf"
	default:
		return ""
	}
}

func docTitle(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
