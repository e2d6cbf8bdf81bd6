package docparse

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/quarry-ai/quarry/internal/domain"
)

// parseMarkdown walks the goldmark AST and emits one typed section per
// top-level block, tracking the nearest enclosing heading.
func parseMarkdown(filename string, src []byte) (domain.StructuredDocument, error) {
	doc := domain.StructuredDocument{Title: docTitle(filename)}

	front, rest := splitFrontmatter(src)
	position := 0
	if front != "" {
		doc.Sections = append(doc.Sections, domain.Section{
			Type:     domain.SectionFrontmatter,
			Content:  front,
			Position: position,
		})
		position++
	}

	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	root := md.Parser().Parse(text.NewReader(rest))

	var currentHeading string

	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		sec, ok := blockToSection(n, rest)
		if !ok {
			continue
		}
		sec.ParentHeading = currentHeading
		sec.Position = position
		position++

		if sec.Type == domain.SectionHeading {
			currentHeading = sec.Content
		}

		doc.Sections = append(doc.Sections, sec)
	}

	if len(doc.Sections) == 0 {
		return doc, fmt.Errorf("markdown document %s has no content", filename)
	}
	return doc, nil
}

func blockToSection(n ast.Node, src []byte) (domain.Section, bool) {
	switch node := n.(type) {
	case *ast.Heading:
		return domain.Section{
			Type:    domain.SectionHeading,
			Content: string(node.Text(src)),
			Level:   node.Level,
		}, true

	case *ast.FencedCodeBlock:
		var lang string
		if node.Info != nil {
			lang = string(node.Info.Text(src))
		}
		return domain.Section{
			Type:     domain.SectionCode,
			Content:  blockLines(node, src),
			Language: lang,
		}, true

	case *ast.CodeBlock:
		return domain.Section{
			Type:    domain.SectionCode,
			Content: blockLines(node, src),
		}, true

	case *east.Table:
		return domain.Section{
			Type:    domain.SectionTable,
			Content: spanText(node, src),
		}, true

	case *ast.List:
		content := listItems(node, src)
		if content == "" {
			return domain.Section{}, false
		}
		return domain.Section{
			Type:    domain.SectionList,
			Content: content,
		}, true

	case *ast.ThematicBreak:
		return domain.Section{}, false

	default:
		content := inlineText(n, src)
		if content == "" {
			return domain.Section{}, false
		}
		return domain.Section{
			Type:    domain.SectionParagraph,
			Content: content,
		}, true
	}
}

// blockLines returns the raw source lines of a block node.
func blockLines(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(src))
	}
	return strings.TrimRight(buf.String(), "\n")
}

// spanText slices the source between the first and last segment a node's
// subtree covers. Tables carry their content in cell segments, not Lines().
func spanText(n ast.Node, src []byte) string {
	start, stop := -1, -1

	var visit func(ast.Node)
	visit = func(node ast.Node) {
		if node.Type() == ast.TypeBlock {
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				if start == -1 || seg.Start < start {
					start = seg.Start
				}
				if seg.Stop > stop {
					stop = seg.Stop
				}
			}
		}
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			visit(c)
		}
	}
	visit(n)

	if start == -1 || stop <= start {
		return ""
	}
	// Extend to full source lines so pipes and separators survive.
	for start > 0 && src[start-1] != '\n' {
		start--
	}
	for stop < len(src) && src[stop] != '\n' {
		stop++
	}
	return strings.TrimSpace(string(src[start:stop]))
}

// listItems flattens a list into one line per item, preserving item
// boundaries so the chunker can split between them.
func listItems(list *ast.List, src []byte) string {
	var items []string
	marker := "- "

	i := 1
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		if list.IsOrdered() {
			marker = fmt.Sprintf("%d. ", i)
			i++
		}
		if t := inlineText(item, src); t != "" {
			items = append(items, marker+t)
		}
	}
	return strings.Join(items, "\n")
}

// inlineText extracts the readable text content of a node's subtree.
func inlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer

	var visit func(ast.Node)
	visit = func(node ast.Node) {
		if t, ok := node.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte(' ')
			}
			return
		}
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			visit(c)
		}
	}
	visit(n)

	return strings.TrimSpace(buf.String())
}

// splitFrontmatter strips a leading YAML frontmatter block, returning it and
// the remaining source.
func splitFrontmatter(src []byte) (string, []byte) {
	if !bytes.HasPrefix(src, []byte("---\n")) {
		return "", src
	}
	rest := src[4:]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return "", src
	}
	front := strings.TrimSpace(string(rest[:end]))
	remainder := rest[end+4:]
	if len(remainder) > 0 && remainder[0] == '\n' {
		remainder = remainder[1:]
	}
	return front, remainder
}
