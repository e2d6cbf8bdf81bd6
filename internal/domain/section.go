package domain

// SectionType tags the structural kind of a parsed document section.
type SectionType string

const (
	// SectionParagraph is prose text.
	SectionParagraph SectionType = "paragraph"
	// SectionHeading is a heading line.
	SectionHeading SectionType = "heading"
	// SectionCode is a fenced or indented code block.
	SectionCode SectionType = "code"
	// SectionTable is a table.
	SectionTable SectionType = "table"
	// SectionList is a bulleted or numbered list.
	SectionList SectionType = "list"
	// SectionFrontmatter is leading document metadata (YAML frontmatter etc).
	SectionFrontmatter SectionType = "frontmatter"
)

// Section is one structural segment of a parsed document.
// The ordered sequence of sections forms the document's skeleton.
type Section struct {
	Type          SectionType
	Content       string
	Level         int    // heading level, 0 for non-headings
	Language      string // code fence language, empty otherwise
	ParentHeading string // nearest enclosing heading text
	Position      int    // 0-based order within the document
}

// StructuredDocument is a parsed document: its sections in source order.
type StructuredDocument struct {
	Title    string
	Sections []Section
}
