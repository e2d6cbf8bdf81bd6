// Package chunker splits a parsed document into content-preserving, typed
// chunks, respecting structural boundaries: tables and code blocks stay
// whole, lists split at item boundaries, prose accumulates under its
// heading.
package chunker

import (
	"strings"

	"github.com/quarry-ai/quarry/internal/domain"
)

// Options are the chunking token budgets.
type Options struct {
	TargetTokens  int // flush threshold for accumulated prose
	MaxTokens     int // hard bound above which even atomic sections split
	OverlapTokens int // trailing context carried into fallback splits
}

// DefaultOptions returns the standard budgets.
func DefaultOptions() Options {
	return Options{TargetTokens: 400, MaxTokens: 1024, OverlapTokens: 50}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TargetTokens <= 0 {
		o.TargetTokens = d.TargetTokens
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = d.MaxTokens
	}
	if o.OverlapTokens <= 0 {
		o.OverlapTokens = d.OverlapTokens
	}
	return o
}

// Chunk splits a structured document into ordered chunks. Deterministic:
// the same document and options always produce the identical sequence.
// Chunk indices are assigned globally, in document order, after all
// heading groups are chunked.
func Chunk(doc domain.StructuredDocument, opts Options) []domain.Chunk {
	opts = opts.withDefaults()

	c := &chunkerState{opts: opts}

	for _, group := range groupByHeading(doc) {
		c.chunkGroup(group)
	}
	c.flushBuffer()

	// Global index assignment and char-offset bookkeeping happen only once
	// every group has been chunked.
	cursor := 0
	for i := range c.chunks {
		c.chunks[i].ChunkIndex = i
		c.chunks[i].StartChar = cursor
		cursor += len(c.chunks[i].Content)
		c.chunks[i].EndChar = cursor
	}

	return c.chunks
}

// headingGroup is a run of sections under one heading.
type headingGroup struct {
	title    string
	sections []domain.Section
}

// groupByHeading partitions sections into heading-delimited groups. Content
// before the first heading forms a group with an empty title.
func groupByHeading(doc domain.StructuredDocument) []headingGroup {
	var groups []headingGroup
	current := headingGroup{}

	for _, sec := range doc.Sections {
		if sec.Type == domain.SectionHeading {
			if len(current.sections) > 0 {
				groups = append(groups, current)
			}
			current = headingGroup{title: sec.Content}
			continue
		}
		current.sections = append(current.sections, sec)
	}
	if len(current.sections) > 0 {
		groups = append(groups, current)
	}

	return groups
}

type chunkerState struct {
	opts   Options
	chunks []domain.Chunk

	// prose accumulation buffer, local to the current heading group
	buf      strings.Builder
	bufTitle string
	bufType  domain.SectionType
}

// chunkGroup applies the per-type rules to one heading group. Chunking is
// group-local: only the running chunk slice crosses group boundaries.
func (c *chunkerState) chunkGroup(g headingGroup) {
	for _, sec := range g.sections {
		switch sec.Type {
		case domain.SectionTable, domain.SectionCode:
			// Atomic: never split unless the section alone exceeds max.
			c.flushBuffer()
			c.emitAtomic(sec, g.title)

		case domain.SectionList:
			c.flushBuffer()
			c.emitList(sec, g.title)

		default: // paragraph, frontmatter
			c.accumulate(sec, g.title)
		}
	}
	c.flushBuffer()
}

func (c *chunkerState) emitAtomic(sec domain.Section, title string) {
	if EstimateTokens(sec.Content) <= c.opts.MaxTokens {
		c.emit(sec.Content, sec.Type, title)
		return
	}
	// Oversized table/code: generic splitter fallback, type tag preserved.
	for _, part := range splitRecursive(sec.Content, c.opts.TargetTokens, c.opts.OverlapTokens) {
		c.emit(part, sec.Type, title)
	}
}

func (c *chunkerState) emitList(sec domain.Section, title string) {
	if EstimateTokens(sec.Content) <= c.opts.TargetTokens {
		c.emit(sec.Content, domain.SectionList, title)
		return
	}

	// Split at item boundaries, greedily packing items until the next one
	// would exceed the target.
	items := strings.Split(sec.Content, "\n")
	var buf strings.Builder

	for _, item := range items {
		itemTokens := EstimateTokens(item)
		if buf.Len() > 0 && EstimateTokens(buf.String())+itemTokens > c.opts.TargetTokens {
			c.emit(buf.String(), domain.SectionList, title)
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(item)
	}
	if buf.Len() > 0 {
		c.emit(buf.String(), domain.SectionList, title)
	}
}

func (c *chunkerState) accumulate(sec domain.Section, title string) {
	secTokens := EstimateTokens(sec.Content)

	// A single oversized paragraph goes through the fallback splitter.
	if secTokens > c.opts.MaxTokens {
		c.flushBuffer()
		for _, part := range splitRecursive(sec.Content, c.opts.TargetTokens, c.opts.OverlapTokens) {
			c.emit(part, sec.Type, title)
		}
		return
	}

	if c.buf.Len() > 0 && EstimateTokens(c.buf.String())+secTokens > c.opts.TargetTokens {
		c.flushBuffer()
	}

	if c.buf.Len() > 0 {
		c.buf.WriteString("\n\n")
	} else {
		c.bufTitle = title
		c.bufType = sec.Type
	}
	c.buf.WriteString(sec.Content)
}

func (c *chunkerState) flushBuffer() {
	if c.buf.Len() == 0 {
		return
	}
	c.emit(c.buf.String(), c.bufType, c.bufTitle)
	c.buf.Reset()
}

func (c *chunkerState) emit(content string, t domain.SectionType, title string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	c.chunks = append(c.chunks, domain.Chunk{
		Content:      content,
		ChunkType:    t,
		SectionTitle: title,
	})
}
