package chunker

import "strings"

// separators tried in order by the fallback splitter, coarsest first.
var separators = []string{"\n\n", "\n", " "}

// splitRecursive breaks oversized text into parts of at most targetTokens,
// trying progressively finer separators and carrying overlapTokens of
// trailing context into each following part. Used only for single sections
// that exceed the max budget (oversized tables, code blocks, paragraphs).
func splitRecursive(text string, targetTokens, overlapTokens int) []string {
	if EstimateTokens(text) <= targetTokens {
		return []string{text}
	}
	return splitWithSeparators(text, targetTokens, overlapTokens, 0)
}

func splitWithSeparators(text string, targetTokens, overlapTokens, sepIdx int) []string {
	if sepIdx >= len(separators) {
		return splitHard(text, targetTokens)
	}

	sep := separators[sepIdx]
	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return splitWithSeparators(text, targetTokens, overlapTokens, sepIdx+1)
	}

	var result []string
	var current strings.Builder
	currentTokens := 0

	flush := func() {
		if currentTokens == 0 {
			return
		}
		result = append(result, current.String())
		overlap := overlapText(current.String(), overlapTokens)
		current.Reset()
		currentTokens = 0
		if overlap != "" {
			current.WriteString(overlap)
			currentTokens = EstimateTokens(overlap)
		}
	}

	for _, part := range parts {
		partTokens := EstimateTokens(part)

		// A single part beyond the target splits at the next separator level.
		if partTokens > targetTokens {
			flush()
			if current.Len() > 0 {
				result = append(result, current.String())
				current.Reset()
				currentTokens = 0
			}
			result = append(result, splitWithSeparators(part, targetTokens, overlapTokens, sepIdx+1)...)
			continue
		}

		if currentTokens+partTokens > targetTokens && currentTokens > 0 {
			flush()
		}

		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(part)
		currentTokens = EstimateTokens(current.String())
	}

	if current.Len() > 0 && strings.TrimSpace(current.String()) != "" {
		result = append(result, current.String())
	}

	return result
}

// splitHard cuts text at fixed character offsets when no separator applies.
func splitHard(text string, targetTokens int) []string {
	size := targetTokens * charsPerToken
	if size <= 0 {
		return []string{text}
	}
	var parts []string
	for len(text) > size {
		parts = append(parts, text[:size])
		text = text[size:]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

// overlapText returns the last overlapTokens worth of text at a word
// boundary, empty when the text is too short to matter.
func overlapText(text string, overlapTokens int) string {
	if overlapTokens <= 0 {
		return ""
	}
	size := overlapTokens * charsPerToken
	if len(text) <= size {
		return ""
	}
	tail := text[len(text)-size:]
	if idx := strings.IndexByte(tail, ' '); idx >= 0 && idx+1 < len(tail) {
		tail = tail[idx+1:]
	}
	return tail
}
