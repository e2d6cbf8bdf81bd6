package answer

import (
	"fmt"
	"strings"

	"github.com/quarry-ai/quarry/internal/domain"
)

const conversationalPrompt = `You are a helpful assistant for a document question-answering system.
The user's message is about the conversation itself; answer from the dialog
context alone. Do not invent document content.`

const groundedPromptHeader = `You are a helpful assistant answering questions from the user's documents.
Use ONLY the context excerpts below. When the context does not contain the
answer, say so instead of guessing. Cite the source filename when you use
an excerpt.`

// buildSystemPrompt renders the grounded generation prompt. An empty
// context produces the conversational prompt.
func buildSystemPrompt(rag domain.RAGContext) string {
	if len(rag.Entries) == 0 {
		return conversationalPrompt
	}

	var b strings.Builder
	b.WriteString(groundedPromptHeader)
	b.WriteString("\n\nContext:\n")
	for i, e := range rag.Entries {
		fmt.Fprintf(&b, "\n[%d] %s", i+1, e.Filename)
		if e.SectionTitle != "" {
			fmt.Fprintf(&b, " / %s", e.SectionTitle)
		}
		b.WriteString("\n")
		b.WriteString(e.Content)
		b.WriteString("\n")
	}
	if rag.SynthesisInstruction != "" {
		b.WriteString("\nSynthesis instruction: ")
		b.WriteString(rag.SynthesisInstruction)
		b.WriteString("\n")
	}
	return b.String()
}
