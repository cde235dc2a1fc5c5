package retrieval

import (
	"fmt"
	"strings"
)

// answerSystemPrompt instructs the model to answer from retrieved context
// only. Used when citations are disabled.
const answerSystemPrompt = `You are a knowledgeable assistant answering questions
from a private knowledge base. Use only the search results provided below to
answer. If the results do not contain the answer, say so plainly instead of
guessing. Do not mention the search results mechanism to the user.`

// citationsSystemPrompt additionally requires inline citations referencing
// result numbers.
const citationsSystemPrompt = `You are a knowledgeable assistant answering questions
from a private knowledge base. Use only the search results provided below to
answer. Every claim taken from a result must carry an inline citation in the
form [[N]], using double square brackets, where N is the result number it came
from. Never use single brackets. If the results do not
contain the answer, say so plainly instead of guessing. Do not mention the
search results mechanism to the user.`

// rewriteSystemPrompt turns a conversational follow-up into a standalone
// search query.
const rewriteSystemPrompt = `Rewrite the user's latest message as a standalone
search query. Resolve pronouns and references using the conversation history.
Keep the user's intent and language. Return only the rewritten query with no
explanation or punctuation around it.`

// formatResults renders retrieval results in the fixed prompt layout.
// Result numbering starts at 1 so citations stay human-readable.
func formatResults(results []Result) string {
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "Result %d: %s\n\n", i+1, r.Text)
	}
	return sb.String()
}

// systemPrompt assembles the final system prompt. A client-supplied prompt
// is appended after the built-in instructions, never replacing them.
func systemPrompt(citations bool, clientPrompt string) string {
	base := answerSystemPrompt
	if citations {
		base = citationsSystemPrompt
	}
	if clientPrompt == "" {
		return base
	}
	return base + "\n\n" + clientPrompt
}

// hydratedText is the document representation handed to the reranker: memo
// title and summary give the judge context beyond the bare chunk.
func hydratedText(title, summary, chunk string) string {
	return fmt.Sprintf("Title: %s\n\nFull content summary: %s\n\nChunk content: %s", title, summary, chunk)
}
