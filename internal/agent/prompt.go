package agent

import (
	"fmt"
	"strings"

	"github.com/docent-ai/docent/internal/evidence"
	"github.com/docent-ai/docent/internal/session"
)

// CannotAnswer is the canonical reply when the gathered evidence does
// not support an answer.
const CannotAnswer = "I cannot answer."

const answerSystemPrompt = "You answer questions strictly from the provided " +
	"context passages. Quote or closely paraphrase the passages that support " +
	"each claim. If the context does not contain the answer, reply exactly: " +
	CannotAnswer

func answerUserPrompt(query, evidenceBlock string) string {
	var b strings.Builder
	b.WriteString("Context:\n\n")
	b.WriteString(evidenceBlock)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	b.WriteString("\n\nAnswer using only the context above.")
	return b.String()
}

// evidenceBlock renders an evidence set and any relevant prior turns
// into the context passed to the answer model. Passages appear in
// score order, each under its chunk key, with a footer listing the
// keys the model may reference.
func evidenceBlock(ev evidence.Set, prior []session.ContextEntry) string {
	var b strings.Builder
	for _, p := range prior {
		fmt.Fprintf(&b, "Previously answered (%s): %s\n\n", p.Query, p.Summary)
	}
	for _, c := range ev.Chunks {
		fmt.Fprintf(&b, "%s (score %.2f): %s\n\n", c.Chunk.ID, c.Score, c.Chunk.Text)
	}
	fmt.Fprintf(&b, "Valid Keys: %s", strings.Join(ev.IDs(), ", "))
	return b.String()
}
