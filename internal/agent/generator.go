package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docent-ai/docent/internal/engine"
)

// ErrGenerationFailed wraps any failure of the answer model. A turn
// that hits it leaves no trace in the session.
var ErrGenerationFailed = errors.New("answer generation failed")

// Generator produces an answer from a question and an evidence block.
type Generator interface {
	Generate(ctx context.Context, query, evidenceBlock string) (string, error)
}

// EngineGenerator runs generation through an inference engine.
type EngineGenerator struct {
	engine engine.Engine
	model  string
}

// NewEngineGenerator returns a Generator backed by the given engine
// and model.
func NewEngineGenerator(e engine.Engine, model string) *EngineGenerator {
	return &EngineGenerator{engine: e, model: model}
}

// Generate asks the model for a grounded answer to query using only
// the provided evidence block.
func (g *EngineGenerator) Generate(ctx context.Context, query, evidenceBlock string) (string, error) {
	messages := []engine.Message{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: answerUserPrompt(query, evidenceBlock)},
	}
	out, err := g.engine.Chat(ctx, g.model, messages, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: empty response", ErrGenerationFailed)
	}
	return out, nil
}
