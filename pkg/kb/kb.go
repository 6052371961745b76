// Package kb provides reference sources for assessment prompts using a
// hybrid approach: an optional embedded vector store retrieves passages
// relevant to the scenario, and a hardcoded baseline corpus is always
// appended as a floor.
package kb

import (
	"context"
	"log/slog"
	"strings"
)

// Passage is one retrieved reference snippet.
type Passage struct {
	ID         string  `json:"id"`
	Content    string  `json:"content"`
	Similarity float32 `json:"similarity"`
}

// KB is the retrieval capability.
type KB interface {
	Retrieve(ctx context.Context, topic string, topK int) ([]Passage, error)
}

// ReferenceSources builds the reference block for prompts. Retrieved
// passages (when a KB is configured and the lookup succeeds) are
// prepended to the baseline; retrieval failures degrade to baseline-only.
func ReferenceSources(ctx context.Context, store KB, topic string, topK int) string {
	if store == nil || topic == "" {
		return Baseline()
	}

	passages, err := store.Retrieve(ctx, topic, topK)
	if err != nil {
		slog.Warn("knowledge base retrieval failed, using baseline only", "error", err)
		return Baseline()
	}
	if len(passages) == 0 {
		return Baseline()
	}

	var b strings.Builder
	b.WriteString("=== RETRIEVED CONTEXT (knowledge base) ===\n\n")
	for _, p := range passages {
		b.WriteString(p.Content)
		b.WriteString("\n\n")
	}
	b.WriteString(Baseline())
	return b.String()
}
