package agents

import (
	"context"
	"fmt"

	"github.com/quorasec/conclave/pkg/config"
	"github.com/quorasec/conclave/pkg/llms"
	"github.com/quorasec/conclave/pkg/prompts"
	"github.com/quorasec/conclave/pkg/schema"
)

// Challenger IDs, which double as panel positions: every critique round
// appends exactly one critique per ID in this order.
const (
	ChallengerIDA = "challenger_a"
	ChallengerIDB = "challenger_b"
	ChallengerIDC = "challenger_c"
)

// Critic produces one critique of the current synthesized draft. Critics
// never fail the run; errors degrade to conservative critiques.
type Critic interface {
	ID() string
	Critique(ctx context.Context, state *schema.State) schema.Critique
}

// missingDraftCritique is the shared verdict when a challenger is invoked
// without a synthesized draft to review.
func missingDraftCritique(id, issue string) schema.Critique {
	return schema.Critique{
		ChallengerID:   id,
		IsValid:        false,
		Issues:         []string{issue},
		Confidence:     1.0,
		Recommendation: schema.RecommendationReject,
	}
}

// errorCritique is the shared verdict when a challenger's model call or
// parse fails: invalid, zero confidence, flagged for review.
func errorCritique(id, label string, err error) schema.Critique {
	return schema.Critique{
		ChallengerID:   id,
		IsValid:        false,
		Issues:         []string{fmt.Sprintf("Error during %s check: %v", label, err)},
		Confidence:     0.0,
		Recommendation: schema.RecommendationNeedsReview,
	}
}

// llmCritique runs one challenger prompt and parses the verdict.
func (d *Deps) llmCritique(ctx context.Context, id string, spec config.ModelSpec, revision int, prompt, errLabel string) schema.Critique {
	label, response, err := d.invoke(ctx, llms.CreateRequest{
		Spec:        spec,
		Fallback:    spec.DeclaredFallback(),
		Temperature: d.Config.Models.ChallengerTemperature,
		Context:     id,
	}, id, "challenger", revision, prompt)
	if err != nil {
		return errorCritique(id, errLabel, err)
	}

	critique, err := schema.ParseCritique(id, response)
	if err != nil {
		d.Recorder.Record(id, "challenger", label, revision, "", fmt.Sprintf("PARSE ERROR: %v", err),
			map[string]string{"error": err.Error()})
		return errorCritique(id, errLabel, err)
	}
	return critique
}

// ChallengerA scrutinises the draft's internal logic: do the evidence and
// arguments actually support the frequency and impact scores.
type ChallengerA struct {
	deps *Deps
}

func NewChallengerA(deps *Deps) *ChallengerA { return &ChallengerA{deps: deps} }

func (c *ChallengerA) ID() string { return ChallengerIDA }

func (c *ChallengerA) Critique(ctx context.Context, state *schema.State) schema.Critique {
	if state.SynthesizedDraft == nil {
		return missingDraftCritique(ChallengerIDA, "No synthesized draft available for review")
	}
	prompt := prompts.ChallengerA(*state.SynthesizedDraft)
	return c.deps.llmCritique(ctx, ChallengerIDA, c.deps.Config.Models.ChallengerA, state.RevisionCount, prompt, "logic")
}

// ChallengerC validates the draft against regulatory and compliance
// requirements.
type ChallengerC struct {
	deps *Deps
}

func NewChallengerC(deps *Deps) *ChallengerC { return &ChallengerC{deps: deps} }

func (c *ChallengerC) ID() string { return ChallengerIDC }

func (c *ChallengerC) Critique(ctx context.Context, state *schema.State) schema.Critique {
	if state.SynthesizedDraft == nil {
		return missingDraftCritique(ChallengerIDC, "No synthesized draft available for review")
	}
	refs := c.deps.referenceSources(ctx, state.RiskInput)
	prompt := prompts.ChallengerC(*state.SynthesizedDraft, refs)
	return c.deps.llmCritique(ctx, ChallengerIDC, c.deps.Config.Models.ChallengerC, state.RevisionCount, prompt, "compliance")
}
