package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quorasec/conclave/pkg/llms"
	"github.com/quorasec/conclave/pkg/prompts"
	"github.com/quorasec/conclave/pkg/schema"
)

// Aggregator synthesizes the council drafts into one assessment, or, on
// revision rounds, rewrites the previous synthesis against the latest
// critique round. On any failure the first council draft is carried
// through so a synthesized draft always exists.
type Aggregator struct {
	deps *Deps
}

func NewAggregator(deps *Deps) *Aggregator {
	return &Aggregator{deps: deps}
}

func (a *Aggregator) Name() string { return "aggregator" }

func (a *Aggregator) Run(ctx context.Context, state *schema.State) (*schema.State, error) {
	if len(state.DraftAssessments) == 0 {
		return nil, fmt.Errorf("aggregator: no draft assessments to synthesize")
	}

	revising := state.RevisionCount > 0 && state.SynthesizedDraft != nil && len(state.Critiques) > 0

	var prompt string
	if revising {
		prompt = prompts.AggregatorRevision(*state.SynthesizedDraft, state.LastRound())
	} else {
		prompt = prompts.AggregatorInitial(state.RiskInput, state.DraftAssessments)
	}

	label, response, err := a.deps.invoke(ctx, llms.CreateRequest{
		Spec:        a.deps.Config.Models.Aggregator,
		Fallback:    slotFallback(a.deps.Config.Models.Aggregator),
		Temperature: a.deps.Config.Models.AggregatorTemperature,
		Context:     "aggregator",
	}, "aggregator", "aggregator", state.RevisionCount, prompt)

	out := state.Clone()
	if err != nil {
		return a.carryFirstDraft(out, err), nil
	}

	draft, err := schema.ParseAssessment(label, response)
	if err != nil {
		return a.carryFirstDraft(out, err), nil
	}

	out.SynthesizedDraft = &draft
	return out, nil
}

// carryFirstDraft degrades to the first council draft when synthesis
// fails outright.
func (a *Aggregator) carryFirstDraft(state *schema.State, cause error) *schema.State {
	slog.Warn("aggregation failed, carrying first draft", "error", cause)
	first := state.DraftAssessments[0]
	if first.Breakdown != nil {
		bd := *first.Breakdown
		first.Breakdown = &bd
	}
	state.SynthesizedDraft = &first
	return state
}
