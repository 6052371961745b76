package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quorasec/conclave/pkg/llms"
	"github.com/quorasec/conclave/pkg/prompts"
	"github.com/quorasec/conclave/pkg/schema"
)

// Decision is the convergence router's verdict on a critique round.
type Decision struct {
	Route   string
	Status  string   // terminal status when Route is RouteEnd
	Reasons []string // every triggered escalation reason when Route is RouteEscalate
	Passed  int
	Total   int
}

// Decide routes the workflow from the current state. Pure: no model
// calls, no clock, no IO.
//
// Precedence: a Critical classification always escalates, ahead of
// challenger consensus; two-of-three approval ends the run; unanimous
// rejection or hitting the revision cap without consensus escalates;
// any remaining invalid or rejecting critique below the cap revises;
// everything else ends in graceful degradation.
func Decide(state *schema.State, maxRevisions int) Decision {
	round := state.LastRound()

	passed := 0
	anyBlocking := false
	allRejected := len(round) > 0
	for _, c := range round {
		if c.IsValid && c.Recommendation == schema.RecommendationAccept {
			passed++
		}
		if !c.IsValid || c.Recommendation == schema.RecommendationReject {
			anyBlocking = true
		} else {
			allRejected = false
		}
	}
	total := len(round)
	consensus := total > 0 && passed*3 >= total*2

	d := Decision{Passed: passed, Total: total}

	if draft := state.SynthesizedDraft; draft != nil && draft.Breakdown != nil &&
		draft.Breakdown.Classification == schema.ClassificationCritical {
		d.Route = schema.RouteEscalate
		d.Reasons = append(d.Reasons,
			fmt.Sprintf("Critical risk classification (%d/25) requires human validation", draft.Breakdown.FinalRiskScore))
	}

	if d.Route == "" && consensus {
		d.Route = schema.RouteEnd
		d.Status = schema.StatusApproved
		return d
	}

	if allRejected {
		d.Route = schema.RouteEscalate
		d.Reasons = append(d.Reasons,
			"All challengers rejected the assessment. Human review required to resolve conflicts.")
	}
	if state.RevisionCount >= maxRevisions && !consensus {
		d.Route = schema.RouteEscalate
		d.Reasons = append(d.Reasons,
			fmt.Sprintf("Max revisions (%d) reached without 2/3 challenger consensus. Only %d/%d challengers approved.",
				maxRevisions, passed, total))
	}
	if d.Route == schema.RouteEscalate {
		return d
	}

	if state.RevisionCount < maxRevisions && anyBlocking {
		d.Route = schema.RouteRevise
		return d
	}

	d.Route = schema.RouteEnd
	d.Status = schema.StatusDegraded
	return d
}

// Verifier evaluates the critique round and routes the workflow. The
// model is consulted for a convergence narrative recorded in the audit
// trail; the routing decision itself is deterministic.
type Verifier struct {
	deps *Deps
}

func NewVerifier(deps *Deps) *Verifier { return &Verifier{deps: deps} }

func (v *Verifier) Name() string { return "verifier" }

func (v *Verifier) Run(ctx context.Context, state *schema.State) (*schema.State, error) {
	out := state.Clone()

	if out.SynthesizedDraft != nil && len(out.Critiques) > 0 {
		prompt := prompts.Verifier(*out.SynthesizedDraft, out.LastRound())
		// Narrative only; failures leave the deterministic route untouched.
		_, _, _ = v.deps.invoke(ctx, llms.CreateRequest{
			Spec:        v.deps.Config.Models.Verifier,
			Fallback:    slotFallback(v.deps.Config.Models.Verifier),
			Temperature: v.deps.Config.Models.VerifierTemperature,
			Context:     "verifier",
		}, "verifier", "verifier", out.RevisionCount, prompt)
	}

	decision := Decide(out, v.deps.Config.Workflow.MaxRevisions)
	out.Route = decision.Route
	switch decision.Route {
	case schema.RouteRevise:
		out.RevisionCount++
	case schema.RouteEnd:
		out.Status = decision.Status
	}

	slog.Info("verifier decision",
		"route", decision.Route,
		"passed", decision.Passed,
		"total", decision.Total,
		"revision_count", out.RevisionCount)
	return out, nil
}
