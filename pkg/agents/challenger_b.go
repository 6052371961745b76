package agents

import (
	"context"
	"fmt"

	"github.com/quorasec/conclave/pkg/citations"
	"github.com/quorasec/conclave/pkg/llms"
	"github.com/quorasec/conclave/pkg/prompts"
	"github.com/quorasec/conclave/pkg/schema"
	"github.com/quorasec/conclave/pkg/search"
)

// ChallengerB fact-checks the draft's citations. Every citation, explicit
// or extracted from the reasoning text, is verified against web search;
// the model weighs the evidence, but when it fails the verdict falls back
// to the deterministic verification results.
type ChallengerB struct {
	deps *Deps
}

func NewChallengerB(deps *Deps) *ChallengerB { return &ChallengerB{deps: deps} }

func (c *ChallengerB) ID() string { return ChallengerIDB }

func (c *ChallengerB) Critique(ctx context.Context, state *schema.State) schema.Critique {
	draft := state.SynthesizedDraft
	if draft == nil {
		return missingDraftCritique(ChallengerIDB, "No synthesized draft available for verification")
	}

	cited := c.collectCitations(draft)
	if len(cited) == 0 {
		// Nothing to verify is a pass, not a gap.
		return schema.Critique{
			ChallengerID:   ChallengerIDB,
			IsValid:        true,
			Issues:         []string{},
			Confidence:     1.0,
			Recommendation: schema.RecommendationAccept,
		}
	}

	verifications := c.verifyAll(ctx, cited)

	refs := c.deps.referenceSources(ctx, state.RiskInput)
	prompt := prompts.ChallengerB(*draft, cited, prompts.RenderSearchResults(verifications), refs)

	label, response, err := c.deps.invoke(ctx, llms.CreateRequest{
		Spec:        c.deps.Config.Models.ChallengerB,
		Fallback:    c.deps.Config.Models.ChallengerB.DeclaredFallback(),
		Temperature: c.deps.Config.Models.ChallengerTemperature,
		Context:     ChallengerIDB,
	}, ChallengerIDB, "challenger", state.RevisionCount, prompt)
	if err != nil {
		return verdictFromEvidence(verifications)
	}

	critique, err := schema.ParseCritique(ChallengerIDB, response)
	if err != nil {
		c.deps.Recorder.Record(ChallengerIDB, "challenger", label, state.RevisionCount, "",
			fmt.Sprintf("PARSE ERROR: %v", err), map[string]string{"error": err.Error()})
		return verdictFromEvidence(verifications)
	}
	return critique
}

// collectCitations unions the draft's explicit citations and
// vulnerabilities with references extracted from its reasoning text.
func (c *ChallengerB) collectCitations(draft *schema.RiskAssessment) []string {
	explicit := make([]string, 0, len(draft.Reasoning.RegulatoryCitations)+len(draft.Reasoning.Vulnerabilities))
	explicit = append(explicit, draft.Reasoning.RegulatoryCitations...)
	explicit = append(explicit, draft.Reasoning.Vulnerabilities...)

	texts := append([]string{draft.Reasoning.Summary}, draft.Reasoning.KeyArguments...)
	return citations.ExtractAll(explicit, texts...)
}

func (c *ChallengerB) verifyAll(ctx context.Context, cited []string) []search.Verification {
	verifications := make([]search.Verification, len(cited))
	for i, citation := range cited {
		if c.deps.Search == nil {
			_, citationType := search.BuildQuery(citation)
			verifications[i] = search.Verification{
				Citation: citation,
				Type:     citationType,
				URLs:     []string{},
				Error:    "search client not configured",
			}
			continue
		}
		verifications[i] = search.Verify(ctx, c.deps.Search, citation, c.deps.Config.Search.MaxResults)
	}
	return verifications
}

// verdictFromEvidence is the deterministic fallback when the model cannot
// weigh the evidence: unverified citations fail the draft at moderate
// confidence, a clean sheet passes it.
func verdictFromEvidence(verifications []search.Verification) schema.Critique {
	var issues []string
	for _, v := range verifications {
		if !v.Verified {
			issues = append(issues, fmt.Sprintf("Unverified citation: %s", v.Citation))
		}
	}
	if len(issues) > 0 {
		return schema.Critique{
			ChallengerID:   ChallengerIDB,
			IsValid:        false,
			Issues:         issues,
			Confidence:     0.5,
			Recommendation: schema.RecommendationNeedsReview,
		}
	}
	return schema.Critique{
		ChallengerID:   ChallengerIDB,
		IsValid:        true,
		Issues:         []string{},
		Confidence:     0.8,
		Recommendation: schema.RecommendationAccept,
	}
}
