package agents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorasec/conclave/pkg/audit"
	"github.com/quorasec/conclave/pkg/config"
	"github.com/quorasec/conclave/pkg/llms"
	"github.com/quorasec/conclave/pkg/schema"
	"github.com/quorasec/conclave/pkg/search"
)

type scriptedProvider struct {
	family   string
	model    string
	response string
	err      error
}

func (p scriptedProvider) Invoke(ctx context.Context, prompt string) (string, error) {
	return p.response, p.err
}
func (p scriptedProvider) Family() string { return p.family }
func (p scriptedProvider) Model() string  { return p.model }

// scriptedFactory resolves every request to its requested spec and
// answers with the canned response keyed by the request context. Every
// request is captured for inspection.
type scriptedFactory struct {
	mu         sync.Mutex
	responses  map[string]string
	invokeErrs map[string]error
	createErrs map[string]error
	requests   []llms.CreateRequest
}

func (f *scriptedFactory) Create(req llms.CreateRequest) (llms.Provider, llms.Resolution, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if err := f.createErrs[req.Context]; err != nil {
		return nil, llms.Resolution{Requested: req.Spec}, err
	}
	return scriptedProvider{
		family:   req.Spec.Provider,
		model:    req.Spec.Model,
		response: f.responses[req.Context],
		err:      f.invokeErrs[req.Context],
	}, llms.Resolution{Requested: req.Spec, Actual: req.Spec}, nil
}

func (f *scriptedFactory) requestByContext(context string) (llms.CreateRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.requests {
		if req.Context == context {
			return req, true
		}
	}
	return llms.CreateRequest{}, false
}

func newTestDeps(t *testing.T, factory *scriptedFactory) *Deps {
	t.Helper()
	cfg := &config.Config{}
	cfg.SetDefaults()
	return &Deps{
		Factory:  factory,
		Recorder: audit.NewRecorder(),
		Config:   cfg,
	}
}

func assessmentJSON(freq, impact int) string {
	final := freq * impact
	return fmt.Sprintf(`{
		"risk_score": 3,
		"summary": "Default credentials expose the device to takeover.",
		"key_arguments": ["Mirai-style scanning targets default passwords"],
		"regulatory_citations": ["PSTI Act 2022"],
		"vulnerabilities": ["CVE-2024-12345"],
		"risk_breakdown": {
			"frequency_score": %d,
			"frequency_rationale": "Internet-exposed with known scanning campaigns",
			"impact_score": %d,
			"impact_rationale": "Full device takeover",
			"final_risk_score": %d,
			"classification": "%s"
		}
	}`, freq, impact, final, schema.Classify(final))
}

func critiqueJSON(isValid bool, rec string, conf float64) string {
	return fmt.Sprintf(`{"is_valid": %t, "issues": [], "confidence": %g, "recommendation": %q}`, isValid, conf, rec)
}

func draftState(freq, impact int) *schema.State {
	draft := schema.RiskAssessment{
		ModelName: "anthropic/claude-3-5-sonnet-20241022",
		RiskScore: schema.LegacyScore(freq * impact),
		Reasoning: schema.ReasoningTrace{
			Summary:             "Default credentials expose the device.",
			KeyArguments:        []string{"weak authentication"},
			RegulatoryCitations: []string{},
			Vulnerabilities:     []string{},
		},
		Breakdown: &schema.RiskBreakdown{
			FrequencyScore: freq, ImpactScore: impact,
			FinalRiskScore: freq * impact,
			Classification: schema.Classify(freq * impact),
		},
	}
	return &schema.State{
		RunID:            "run-1",
		RiskInput:        "Device X: default password, plaintext storage",
		DraftAssessments: []schema.RiskAssessment{draft},
		SynthesizedDraft: &draft,
		Critiques:        []schema.Critique{},
	}
}

func TestGeneratorEnsemblePreservesCouncilOrder(t *testing.T) {
	factory := &scriptedFactory{
		responses: map[string]string{
			"generator[0]": assessmentJSON(4, 4),
			"generator[2]": assessmentJSON(2, 3),
		},
		invokeErrs: map[string]error{
			"generator[1]": errors.New("rate limited"),
		},
	}
	deps := newTestDeps(t, factory)
	deps.Config.Models.Generators = []config.ModelSpec{
		{Provider: "openai", Model: "gpt-4o"},
		{Provider: "anthropic", Model: "claude-3-opus-20240229"},
		{Provider: "google", Model: "gemini-1.5-pro"},
	}

	out, err := NewGeneratorEnsemble(deps).Run(context.Background(), &schema.State{RiskInput: "smart lock"})
	require.NoError(t, err)
	require.Len(t, out.DraftAssessments, 3)

	assert.Equal(t, "openai/gpt-4o", out.DraftAssessments[0].ModelName)
	assert.Equal(t, 16, out.DraftAssessments[0].Breakdown.FinalRiskScore)

	assert.Equal(t, "anthropic/claude-3-opus-20240229 [ERROR]", out.DraftAssessments[1].ModelName)
	assert.Equal(t, 3, out.DraftAssessments[1].RiskScore)
	assert.Contains(t, out.DraftAssessments[1].Reasoning.Summary, "rate limited")

	assert.Equal(t, "google/gemini-1.5-pro", out.DraftAssessments[2].ModelName)
	assert.Equal(t, 3, deps.Recorder.Len(), "every council call is recorded, failures included")
}

func TestGeneratorEnsembleThreadsDeclaredFallback(t *testing.T) {
	factory := &scriptedFactory{responses: map[string]string{
		"generator[0]": assessmentJSON(3, 3),
		"generator[1]": assessmentJSON(3, 4),
	}}
	deps := newTestDeps(t, factory)
	deps.Config.Models.Generators = []config.ModelSpec{
		{Provider: "openai", Model: "gpt-4o"},
		{Provider: "anthropic", Model: "claude-3-opus-20240229", FallbackProvider: "google", FallbackModel: "gemini-1.5-pro"},
	}

	_, err := NewGeneratorEnsemble(deps).Run(context.Background(), &schema.State{RiskInput: "smart lock"})
	require.NoError(t, err)

	req, ok := factory.requestByContext("generator[1]")
	require.True(t, ok)
	require.NotNil(t, req.Fallback)
	assert.Equal(t, "google/gemini-1.5-pro", req.Fallback.Label())

	req, ok = factory.requestByContext("generator[0]")
	require.True(t, ok)
	assert.Nil(t, req.Fallback, "slot declares no fallback of its own")
}

func TestGeneratorEnsembleUnparseableResponse(t *testing.T) {
	factory := &scriptedFactory{responses: map[string]string{"generator[0]": "I cannot help with that."}}
	deps := newTestDeps(t, factory)
	deps.Config.Models.Generators = []config.ModelSpec{{Provider: "openai", Model: "gpt-4o"}}

	out, err := NewGeneratorEnsemble(deps).Run(context.Background(), &schema.State{RiskInput: "camera"})
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o [ERROR]", out.DraftAssessments[0].ModelName)
}

func TestAggregatorInitialSynthesis(t *testing.T) {
	factory := &scriptedFactory{responses: map[string]string{"aggregator": assessmentJSON(4, 4)}}
	deps := newTestDeps(t, factory)

	state := draftState(3, 3)
	out, err := NewAggregator(deps).Run(context.Background(), state)
	require.NoError(t, err)
	require.NotNil(t, out.SynthesizedDraft)
	assert.Equal(t, 16, out.SynthesizedDraft.Breakdown.FinalRiskScore)
	assert.Equal(t, schema.ClassificationHigh, out.SynthesizedDraft.Breakdown.Classification)
	assert.Equal(t, 9, state.SynthesizedDraft.Breakdown.FinalRiskScore, "input state is never mutated")
}

func TestAggregatorRepairsInconsistentBreakdown(t *testing.T) {
	// The model claims final=99 for 3x4; the invariant repairs it to 12.
	response := `{"summary": "s", "key_arguments": [], "regulatory_citations": [], "vulnerabilities": [],
		"risk_breakdown": {"frequency_score": 3, "frequency_rationale": "r", "impact_score": 4,
		"impact_rationale": "r", "final_risk_score": 99, "classification": "Low"}}`
	factory := &scriptedFactory{responses: map[string]string{"aggregator": response}}
	deps := newTestDeps(t, factory)

	out, err := NewAggregator(deps).Run(context.Background(), draftState(3, 3))
	require.NoError(t, err)
	assert.Equal(t, 12, out.SynthesizedDraft.Breakdown.FinalRiskScore)
	assert.Equal(t, schema.ClassificationHigh, out.SynthesizedDraft.Breakdown.Classification)
	assert.Equal(t, 3, out.SynthesizedDraft.RiskScore, "legacy score derived from repaired final")
}

func TestAggregatorCarriesFirstDraftOnFailure(t *testing.T) {
	factory := &scriptedFactory{invokeErrs: map[string]error{"aggregator": errors.New("timeout")}}
	deps := newTestDeps(t, factory)

	state := draftState(5, 5)
	out, err := NewAggregator(deps).Run(context.Background(), state)
	require.NoError(t, err)
	require.NotNil(t, out.SynthesizedDraft)
	assert.Equal(t, state.DraftAssessments[0].ModelName, out.SynthesizedDraft.ModelName)
	assert.Equal(t, 25, out.SynthesizedDraft.Breakdown.FinalRiskScore)
}

func TestAggregatorRevisionMode(t *testing.T) {
	factory := &scriptedFactory{responses: map[string]string{"aggregator": assessmentJSON(4, 3)}}
	deps := newTestDeps(t, factory)

	state := draftState(5, 5)
	state.RevisionCount = 1
	state.Critiques = []schema.Critique{
		{ChallengerID: ChallengerIDA, IsValid: false, Issues: []string{"scores unjustified"}, Confidence: 0.9, Recommendation: schema.RecommendationReject},
		{ChallengerID: ChallengerIDB, IsValid: true, Issues: []string{}, Confidence: 0.8, Recommendation: schema.RecommendationAccept},
		{ChallengerID: ChallengerIDC, IsValid: true, Issues: []string{}, Confidence: 0.8, Recommendation: schema.RecommendationAccept},
	}

	out, err := NewAggregator(deps).Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, 12, out.SynthesizedDraft.Breakdown.FinalRiskScore)

	records := deps.Recorder.Records()
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Prompt, "REVISING", "revision rounds use the revision prompt")
	assert.Equal(t, 1, records[0].Revision)
}

func TestChallengerAMissingDraft(t *testing.T) {
	deps := newTestDeps(t, &scriptedFactory{})
	c := NewChallengerA(deps).Critique(context.Background(), &schema.State{})
	assert.False(t, c.IsValid)
	assert.Equal(t, schema.RecommendationReject, c.Recommendation)
	assert.Equal(t, 1.0, c.Confidence)
}

func TestChallengerAErrorFallback(t *testing.T) {
	factory := &scriptedFactory{invokeErrs: map[string]error{ChallengerIDA: errors.New("unavailable")}}
	deps := newTestDeps(t, factory)

	c := NewChallengerA(deps).Critique(context.Background(), draftState(3, 3))
	assert.False(t, c.IsValid)
	assert.Equal(t, schema.RecommendationNeedsReview, c.Recommendation)
	assert.Zero(t, c.Confidence)
	require.Len(t, c.Issues, 1)
	assert.Contains(t, c.Issues[0], "logic check")
}

func TestChallengerCParsesVerdict(t *testing.T) {
	factory := &scriptedFactory{responses: map[string]string{
		ChallengerIDC: critiqueJSON(true, schema.RecommendationAccept, 0.85),
	}}
	deps := newTestDeps(t, factory)

	c := NewChallengerC(deps).Critique(context.Background(), draftState(3, 3))
	assert.Equal(t, ChallengerIDC, c.ChallengerID)
	assert.True(t, c.IsValid)
	assert.Equal(t, schema.RecommendationAccept, c.Recommendation)
	assert.InDelta(t, 0.85, c.Confidence, 1e-9)
}

// stubSearch answers every query with a hit that embeds the quoted
// citation and an official domain, so relevance scoring verifies it.
type stubSearch struct {
	err error
}

func (s stubSearch) Search(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []search.Result{{
		Title:   "Result for " + query,
		URL:     "https://www.legislation.gov.uk/ukpga/2022/46",
		Content: query,
	}}, nil
}

func TestChallengerBNoCitationsAccepts(t *testing.T) {
	deps := newTestDeps(t, &scriptedFactory{})
	deps.Search = stubSearch{}

	c := NewChallengerB(deps).Critique(context.Background(), draftState(3, 3))
	assert.True(t, c.IsValid)
	assert.Equal(t, schema.RecommendationAccept, c.Recommendation)
	assert.Equal(t, 1.0, c.Confidence)
	assert.Empty(t, c.Issues)
	assert.Zero(t, deps.Recorder.Len(), "no citations means no model call")
}

func TestChallengerBMissingDraft(t *testing.T) {
	deps := newTestDeps(t, &scriptedFactory{})
	c := NewChallengerB(deps).Critique(context.Background(), &schema.State{})
	assert.False(t, c.IsValid)
	assert.Equal(t, schema.RecommendationReject, c.Recommendation)
}

func TestChallengerBUsesModelVerdict(t *testing.T) {
	factory := &scriptedFactory{responses: map[string]string{
		ChallengerIDB: critiqueJSON(true, schema.RecommendationAccept, 0.9),
	}}
	deps := newTestDeps(t, factory)
	deps.Search = stubSearch{}

	state := draftState(3, 3)
	state.SynthesizedDraft.Reasoning.RegulatoryCitations = []string{"PSTI Act 2022"}

	c := NewChallengerB(deps).Critique(context.Background(), state)
	assert.True(t, c.IsValid)
	assert.Equal(t, schema.RecommendationAccept, c.Recommendation)
}

func TestChallengerBFallsBackToEvidenceOnModelError(t *testing.T) {
	factory := &scriptedFactory{invokeErrs: map[string]error{ChallengerIDB: errors.New("unavailable")}}
	deps := newTestDeps(t, factory)
	deps.Search = stubSearch{err: errors.New("search down")}

	state := draftState(3, 3)
	state.SynthesizedDraft.Reasoning.RegulatoryCitations = []string{"PSTI Act 2022"}
	state.SynthesizedDraft.Reasoning.Vulnerabilities = []string{"CVE-2024-12345"}

	c := NewChallengerB(deps).Critique(context.Background(), state)
	assert.False(t, c.IsValid)
	assert.Equal(t, schema.RecommendationNeedsReview, c.Recommendation)
	assert.InDelta(t, 0.5, c.Confidence, 1e-9)
	assert.Contains(t, c.Issues, "Unverified citation: PSTI Act 2022")
	assert.Contains(t, c.Issues, "Unverified citation: CVE-2024-12345")
}

func TestChallengerBEvidenceFallbackAllVerified(t *testing.T) {
	factory := &scriptedFactory{invokeErrs: map[string]error{ChallengerIDB: errors.New("unavailable")}}
	deps := newTestDeps(t, factory)
	deps.Search = stubSearch{}

	state := draftState(3, 3)
	state.SynthesizedDraft.Reasoning.RegulatoryCitations = []string{"PSTI Act 2022"}

	c := NewChallengerB(deps).Critique(context.Background(), state)
	assert.True(t, c.IsValid)
	assert.Equal(t, schema.RecommendationAccept, c.Recommendation)
	assert.InDelta(t, 0.8, c.Confidence, 1e-9)
}

func TestChallengerBExtractsCitationsFromReasoning(t *testing.T) {
	factory := &scriptedFactory{invokeErrs: map[string]error{ChallengerIDB: errors.New("unavailable")}}
	deps := newTestDeps(t, factory)
	deps.Search = stubSearch{err: errors.New("search down")}

	state := draftState(3, 3)
	state.SynthesizedDraft.Reasoning.Summary = "Exploited via CVE-2017-7927 in the wild."

	c := NewChallengerB(deps).Critique(context.Background(), state)
	assert.Contains(t, c.Issues, "Unverified citation: CVE-2017-7927")
}
