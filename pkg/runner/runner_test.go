package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorasec/conclave/pkg/config"
	"github.com/quorasec/conclave/pkg/llms"
	"github.com/quorasec/conclave/pkg/schema"
)

// script holds per-role response sequences. Each call consumes the next
// response for its role; the last one repeats.
type script struct {
	mu     sync.Mutex
	byRole map[string][]string
	counts map[string]int
}

func newScript(byRole map[string][]string) *script {
	return &script{byRole: byRole, counts: map[string]int{}}
}

func (s *script) next(role string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.byRole[role]
	if len(seq) == 0 {
		return "", fmt.Errorf("no scripted response for role %q", role)
	}
	i := s.counts[role]
	s.counts[role]++
	if i >= len(seq) {
		i = len(seq) - 1
	}
	return seq[i], nil
}

// roleOf keys the script on the prompt's opening line, which is distinct
// per agent role.
func roleOf(prompt string) string {
	switch {
	case strings.HasPrefix(prompt, "You are an expert IoT risk assessor"):
		return "generator"
	case strings.HasPrefix(prompt, "You are synthesizing"),
		strings.HasPrefix(prompt, "You are REVISING"):
		return "aggregator"
	case strings.HasPrefix(prompt, "You are a formal logician"):
		return "challenger_a"
	case strings.HasPrefix(prompt, "You are a fact-checker"):
		return "challenger_b"
	case strings.HasPrefix(prompt, "You are a safety and compliance expert"):
		return "challenger_c"
	case strings.HasPrefix(prompt, "You are the final arbiter"):
		return "verifier"
	}
	return "unknown"
}

type scriptProvider struct {
	family string
	model  string
	s      *script
}

func (p scriptProvider) Invoke(ctx context.Context, prompt string) (string, error) {
	return p.s.next(roleOf(prompt))
}
func (p scriptProvider) Family() string { return p.family }
func (p scriptProvider) Model() string  { return p.model }

func allKeys() map[string]string {
	keys := map[string]string{}
	for _, p := range config.KnownProviders {
		keys[p] = "k"
	}
	return keys
}

func newScriptedRunner(t *testing.T, s *script, keys map[string]string, mutate func(*config.Config)) *Runner {
	t.Helper()
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Output.Dir = t.TempDir()
	cfg.Workflow.LogFallbackEvents = true
	if mutate != nil {
		mutate(cfg)
	}

	factory := llms.NewFactory(cfg,
		llms.WithAPIKeyLookup(func(provider string) string { return keys[provider] }),
		llms.WithBuilder(func(spec config.ModelSpec, apiKey string, temperature float64, timeout time.Duration) (llms.Provider, error) {
			return scriptProvider{family: spec.Provider, model: spec.Model, s: s}, nil
		}),
	)

	r, err := New(cfg, WithFactory(factory))
	require.NoError(t, err)
	return r
}

func assessmentJSON(freq, impact int) string {
	final := freq * impact
	return fmt.Sprintf(`{
		"summary": "Default credentials allow remote takeover.",
		"key_arguments": ["Mirai-style scanning targets default passwords"],
		"regulatory_citations": ["PSTI Act 2022"],
		"vulnerabilities": ["CVE-2024-12345"],
		"risk_breakdown": {
			"frequency_score": %d,
			"frequency_rationale": "Known scanning campaigns",
			"impact_score": %d,
			"impact_rationale": "Full device takeover",
			"final_risk_score": %d,
			"classification": "%s"
		}
	}`, freq, impact, final, schema.Classify(final))
}

const (
	acceptCritique   = `{"is_valid": true, "issues": [], "confidence": 0.9, "recommendation": "accept"}`
	rejectCritique   = `{"is_valid": false, "issues": ["scores not justified"], "confidence": 0.9, "recommendation": "reject"}`
	reviewCritique   = `{"is_valid": false, "issues": ["needs another look"], "confidence": 0.6, "recommendation": "needs_review"}`
	verdictNarrative = `{"needs_revision": false, "reason": "critiques resolved", "revision_focus": []}`
)

func TestRunHappyApproval(t *testing.T) {
	s := newScript(map[string][]string{
		"generator":    {assessmentJSON(4, 4)},
		"aggregator":   {assessmentJSON(4, 4)},
		"challenger_a": {acceptCritique},
		"challenger_b": {acceptCritique},
		"challenger_c": {acceptCritique},
		"verifier":     {verdictNarrative},
	})
	r := newScriptedRunner(t, s, allKeys(), nil)

	res, err := r.RunAssessment(context.Background(), "Device X: default password, plaintext storage")
	require.NoError(t, err)

	state := res.State
	assert.Equal(t, schema.StatusApproved, state.Status)
	assert.Equal(t, 0, state.RevisionCount)
	assert.Len(t, state.DraftAssessments, 9, "one draft per council slot")
	assert.Len(t, state.Critiques, 3)
	require.NotNil(t, state.SynthesizedDraft)
	assert.Equal(t, 16, state.SynthesizedDraft.Breakdown.FinalRiskScore)
	assert.Equal(t, schema.ClassificationHigh, state.SynthesizedDraft.Breakdown.Classification)
	assert.Nil(t, state.Escalation)

	require.NotEmpty(t, res.ArtifactPath)
	_, statErr := os.Stat(res.ArtifactPath)
	assert.NoError(t, statErr)

	// 9 generators + 1 aggregator + 3 challengers + 1 verifier.
	assert.Len(t, res.Conversation, 14)
	assert.Empty(t, res.FallbackEvents)
}

func TestRunRepairsInconsistentFinalScore(t *testing.T) {
	broken := `{"summary": "s", "key_arguments": [], "regulatory_citations": [], "vulnerabilities": [],
		"risk_breakdown": {"frequency_score": 3, "frequency_rationale": "r", "impact_score": 4,
		"impact_rationale": "r", "final_risk_score": 99, "classification": "Low"}}`
	s := newScript(map[string][]string{
		"generator":    {assessmentJSON(3, 4)},
		"aggregator":   {broken},
		"challenger_a": {acceptCritique},
		"challenger_b": {acceptCritique},
		"challenger_c": {acceptCritique},
		"verifier":     {verdictNarrative},
	})
	r := newScriptedRunner(t, s, allKeys(), nil)

	res, err := r.RunAssessment(context.Background(), "Sensor with stale firmware")
	require.NoError(t, err)

	draft := res.State.SynthesizedDraft
	require.NotNil(t, draft)
	assert.Equal(t, 12, draft.Breakdown.FinalRiskScore)
	assert.Equal(t, schema.ClassificationHigh, draft.Breakdown.Classification)
	assert.Equal(t, 3, draft.RiskScore, "legacy score tracks the repaired final score")
	assert.Equal(t, schema.StatusApproved, res.State.Status)
}

func TestRunOneRevisionThenApproval(t *testing.T) {
	s := newScript(map[string][]string{
		"generator":    {assessmentJSON(4, 4)},
		"aggregator":   {assessmentJSON(4, 4), assessmentJSON(3, 4)},
		"challenger_a": {rejectCritique, acceptCritique},
		"challenger_b": {acceptCritique, acceptCritique},
		"challenger_c": {reviewCritique, acceptCritique},
		"verifier":     {verdictNarrative},
	})
	r := newScriptedRunner(t, s, allKeys(), nil)

	res, err := r.RunAssessment(context.Background(), "Camera with open RTSP stream")
	require.NoError(t, err)

	state := res.State
	assert.Equal(t, schema.StatusApproved, state.Status)
	assert.Equal(t, 1, state.RevisionCount)
	assert.Len(t, state.Critiques, 6, "two full critique rounds")
	assert.Equal(t, 12, state.SynthesizedDraft.Breakdown.FinalRiskScore, "revised draft survives")
}

func TestRunEscalatesOnCriticalClassification(t *testing.T) {
	s := newScript(map[string][]string{
		"generator":    {assessmentJSON(5, 5)},
		"aggregator":   {assessmentJSON(5, 5)},
		"challenger_a": {acceptCritique},
		"challenger_b": {acceptCritique},
		"challenger_c": {acceptCritique},
		"verifier":     {verdictNarrative},
	})
	r := newScriptedRunner(t, s, allKeys(), nil)

	res, err := r.RunAssessment(context.Background(), "Insulin pump with unauthenticated BLE")
	require.NoError(t, err)

	state := res.State
	assert.Equal(t, schema.StatusEscalated, state.Status)
	require.NotNil(t, state.Escalation)
	assert.Equal(t, "HIGH", state.Escalation.Priority)
	require.Len(t, state.Escalation.Reasons, 1)
	assert.Equal(t, "Critical risk classification (25/25) requires human validation", state.Escalation.Reasons[0])

	require.NotEmpty(t, state.Escalation.ArtifactPath)
	raw, readErr := os.ReadFile(state.Escalation.ArtifactPath)
	require.NoError(t, readErr)
	assert.Contains(t, string(raw), "PENDING_HUMAN_REVIEW")
	assert.Contains(t, string(raw), `"priority": "HIGH"`)
}

func TestRunEscalatesAtRevisionCap(t *testing.T) {
	s := newScript(map[string][]string{
		"generator":    {assessmentJSON(4, 4)},
		"aggregator":   {assessmentJSON(4, 4)},
		"challenger_a": {rejectCritique},
		"challenger_b": {acceptCritique},
		"challenger_c": {reviewCritique},
		"verifier":     {verdictNarrative},
	})
	r := newScriptedRunner(t, s, allKeys(), nil)

	res, err := r.RunAssessment(context.Background(), "Hub with hardcoded admin account")
	require.NoError(t, err)

	state := res.State
	assert.Equal(t, schema.StatusEscalated, state.Status)
	assert.Equal(t, 3, state.RevisionCount)
	assert.Len(t, state.Critiques, 12, "four full critique rounds")
	require.NotNil(t, state.Escalation)
	assert.Equal(t, "MEDIUM", state.Escalation.Priority)
	assert.Contains(t, state.Escalation.Reasons,
		"Max revisions (3) reached without 2/3 challenger consensus. Only 1/3 challengers approved.")
}

func TestRunEscalatesOnUnanimousRejection(t *testing.T) {
	s := newScript(map[string][]string{
		"generator":    {assessmentJSON(4, 4)},
		"aggregator":   {assessmentJSON(4, 4)},
		"challenger_a": {rejectCritique},
		"challenger_b": {rejectCritique},
		"challenger_c": {rejectCritique},
		"verifier":     {verdictNarrative},
	})
	r := newScriptedRunner(t, s, allKeys(), nil)

	res, err := r.RunAssessment(context.Background(), "Tracker uploading location in cleartext")
	require.NoError(t, err)

	state := res.State
	assert.Equal(t, schema.StatusEscalated, state.Status)
	assert.Equal(t, 0, state.RevisionCount, "unanimous rejection escalates before any revision")
	assert.Contains(t, state.Escalation.Reasons,
		"All challengers rejected the assessment. Human review required to resolve conflicts.")
}

func TestRunFallbackTransparency(t *testing.T) {
	s := newScript(map[string][]string{
		"generator":    {assessmentJSON(4, 4)},
		"aggregator":   {assessmentJSON(4, 4)},
		"challenger_a": {acceptCritique},
		"challenger_b": {acceptCritique},
		"challenger_c": {acceptCritique},
		"verifier":     {verdictNarrative},
	})
	keys := map[string]string{"openai": "k", "anthropic": "k"}
	r := newScriptedRunner(t, s, keys, nil)

	res, err := r.RunAssessment(context.Background(), "Thermostat exposing debug port")
	require.NoError(t, err)

	assert.Equal(t, schema.StatusApproved, res.State.Status)
	assert.Len(t, res.State.DraftAssessments, 9, "council positions survive substitution")

	// Four council slots (google, deepseek, groq, mistral) plus the
	// google-backed compliance challenger fall back to openai.
	assert.Len(t, res.FallbackEvents, 5)
	for _, event := range res.FallbackEvents {
		assert.Equal(t, "openai", event.ActualProvider)
		assert.NotEmpty(t, event.Context)
	}

	assert.InDelta(t, 2.0/6.0, res.Heterogeneity.DiversityScore, 1e-9)
	assert.Equal(t, []string{"anthropic", "openai"}, res.Heterogeneity.ActualProviders)
}

func TestRunCancelledContext(t *testing.T) {
	s := newScript(map[string][]string{"generator": {assessmentJSON(4, 4)}})
	r := newScriptedRunner(t, s, allKeys(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := r.RunAssessment(ctx, "Doorbell with anonymous RTSP")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, res)
	assert.Equal(t, schema.StatusCancelled, res.State.Status)
	assert.NotEmpty(t, res.ArtifactPath, "cancelled runs still persist their partial record")
}

func TestRunEmptyInput(t *testing.T) {
	s := newScript(nil)
	r := newScriptedRunner(t, s, allKeys(), nil)

	_, err := r.RunAssessment(context.Background(), "   ")
	assert.Error(t, err)
}

func TestRunZeroMaxRevisionsNeverRevises(t *testing.T) {
	s := newScript(map[string][]string{
		"generator":    {assessmentJSON(4, 4)},
		"aggregator":   {assessmentJSON(4, 4)},
		"challenger_a": {rejectCritique},
		"challenger_b": {rejectCritique},
		"challenger_c": {acceptCritique},
		"verifier":     {verdictNarrative},
	})
	r := newScriptedRunner(t, s, allKeys(), func(cfg *config.Config) {
		cfg.Workflow.MaxRevisions = 0
	})

	res, err := r.RunAssessment(context.Background(), "Lock with replayable RF")
	require.NoError(t, err)

	state := res.State
	assert.Equal(t, 0, state.RevisionCount)
	assert.Len(t, state.Critiques, 3, "exactly one round at cap zero")
	assert.Equal(t, schema.StatusEscalated, state.Status)
}
