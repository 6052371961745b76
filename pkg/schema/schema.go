// Package schema defines the value records exchanged between graph nodes:
// assessments, critiques, fallback events, conversation records, and the
// workflow state itself. Records are treated as immutable once produced;
// nodes build new values instead of mutating shared ones.
package schema

import (
	"fmt"
	"time"
)

// Risk classification labels for the 1-25 dual-factor scale.
const (
	ClassificationLow      = "Low"
	ClassificationMedium   = "Medium"
	ClassificationHigh     = "High"
	ClassificationCritical = "Critical"
)

// Critique recommendations.
const (
	RecommendationAccept      = "accept"
	RecommendationReject      = "reject"
	RecommendationNeedsReview = "needs_review"
)

// Routes out of the verifier node.
const (
	RouteRevise   = "revise"
	RouteEscalate = "escalate"
	RouteEnd      = "end"
)

// Terminal statuses of a run.
const (
	StatusApproved  = "END_APPROVED"
	StatusDegraded  = "END_DEGRADED"
	StatusEscalated = "END_ESCALATED"
	StatusCancelled = "END_CANCELLED"
)

// ReasoningTrace captures the structured reasoning behind an assessment.
type ReasoningTrace struct {
	Summary             string   `json:"summary"`
	KeyArguments        []string `json:"key_arguments"`
	RegulatoryCitations []string `json:"regulatory_citations"`
	Vulnerabilities     []string `json:"vulnerabilities"`
}

// RiskBreakdown is the dual-factor score: frequency (1-5) times
// impact (1-5) yields the final risk score (1-25).
type RiskBreakdown struct {
	FrequencyScore     int    `json:"frequency_score"`
	FrequencyRationale string `json:"frequency_rationale"`
	ImpactScore        int    `json:"impact_score"`
	ImpactRationale    string `json:"impact_rationale"`
	FinalRiskScore     int    `json:"final_risk_score"`
	Classification     string `json:"classification"`
}

// Classify maps a 1-25 final risk score to its classification band.
func Classify(finalScore int) string {
	switch {
	case finalScore <= 5:
		return ClassificationLow
	case finalScore <= 11:
		return ClassificationMedium
	case finalScore <= 19:
		return ClassificationHigh
	default:
		return ClassificationCritical
	}
}

// LegacyScore maps a 1-25 final risk score onto the legacy 1-5 scale.
func LegacyScore(finalScore int) int {
	switch {
	case finalScore <= 5:
		return 1
	case finalScore <= 10:
		return 2
	case finalScore <= 15:
		return 3
	case finalScore <= 20:
		return 4
	default:
		return 5
	}
}

func clampScore(v int) int {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}

// Repair enforces the breakdown invariants in place: factor scores are
// clamped to 1-5, the final score is recomputed as frequency times impact
// when it disagrees, and the classification is recomputed from the final
// score. Rationales are never touched. Returns true when anything changed.
func (b *RiskBreakdown) Repair() bool {
	changed := false

	if c := clampScore(b.FrequencyScore); c != b.FrequencyScore {
		b.FrequencyScore = c
		changed = true
	}
	if c := clampScore(b.ImpactScore); c != b.ImpactScore {
		b.ImpactScore = c
		changed = true
	}
	if product := b.FrequencyScore * b.ImpactScore; b.FinalRiskScore != product {
		b.FinalRiskScore = product
		changed = true
	}
	if class := Classify(b.FinalRiskScore); b.Classification != class {
		b.Classification = class
		changed = true
	}
	return changed
}

// RiskAssessment is one model's (or the synthesized) assessment.
// RiskScore is the legacy 1-5 score kept for continuity; routing and
// escalation read only the breakdown.
type RiskAssessment struct {
	ModelName string         `json:"model_name"`
	RiskScore int            `json:"risk_score"`
	Reasoning ReasoningTrace `json:"reasoning"`
	Breakdown *RiskBreakdown `json:"risk_breakdown,omitempty"`
}

// DegenerateAssessment is the neutral placeholder substituted when a
// generator call fails, preserving council positions and transparency.
func DegenerateAssessment(providerLabel string, err error) RiskAssessment {
	return RiskAssessment{
		ModelName: fmt.Sprintf("%s [ERROR]", providerLabel),
		RiskScore: 3,
		Reasoning: ReasoningTrace{
			Summary:             fmt.Sprintf("Error: %v", err),
			KeyArguments:        []string{},
			RegulatoryCitations: []string{},
			Vulnerabilities:     []string{},
		},
	}
}

// Critique is one challenger's verdict on the synthesized draft.
type Critique struct {
	ChallengerID   string   `json:"challenger_id"`
	IsValid        bool     `json:"is_valid"`
	Issues         []string `json:"issues"`
	Confidence     float64  `json:"confidence"`
	Recommendation string   `json:"recommendation"`
}

// FallbackEvent records a provider substitution made by the factory.
type FallbackEvent struct {
	Timestamp         time.Time `json:"timestamp"`
	RequestedProvider string    `json:"requested_provider"`
	RequestedModel    string    `json:"requested_model"`
	ActualProvider    string    `json:"actual_provider"`
	ActualModel       string    `json:"actual_model"`
	Context           string    `json:"context"`
	Reason            string    `json:"reason"`
}

// ConversationRecord is one prompt/response exchange in the audit trail.
type ConversationRecord struct {
	Timestamp  time.Time         `json:"timestamp"`
	Stage      string            `json:"stage"`
	Role       string            `json:"role"`
	ModelLabel string            `json:"model"`
	Revision   int               `json:"revision"`
	Prompt     string            `json:"prompt"`
	Response   string            `json:"response"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// EscalationInfo is attached to the state when a run is handed to humans.
type EscalationInfo struct {
	Reasons      []string `json:"reasons"`
	Priority     string   `json:"priority"`
	ArtifactPath string   `json:"artifact_path,omitempty"`
}

// State is the workflow state threaded through the graph. Critiques are
// append-only; each critique round appends exactly one entry per
// challenger in panel order.
type State struct {
	RunID            string           `json:"run_id"`
	RiskInput        string           `json:"risk_input"`
	DraftAssessments []RiskAssessment `json:"draft_assessments"`
	SynthesizedDraft *RiskAssessment  `json:"synthesized_draft,omitempty"`
	Critiques        []Critique       `json:"critiques"`
	RevisionCount    int              `json:"revision_count"`

	// Route is the verifier's most recent convergence decision
	// (revise/escalate/end); Status is the terminal status once the run
	// ends.
	Route      string          `json:"route,omitempty"`
	Status     string          `json:"status,omitempty"`
	Escalation *EscalationInfo `json:"escalation,omitempty"`
}

// Clone returns a deep copy so nodes never alias each other's state.
func (s *State) Clone() *State {
	out := &State{
		RunID:         s.RunID,
		RiskInput:     s.RiskInput,
		RevisionCount: s.RevisionCount,
		Route:         s.Route,
		Status:        s.Status,
	}
	if s.DraftAssessments != nil {
		out.DraftAssessments = make([]RiskAssessment, len(s.DraftAssessments))
		copy(out.DraftAssessments, s.DraftAssessments)
	}
	if s.SynthesizedDraft != nil {
		draft := *s.SynthesizedDraft
		if s.SynthesizedDraft.Breakdown != nil {
			bd := *s.SynthesizedDraft.Breakdown
			draft.Breakdown = &bd
		}
		out.SynthesizedDraft = &draft
	}
	if s.Critiques != nil {
		out.Critiques = make([]Critique, len(s.Critiques))
		copy(out.Critiques, s.Critiques)
	}
	if s.Escalation != nil {
		esc := *s.Escalation
		out.Escalation = &esc
	}
	return out
}

// LastRound returns the most recent critique round: the final three
// critiques, or everything if fewer than three exist.
func (s *State) LastRound() []Critique {
	if len(s.Critiques) <= 3 {
		return s.Critiques
	}
	return s.Critiques[len(s.Critiques)-3:]
}
