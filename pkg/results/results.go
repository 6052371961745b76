// Package results persists run artifacts: the assessment record written
// at the end of every run and the escalation record handed to human
// reviewers.
package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/quorasec/conclave/pkg/llms"
	"github.com/quorasec/conclave/pkg/schema"
)

const timestampLayout = "20060102_150405"

// Store writes artifacts under one output directory.
type Store struct {
	dir string
	now func() time.Time
}

func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// RunArtifact bundles everything the assessment record captures beyond
// the state itself.
type RunArtifact struct {
	State           *schema.State
	ConversationLog []schema.ConversationRecord
	FallbackEvents  []schema.FallbackEvent
	Heterogeneity   *llms.HeterogeneityReport
}

type runMetadata struct {
	AssessmentType   string `json:"assessment_type"`
	RunID            string `json:"run_id"`
	Timestamp        string `json:"timestamp"`
	RiskInput        string `json:"risk_input"`
	Status           string `json:"status"`
	RevisionCount    int    `json:"revision_count"`
	TotalAssessments int    `json:"total_assessments"`
	TotalCritiques   int    `json:"total_critiques"`
}

type runOutput struct {
	SynthesizedDraft *schema.RiskAssessment  `json:"synthesized_draft"`
	DraftAssessments []schema.RiskAssessment `json:"draft_assessments"`
	Critiques        []schema.Critique       `json:"critiques"`
}

type workflowStats struct {
	RevisionCount             int    `json:"revision_count"`
	TotalAssessmentsGenerated int    `json:"total_assessments_generated"`
	TotalCritiques            int    `json:"total_critiques"`
	Route                     string `json:"route,omitempty"`
}

type runRecord struct {
	Metadata        runMetadata                 `json:"metadata"`
	Input           map[string]string           `json:"input"`
	Output          runOutput                   `json:"output"`
	WorkflowStats   workflowStats               `json:"workflow_stats"`
	Escalation      *schema.EscalationInfo      `json:"escalation,omitempty"`
	FallbackEvents  []schema.FallbackEvent      `json:"fallback_events"`
	Heterogeneity   *llms.HeterogeneityReport   `json:"heterogeneity,omitempty"`
	ConversationLog []schema.ConversationRecord `json:"conversation_log"`
}

// WriteAssessment persists the full run record and returns its path.
func (s *Store) WriteAssessment(artifact RunArtifact) (string, error) {
	state := artifact.State
	record := runRecord{
		Metadata: runMetadata{
			AssessmentType:   "Assessment for IoT Risk",
			RunID:            state.RunID,
			Timestamp:        s.now().Format(time.RFC3339),
			RiskInput:        state.RiskInput,
			Status:           state.Status,
			RevisionCount:    state.RevisionCount,
			TotalAssessments: len(state.DraftAssessments),
			TotalCritiques:   len(state.Critiques),
		},
		Input: map[string]string{"risk_scenario": state.RiskInput},
		Output: runOutput{
			SynthesizedDraft: state.SynthesizedDraft,
			DraftAssessments: emptyAssessmentsIfNil(state.DraftAssessments),
			Critiques:        emptyCritiquesIfNil(state.Critiques),
		},
		WorkflowStats: workflowStats{
			RevisionCount:             state.RevisionCount,
			TotalAssessmentsGenerated: len(state.DraftAssessments),
			TotalCritiques:            len(state.Critiques),
			Route:                     state.Route,
		},
		Escalation:      state.Escalation,
		FallbackEvents:  emptyEventsIfNil(artifact.FallbackEvents),
		Heterogeneity:   artifact.Heterogeneity,
		ConversationLog: emptyLogIfNil(artifact.ConversationLog),
	}

	name := fmt.Sprintf("assessment_iot_risk_%s.json", s.now().Format(timestampLayout))
	return s.write(s.dir, name, record)
}

type escalationMetadata struct {
	EscalationType string `json:"escalation_type"`
	Timestamp      string `json:"timestamp"`
	Reason         string `json:"reason"`
	RiskInput      string `json:"risk_input"`
	RevisionCount  int    `json:"revision_count"`
	Status         string `json:"status"`
}

type workflowState struct {
	RevisionCount    int `json:"revision_count"`
	TotalAssessments int `json:"total_assessments"`
	TotalCritiques   int `json:"total_critiques"`
}

type humanReview struct {
	Action   string  `json:"action"`
	Deadline *string `json:"deadline"`
	Priority string  `json:"priority"`
}

type escalationRecord struct {
	Metadata          escalationMetadata      `json:"metadata"`
	EscalationReason  string                  `json:"escalation_reason"`
	Reasons           []string                `json:"reasons"`
	WorkflowState     workflowState           `json:"workflow_state"`
	CurrentAssessment *schema.RiskAssessment  `json:"current_assessment"`
	AllAssessments    []schema.RiskAssessment `json:"all_assessments"`
	Critiques         []schema.Critique       `json:"critiques"`
	HumanReview       humanReview             `json:"human_review_required"`
}

// WriteEscalation persists the escalation record under
// <dir>/escalations/ and returns its path.
func (s *Store) WriteEscalation(state *schema.State, info schema.EscalationInfo) (string, error) {
	reason := strings.Join(info.Reasons, "; ")
	record := escalationRecord{
		Metadata: escalationMetadata{
			EscalationType: "Human Review Required",
			Timestamp:      s.now().Format(time.RFC3339),
			Reason:         reason,
			RiskInput:      state.RiskInput,
			RevisionCount:  state.RevisionCount,
			Status:         "PENDING_HUMAN_REVIEW",
		},
		EscalationReason: reason,
		Reasons:          info.Reasons,
		WorkflowState: workflowState{
			RevisionCount:    state.RevisionCount,
			TotalAssessments: len(state.DraftAssessments),
			TotalCritiques:   len(state.Critiques),
		},
		CurrentAssessment: state.SynthesizedDraft,
		AllAssessments:    emptyAssessmentsIfNil(state.DraftAssessments),
		Critiques:         emptyCritiquesIfNil(state.Critiques),
		HumanReview: humanReview{
			Action:   "Review this assessment and provide final decision",
			Priority: info.Priority,
		},
	}

	name := fmt.Sprintf("escalation_%s.json", s.now().Format(timestampLayout))
	return s.write(filepath.Join(s.dir, "escalations"), name, record)
}

func (s *Store) write(dir, name string, record interface{}) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}

	raw, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", name, err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

func emptyAssessmentsIfNil(s []schema.RiskAssessment) []schema.RiskAssessment {
	if s == nil {
		return []schema.RiskAssessment{}
	}
	return s
}

func emptyCritiquesIfNil(s []schema.Critique) []schema.Critique {
	if s == nil {
		return []schema.Critique{}
	}
	return s
}

func emptyEventsIfNil(s []schema.FallbackEvent) []schema.FallbackEvent {
	if s == nil {
		return []schema.FallbackEvent{}
	}
	return s
}

func emptyLogIfNil(s []schema.ConversationRecord) []schema.ConversationRecord {
	if s == nil {
		return []schema.ConversationRecord{}
	}
	return s
}
