package agents

import (
	"context"
	"log/slog"
	"strings"

	"github.com/quorasec/conclave/pkg/schema"
)

// Escalation priorities.
const (
	PriorityHigh   = "HIGH"
	PriorityMedium = "MEDIUM"
)

// ArtifactWriter persists the escalation record for human review and
// returns the artifact path.
type ArtifactWriter interface {
	WriteEscalation(state *schema.State, info schema.EscalationInfo) (string, error)
}

// EscalationHandler is the terminal node for runs handed to humans: it
// determines every triggered reason, persists the full state as an
// escalation artifact, and notifies the operator channel.
type EscalationHandler struct {
	deps   *Deps
	writer ArtifactWriter
}

func NewEscalationHandler(deps *Deps, writer ArtifactWriter) *EscalationHandler {
	return &EscalationHandler{deps: deps, writer: writer}
}

func (h *EscalationHandler) Name() string { return "escalation" }

func (h *EscalationHandler) Run(ctx context.Context, state *schema.State) (*schema.State, error) {
	out := state.Clone()

	decision := Decide(out, h.deps.Config.Workflow.MaxRevisions)
	reasons := decision.Reasons
	if len(reasons) == 0 {
		reasons = []string{"Unknown escalation reason"}
	}

	priority := PriorityMedium
	if out.SynthesizedDraft != nil && out.SynthesizedDraft.Breakdown != nil &&
		out.SynthesizedDraft.Breakdown.Classification == schema.ClassificationCritical {
		priority = PriorityHigh
	}

	info := schema.EscalationInfo{Reasons: reasons, Priority: priority}
	if h.writer != nil {
		path, err := h.writer.WriteEscalation(out, info)
		if err != nil {
			// The run still terminates as escalated; the state itself
			// carries everything the artifact would have.
			slog.Error("writing escalation artifact failed", "error", err)
		} else {
			info.ArtifactPath = path
		}
	}

	out.Escalation = &info
	out.Status = schema.StatusEscalated

	reason := strings.Join(reasons, "; ")
	h.deps.Recorder.Record("escalation", "escalation_handler", "human_review", out.RevisionCount,
		"Escalation triggered: "+reason,
		"Escalation file created: "+info.ArtifactPath,
		map[string]string{
			"escalation_reason": reason,
			"escalation_file":   info.ArtifactPath,
		})

	slog.Warn("assessment escalated for human review",
		"priority", priority,
		"reasons", strings.Join(reasons, " | "),
		"artifact", info.ArtifactPath)
	return out, nil
}
