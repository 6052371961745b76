// Package runner wires the agent graph together and drives complete
// assessment runs: council generation, synthesis, the critique loop, and
// artifact persistence.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/quorasec/conclave/pkg/agents"
	"github.com/quorasec/conclave/pkg/audit"
	"github.com/quorasec/conclave/pkg/config"
	"github.com/quorasec/conclave/pkg/graph"
	"github.com/quorasec/conclave/pkg/kb"
	"github.com/quorasec/conclave/pkg/llms"
	"github.com/quorasec/conclave/pkg/results"
	"github.com/quorasec/conclave/pkg/schema"
	"github.com/quorasec/conclave/pkg/search"
)

// Factory is the provider factory surface the runner needs: agent slot
// resolution plus the transparency reports.
type Factory interface {
	agents.ProviderFactory
	FallbackEvents() []schema.FallbackEvent
	Heterogeneity(intended []config.ModelSpec) llms.HeterogeneityReport
}

// Runner executes assessment runs against one configuration.
type Runner struct {
	cfg      *config.Config
	factory  Factory
	search   search.Client
	kb       kb.KB
	store    *results.Store
	newRunID func() string
}

// Option customises a Runner; tests substitute the factory and clients.
type Option func(*Runner)

func WithFactory(f Factory) Option            { return func(r *Runner) { r.factory = f } }
func WithSearchClient(c search.Client) Option { return func(r *Runner) { r.search = c } }
func WithKB(store kb.KB) Option               { return func(r *Runner) { r.kb = store } }

// New builds a Runner from configuration. The search client and knowledge
// base are optional capabilities: absent credentials degrade them rather
// than failing construction.
func New(cfg *config.Config, opts ...Option) (*Runner, error) {
	r := &Runner{
		cfg:      cfg,
		store:    results.NewStore(cfg.Output.Dir),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.factory == nil {
		r.factory = llms.NewFactory(cfg)
	}
	if r.search == nil {
		if cfg.Search.APIKey != "" {
			r.search = search.NewTavilyClient(cfg.Search.APIKey)
		} else {
			slog.Warn("no search API key configured, citation verification will rely on model judgment only")
		}
	}
	if r.kb == nil && cfg.KB.Path != "" {
		store, err := kb.NewChromemStore(cfg.KB.Path, cfg.KB.Collection, config.GetProviderAPIKey("openai"))
		if err != nil {
			slog.Warn("knowledge base unavailable, using baseline reference sources", "error", err)
		} else {
			r.kb = store
		}
	}
	return r, nil
}

// Result is the outcome of one run.
type Result struct {
	State          *schema.State
	ArtifactPath   string
	Heterogeneity  llms.HeterogeneityReport
	FallbackEvents []schema.FallbackEvent
	Conversation   []schema.ConversationRecord
}

// RunAssessment executes the full graph for one risk scenario. The run
// record is persisted for every terminal state, cancellation included.
func (r *Runner) RunAssessment(ctx context.Context, riskInput string) (*Result, error) {
	riskInput = strings.TrimSpace(riskInput)
	if riskInput == "" {
		return nil, fmt.Errorf("runner: risk input is empty")
	}

	recorder := audit.NewRecorder()
	deps := &agents.Deps{
		Factory:  r.factory,
		Recorder: recorder,
		Config:   r.cfg,
		Search:   r.search,
		KB:       r.kb,
	}

	g, err := buildGraph(deps, r.store)
	if err != nil {
		return nil, err
	}

	if r.cfg.Workflow.ReportHeterogeneity {
		labels := make([]string, len(r.cfg.Models.Generators))
		for i, spec := range r.cfg.Models.Generators {
			labels[i] = spec.Label()
		}
		slog.Info("council composition", "slots", len(labels), "models", strings.Join(labels, ", "))
	}

	state := &schema.State{
		RunID:     r.newRunID(),
		RiskInput: riskInput,
		Critiques: []schema.Critique{},
	}
	slog.Info("starting assessment", "run_id", state.RunID)

	final, runErr := g.Invoke(ctx, state)
	if final == nil {
		final = state
	}

	het := r.factory.Heterogeneity(r.cfg.Models.Generators)
	if r.cfg.Workflow.ReportHeterogeneity {
		slog.Info("provider heterogeneity",
			"diversity", fmt.Sprintf("%.2f", het.DiversityScore),
			"intended", strings.Join(het.IntendedProviders, ","),
			"actual", strings.Join(het.ActualProviders, ","),
			"fallbacks", het.FallbackCount)
	}

	result := &Result{
		State:          final,
		Heterogeneity:  het,
		FallbackEvents: r.factory.FallbackEvents(),
		Conversation:   recorder.Records(),
	}

	path, writeErr := r.store.WriteAssessment(results.RunArtifact{
		State:           final,
		ConversationLog: result.Conversation,
		FallbackEvents:  result.FallbackEvents,
		Heterogeneity:   &het,
	})
	if writeErr != nil {
		slog.Error("writing run record failed", "error", writeErr)
	} else {
		result.ArtifactPath = path
	}

	if runErr != nil {
		return result, runErr
	}
	slog.Info("assessment finished",
		"run_id", final.RunID,
		"status", final.Status,
		"revisions", final.RevisionCount)
	return result, nil
}

// buildGraph assembles the fixed topology: council, synthesis, the
// parallel challenger panel, the verifier, and its three routes.
func buildGraph(deps *agents.Deps, writer agents.ArtifactWriter) (*graph.Graph, error) {
	ensemble := agents.NewGeneratorEnsemble(deps)
	aggregator := agents.NewAggregator(deps)
	panel := agents.NewPanel(
		agents.NewChallengerA(deps),
		agents.NewChallengerB(deps),
		agents.NewChallengerC(deps),
	)
	verifier := agents.NewVerifier(deps)
	escalation := agents.NewEscalationHandler(deps, writer)

	return graph.NewBuilder().
		AddNode(ensemble).
		AddNode(aggregator).
		AddNode(panel).
		AddNode(verifier).
		AddNode(escalation).
		SetEntryPoint(ensemble.Name()).
		AddEdge(ensemble.Name(), aggregator.Name()).
		AddEdge(aggregator.Name(), panel.Name()).
		AddEdge(panel.Name(), verifier.Name()).
		AddConditionalEdges(verifier.Name(), func(s *schema.State) string { return s.Route }, map[string]string{
			schema.RouteRevise:   aggregator.Name(),
			schema.RouteEscalate: escalation.Name(),
			schema.RouteEnd:      graph.End,
		}).
		AddEdge(escalation.Name(), graph.End).
		Compile()
}
