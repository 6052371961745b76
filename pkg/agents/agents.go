// Package agents implements the graph nodes: the generator council, the
// aggregator, the three challenger panels, the verifier with its
// convergence router, and the escalation handler. Nodes receive state,
// never mutate their input, and return an updated clone.
package agents

import (
	"context"
	"fmt"
	"strconv"

	"github.com/quorasec/conclave/pkg/audit"
	"github.com/quorasec/conclave/pkg/config"
	"github.com/quorasec/conclave/pkg/kb"
	"github.com/quorasec/conclave/pkg/llms"
	"github.com/quorasec/conclave/pkg/search"
)

// ProviderFactory is the slice of the llms factory the agents use; tests
// substitute a scripted implementation.
type ProviderFactory interface {
	Create(req llms.CreateRequest) (llms.Provider, llms.Resolution, error)
}

// Deps bundles the collaborators shared by every node.
type Deps struct {
	Factory  ProviderFactory
	Recorder *audit.Recorder
	Config   *config.Config
	// Search backs citation verification; nil means verification evidence
	// is marked unavailable rather than fabricated.
	Search search.Client
	// KB is the optional retrieval store; nil degrades prompts to the
	// baseline reference corpus.
	KB kb.KB
}

// invoke resolves a model slot, runs one prompt through it, and records
// the exchange. The returned label names the model that actually answered.
func (d *Deps) invoke(ctx context.Context, req llms.CreateRequest, stage, role string, revision int, prompt string) (label, response string, err error) {
	provider, res, err := d.Factory.Create(req)
	if err != nil {
		d.Recorder.Record(stage, role, req.Spec.Label(), revision, prompt,
			fmt.Sprintf("ERROR: %v", err), map[string]string{"error": err.Error()})
		return req.Spec.Label(), "", err
	}

	label = llms.Label(provider)
	response, err = provider.Invoke(ctx, prompt)
	if err != nil {
		d.Recorder.Record(stage, role, label, revision, prompt,
			fmt.Sprintf("ERROR: %v", err), invokeExtra(res, map[string]string{"error": err.Error()}))
		return label, "", err
	}

	d.Recorder.Record(stage, role, label, revision, prompt, response, invokeExtra(res, nil))
	return label, response, nil
}

// invokeExtra annotates a conversation record with the resolution so the
// audit trail shows intended vs actual models.
func invokeExtra(res llms.Resolution, extra map[string]string) map[string]string {
	if extra == nil {
		extra = map[string]string{}
	}
	extra["intended"] = res.Requested.Label()
	extra["actual"] = res.Actual.Label()
	extra["fallback_used"] = strconv.FormatBool(res.WasFallback)
	return extra
}

// referenceSources builds the reference block for a scenario, retrieval
// first when a KB is wired.
func (d *Deps) referenceSources(ctx context.Context, topic string) string {
	return kb.ReferenceSources(ctx, d.KB, topic, d.Config.KB.TopK)
}

// slotFallback picks a slot's declared fallback, defaulting to the
// universal one for the single-model stages that must always resolve.
func slotFallback(spec config.ModelSpec) *config.ModelSpec {
	if fb := spec.DeclaredFallback(); fb != nil {
		return fb
	}
	universal := config.UniversalFallback
	return &universal
}
