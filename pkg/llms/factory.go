package llms

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quorasec/conclave/pkg/config"
	"github.com/quorasec/conclave/pkg/schema"
)

// CreateRequest names the model wanted for a slot, its declared fallback,
// and the calling context for the audit trail (e.g. "generator[3]").
type CreateRequest struct {
	Spec        config.ModelSpec
	Fallback    *config.ModelSpec
	Temperature float64
	Context     string
}

// Resolution reports what the factory actually built.
type Resolution struct {
	Requested   config.ModelSpec
	Actual      config.ModelSpec
	WasFallback bool
	Reason      string
}

// Instantiation is one entry in the factory's audit log; every Create
// call appends exactly one, fallback or not.
type Instantiation struct {
	Timestamp   time.Time `json:"timestamp"`
	Context     string    `json:"context"`
	Requested   string    `json:"requested"`
	Actual      string    `json:"actual"`
	WasFallback bool      `json:"was_fallback"`
}

// HeterogeneityReport quantifies how much provider diversity survived
// fallback resolution.
type HeterogeneityReport struct {
	IntendedProviders []string        `json:"intended_providers"`
	ActualProviders   []string        `json:"actual_providers"`
	DiversityScore    float64         `json:"diversity_score"`
	FallbackCount     int             `json:"fallback_count"`
	Instantiations    []Instantiation `json:"instantiations"`
}

// BuilderFunc constructs a provider; tests substitute this to avoid
// network clients.
type BuilderFunc func(spec config.ModelSpec, apiKey string, temperature float64, timeout time.Duration) (Provider, error)

// Factory resolves (provider, model) requests to constructed providers,
// applying declared and universal fallbacks, and keeps the audit trail of
// every instantiation and substitution.
type Factory struct {
	timeout      time.Duration
	logFallbacks bool

	apiKey func(provider string) string
	build  BuilderFunc

	mu             sync.Mutex
	events         []schema.FallbackEvent
	instantiations []Instantiation
	now            func() time.Time
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithBuilder substitutes the provider constructor.
func WithBuilder(b BuilderFunc) FactoryOption {
	return func(f *Factory) { f.build = b }
}

// WithAPIKeyLookup substitutes the availability check.
func WithAPIKeyLookup(lookup func(provider string) string) FactoryOption {
	return func(f *Factory) { f.apiKey = lookup }
}

func NewFactory(cfg *config.Config, opts ...FactoryOption) *Factory {
	f := &Factory{
		timeout:      cfg.Models.RequestTimeout,
		logFallbacks: cfg.Workflow.LogFallbackEvents,
		apiKey:       config.GetProviderAPIKey,
		build:        defaultBuilder,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// defaultBuilder constructs the real HTTP provider for a family. Base
// URLs can be overridden per family via <FAMILY>_BASE_URL.
func defaultBuilder(spec config.ModelSpec, apiKey string, temperature float64, timeout time.Duration) (Provider, error) {
	baseURL := os.Getenv(strings.ToUpper(spec.Provider) + "_BASE_URL")
	switch spec.Provider {
	case "anthropic":
		return NewAnthropicProvider(spec.Model, apiKey, baseURL, temperature, timeout)
	case "google":
		return NewGeminiProvider(spec.Model, apiKey, baseURL, temperature, timeout)
	case "openai", "deepseek", "groq", "mistral":
		return NewOpenAICompatibleProvider(spec.Provider, spec.Model, apiKey, baseURL, temperature, timeout)
	default:
		return nil, fmt.Errorf("unknown provider family %q", spec.Provider)
	}
}

// Available reports whether a provider family has credentials.
func (f *Factory) Available(provider string) bool {
	return f.apiKey(provider) != ""
}

// Create resolves a request: the requested (provider, model) if its
// family has credentials, else the declared fallback, else the universal
// fallback (openai/gpt-4o) when openai has credentials and a different
// family was requested. Every substitution is recorded as a
// FallbackEvent; every construction lands in the instantiation log.
func (f *Factory) Create(req CreateRequest) (Provider, Resolution, error) {
	type candidate struct {
		spec   config.ModelSpec
		reason string
	}
	candidates := []candidate{{spec: req.Spec}}
	if req.Fallback != nil && !req.Fallback.IsZero() {
		candidates = append(candidates, candidate{
			spec:   *req.Fallback,
			reason: fmt.Sprintf("provider %q unavailable, using declared fallback", req.Spec.Provider),
		})
	}
	if req.Spec.Provider != config.UniversalFallback.Provider {
		candidates = append(candidates, candidate{
			spec:   config.UniversalFallback,
			reason: fmt.Sprintf("provider %q unavailable, using universal fallback", req.Spec.Provider),
		})
	}

	var lastErr error
	for i, c := range candidates {
		if !f.Available(c.spec.Provider) {
			lastErr = fmt.Errorf("provider %q has no credentials", c.spec.Provider)
			continue
		}
		provider, err := f.build(c.spec, f.apiKey(c.spec.Provider), req.Temperature, f.timeout)
		if err != nil {
			lastErr = err
			continue
		}

		res := Resolution{
			Requested:   req.Spec,
			Actual:      c.spec,
			WasFallback: i > 0,
			Reason:      c.reason,
		}
		f.record(req, res)
		return provider, res, nil
	}

	if lastErr != nil {
		return nil, Resolution{Requested: req.Spec}, fmt.Errorf("%w: %s (%v)", ErrNoProviderAvailable, req.Spec.Label(), lastErr)
	}
	return nil, Resolution{Requested: req.Spec}, fmt.Errorf("%w: %s", ErrNoProviderAvailable, req.Spec.Label())
}

func (f *Factory) record(req CreateRequest, res Resolution) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.instantiations = append(f.instantiations, Instantiation{
		Timestamp:   f.now(),
		Context:     req.Context,
		Requested:   res.Requested.Label(),
		Actual:      res.Actual.Label(),
		WasFallback: res.WasFallback,
	})

	if !res.WasFallback {
		return
	}
	f.events = append(f.events, schema.FallbackEvent{
		Timestamp:         f.now(),
		RequestedProvider: res.Requested.Provider,
		RequestedModel:    res.Requested.Model,
		ActualProvider:    res.Actual.Provider,
		ActualModel:       res.Actual.Model,
		Context:           req.Context,
		Reason:            res.Reason,
	})
	if f.logFallbacks {
		slog.Warn("provider fallback",
			"requested", res.Requested.Label(),
			"actual", res.Actual.Label(),
			"context", req.Context,
			"reason", res.Reason)
	}
}

// FallbackEvents returns a snapshot of all substitutions so far.
func (f *Factory) FallbackEvents() []schema.FallbackEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]schema.FallbackEvent, len(f.events))
	copy(out, f.events)
	return out
}

// Instantiations returns a snapshot of the construction audit log.
func (f *Factory) Instantiations() []Instantiation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Instantiation, len(f.instantiations))
	copy(out, f.instantiations)
	return out
}

// Heterogeneity compares the provider families the council intended
// against the families actually instantiated. The diversity score is
// |actual| / |intended| over distinct families.
func (f *Factory) Heterogeneity(intended []config.ModelSpec) HeterogeneityReport {
	f.mu.Lock()
	defer f.mu.Unlock()

	intendedSet := map[string]bool{}
	for _, spec := range intended {
		intendedSet[spec.Provider] = true
	}
	actualSet := map[string]bool{}
	for _, inst := range f.instantiations {
		family, _, _ := strings.Cut(inst.Actual, "/")
		actualSet[family] = true
	}

	report := HeterogeneityReport{
		IntendedProviders: sortedKeys(intendedSet),
		ActualProviders:   sortedKeys(actualSet),
		FallbackCount:     len(f.events),
		Instantiations:    append([]Instantiation(nil), f.instantiations...),
	}
	if len(intendedSet) > 0 {
		report.DiversityScore = float64(len(actualSet)) / float64(len(intendedSet))
	}
	return report
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
