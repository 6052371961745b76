package config

import (
	"fmt"
	"strings"
)

// Provider families the factory knows how to construct.
var KnownProviders = []string{"openai", "anthropic", "google", "deepseek", "groq", "mistral"}

// ModelSpec names one (provider, model) slot, optionally with a declared
// per-slot fallback tried before the universal one.
type ModelSpec struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`

	FallbackProvider string `yaml:"fallback_provider,omitempty"`
	FallbackModel    string `yaml:"fallback_model,omitempty"`
}

func (s ModelSpec) IsZero() bool {
	return s.Provider == "" && s.Model == ""
}

// DeclaredFallback returns the slot's own fallback spec, nil when the slot
// declares none.
func (s ModelSpec) DeclaredFallback() *ModelSpec {
	if s.FallbackProvider == "" || s.FallbackModel == "" {
		return nil
	}
	return &ModelSpec{Provider: s.FallbackProvider, Model: s.FallbackModel}
}

// Label renders the spec as "provider/model", the form used in
// assessments and audit records.
func (s ModelSpec) Label() string {
	return s.Provider + "/" + s.Model
}

func (s ModelSpec) Validate() error {
	if s.Provider == "" || s.Model == "" {
		return fmt.Errorf("provider and model are both required, got %q/%q", s.Provider, s.Model)
	}
	if !knownProvider(s.Provider) {
		return fmt.Errorf("unknown provider %q (known: %s)", s.Provider, strings.Join(KnownProviders, ", "))
	}
	if fb := s.DeclaredFallback(); fb != nil && !knownProvider(fb.Provider) {
		return fmt.Errorf("unknown fallback provider %q (known: %s)", fb.Provider, strings.Join(KnownProviders, ", "))
	}
	return nil
}

func knownProvider(name string) bool {
	for _, known := range KnownProviders {
		if name == known {
			return true
		}
	}
	return false
}

// UniversalFallback is the last-resort substitution when neither the
// requested model nor its declared fallback can be built.
var UniversalFallback = ModelSpec{Provider: "openai", Model: "gpt-4o"}

// DefaultCouncil is the nine-slot generator ensemble spread across six
// provider families. Non-OpenAI slots declare openai/gpt-4o as their
// fallback; the OpenAI slots rely on credentials being present at all.
func DefaultCouncil() []ModelSpec {
	return []ModelSpec{
		{Provider: "openai", Model: "gpt-4o"},
		{Provider: "openai", Model: "gpt-4o-mini"},
		{Provider: "openai", Model: "o1-mini"},
		{Provider: "anthropic", Model: "claude-3-5-sonnet-20241022", FallbackProvider: "openai", FallbackModel: "gpt-4o"},
		{Provider: "anthropic", Model: "claude-3-opus-20240229", FallbackProvider: "openai", FallbackModel: "gpt-4o"},
		{Provider: "google", Model: "gemini-1.5-pro", FallbackProvider: "openai", FallbackModel: "gpt-4o"},
		{Provider: "deepseek", Model: "deepseek-chat", FallbackProvider: "openai", FallbackModel: "gpt-4o"},
		{Provider: "groq", Model: "llama-3.3-70b-versatile", FallbackProvider: "openai", FallbackModel: "gpt-4o"},
		{Provider: "mistral", Model: "mistral-large-latest", FallbackProvider: "openai", FallbackModel: "gpt-4o"},
	}
}

// ParseCouncil parses "provider:model,provider:model,..." as used by the
// GENERATOR_MODELS_WITH_PROVIDERS environment variable. An entry may
// declare its own fallback as "provider:model->provider:model".
func ParseCouncil(s string) ([]ModelSpec, error) {
	var specs []ModelSpec
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		primary, fallback, hasFallback := strings.Cut(entry, "->")
		spec, err := parseSlot(primary)
		if err != nil {
			return nil, err
		}
		if hasFallback {
			fb, err := parseSlot(fallback)
			if err != nil {
				return nil, err
			}
			spec.FallbackProvider = fb.Provider
			spec.FallbackModel = fb.Model
		}
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no council entries in %q", s)
	}
	return specs, nil
}

func parseSlot(entry string) (ModelSpec, error) {
	provider, model, found := strings.Cut(strings.TrimSpace(entry), ":")
	if !found {
		return ModelSpec{}, fmt.Errorf("council entry %q must be provider:model", entry)
	}
	return ModelSpec{Provider: strings.TrimSpace(provider), Model: strings.TrimSpace(model)}, nil
}
