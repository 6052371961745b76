// Package llms provides single-shot text generation over heterogeneous
// LLM providers, and the factory that resolves (provider, model) requests
// with transparent fallback.
//
// Six provider families are supported: openai, anthropic, google,
// deepseek, groq and mistral. DeepSeek, Groq and Mistral expose
// OpenAI-compatible chat-completions APIs and share the OpenAI client
// with alternate base URLs.
package llms

import (
	"context"
	"errors"
)

// ErrNoProviderAvailable is returned when neither the requested provider,
// its declared fallback, nor the universal fallback can be constructed.
var ErrNoProviderAvailable = errors.New("no provider available")

// Provider is a configured client for one (provider family, model) pair.
// Invoke sends a single prompt and returns the text response; the context
// carries the request deadline.
type Provider interface {
	Invoke(ctx context.Context, prompt string) (string, error)
	Family() string
	Model() string
}

// Label renders a provider as "family/model".
func Label(p Provider) string {
	return p.Family() + "/" + p.Model()
}

const tracerName = "conclave.llm"

// Default public endpoints for the OpenAI-compatible families.
const (
	openAIBaseURL   = "https://api.openai.com/v1"
	deepSeekBaseURL = "https://api.deepseek.com/v1"
	groqBaseURL     = "https://api.groq.com/openai/v1"
	mistralBaseURL  = "https://api.mistral.ai/v1"

	anthropicBaseURL = "https://api.anthropic.com"
	geminiBaseURL    = "https://generativelanguage.googleapis.com"
)

// BaseURLFor returns the default endpoint for an OpenAI-compatible
// family, or "" for families with dedicated clients.
func BaseURLFor(family string) string {
	switch family {
	case "openai":
		return openAIBaseURL
	case "deepseek":
		return deepSeekBaseURL
	case "groq":
		return groqBaseURL
	case "mistral":
		return mistralBaseURL
	default:
		return ""
	}
}
