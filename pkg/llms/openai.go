package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/quorasec/conclave/pkg/httpclient"
)

// OpenAICompatibleProvider speaks the chat-completions API shared by
// OpenAI, DeepSeek, Groq and Mistral.
type OpenAICompatibleProvider struct {
	family      string
	model       string
	apiKey      string
	baseURL     string
	temperature float64
	maxTokens   int
	client      *httpclient.Client
}

// NewOpenAICompatibleProvider builds a provider for one of the
// OpenAI-compatible families. An empty baseURL picks the family default.
func NewOpenAICompatibleProvider(family, model, apiKey, baseURL string, temperature float64, timeout time.Duration) (*OpenAICompatibleProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s: API key is required", family)
	}
	if baseURL == "" {
		baseURL = BaseURLFor(family)
	}
	if baseURL == "" {
		return nil, fmt.Errorf("%s: not an OpenAI-compatible family", family)
	}
	return &OpenAICompatibleProvider{
		family:      family,
		model:       model,
		apiKey:      apiKey,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		temperature: temperature,
		maxTokens:   4096,
		client: httpclient.New(
			httpclient.WithTimeout(timeout),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
		),
	}, nil
}

func (p *OpenAICompatibleProvider) Family() string { return p.family }
func (p *OpenAICompatibleProvider) Model() string  { return p.model }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model               string          `json:"model"`
	Messages            []openAIMessage `json:"messages"`
	Temperature         *float64        `json:"temperature,omitempty"`
	MaxTokens           int             `json:"max_tokens,omitempty"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *openAIError `json:"error,omitempty"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// isReasoningModel reports whether the model rejects the standard
// max_tokens/temperature parameters (OpenAI o-series).
func isReasoningModel(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

func (p *OpenAICompatibleProvider) buildRequest(prompt string) openAIRequest {
	req := openAIRequest{
		Model:    p.model,
		Messages: []openAIMessage{{Role: "user", Content: prompt}},
	}
	if isReasoningModel(p.model) {
		// Reasoning models only accept the default temperature and use
		// max_completion_tokens.
		req.MaxCompletionTokens = p.maxTokens
	} else {
		temp := p.temperature
		req.Temperature = &temp
		req.MaxTokens = p.maxTokens
	}
	return req
}

// Invoke sends one prompt and returns the first choice's text.
func (p *OpenAICompatibleProvider) Invoke(ctx context.Context, prompt string) (string, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "llm.invoke",
		trace.WithAttributes(
			attribute.String("llm.provider", p.family),
			attribute.String("llm.model", p.model),
		))
	defer span.End()

	body, err := json.Marshal(p.buildRequest(prompt))
	if err != nil {
		return "", fmt.Errorf("%s: encoding request: %w", p.family, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s: building request: %w", p.family, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%s: request failed: %w", p.family, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%s: reading response: %w", p.family, err)
	}

	var decoded openAIResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("%s: decoding response (HTTP %d): %w", p.family, resp.StatusCode, err)
	}
	if decoded.Error != nil {
		apiErr := fmt.Errorf("%s: API error: %s (%s)", p.family, decoded.Error.Message, decoded.Error.Type)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, decoded.Error.Message)
		return "", apiErr
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: HTTP %d", p.family, resp.StatusCode)
	}
	if len(decoded.Choices) == 0 {
		err := fmt.Errorf("%s: response contained no choices", p.family)
		span.RecordError(err)
		span.SetStatus(codes.Error, "no choices")
		return "", err
	}

	span.SetAttributes(
		attribute.Int("llm.tokens.input", decoded.Usage.PromptTokens),
		attribute.Int("llm.tokens.output", decoded.Usage.CompletionTokens),
	)
	span.SetStatus(codes.Ok, "success")
	return decoded.Choices[0].Message.Content, nil
}
