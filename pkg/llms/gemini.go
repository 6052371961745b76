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

// GeminiProvider speaks the Google Generative Language API.
type GeminiProvider struct {
	model       string
	apiKey      string
	baseURL     string
	temperature float64
	maxTokens   int
	client      *httpclient.Client
}

func NewGeminiProvider(model, apiKey, baseURL string, temperature float64, timeout time.Duration) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google: API key is required")
	}
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	return &GeminiProvider{
		model:       model,
		apiKey:      apiKey,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		temperature: temperature,
		maxTokens:   4096,
		client: httpclient.New(
			httpclient.WithTimeout(timeout),
			httpclient.WithHeaderParser(httpclient.ParseGeminiHeaders),
		),
	}, nil
}

func (p *GeminiProvider) Family() string { return "google" }
func (p *GeminiProvider) Model() string  { return p.model }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Invoke sends one prompt and returns the first candidate's text. The API
// key travels as a query parameter, matching the Generative Language API.
func (p *GeminiProvider) Invoke(ctx context.Context, prompt string) (string, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "llm.invoke",
		trace.WithAttributes(
			attribute.String("llm.provider", "google"),
			attribute.String("llm.model", p.model),
		))
	defer span.End()

	payload := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}, Role: "user"}},
	}
	payload.GenerationConfig.Temperature = p.temperature
	payload.GenerationConfig.MaxOutputTokens = p.maxTokens

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("google: encoding request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", p.baseURL, p.model, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("google: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("google: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("google: reading response: %w", err)
	}

	var decoded geminiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("google: decoding response (HTTP %d): %w", resp.StatusCode, err)
	}
	if decoded.Error != nil {
		apiErr := fmt.Errorf("google: API error: %s (%s)", decoded.Error.Message, decoded.Error.Status)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, decoded.Error.Message)
		return "", apiErr
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("google: HTTP %d", resp.StatusCode)
	}
	if len(decoded.Candidates) == 0 {
		err := fmt.Errorf("google: response contained no candidates")
		span.RecordError(err)
		span.SetStatus(codes.Error, "no candidates")
		return "", err
	}

	var text strings.Builder
	for _, part := range decoded.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	span.SetAttributes(
		attribute.Int("llm.tokens.input", decoded.UsageMetadata.PromptTokenCount),
		attribute.Int("llm.tokens.output", decoded.UsageMetadata.CandidatesTokenCount),
	)
	span.SetStatus(codes.Ok, "success")
	return text.String(), nil
}
