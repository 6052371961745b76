package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quorasec/conclave/pkg/httpclient"
)

const defaultTavilyBaseURL = "https://api.tavily.com"

// TavilyClient implements Client against the Tavily search API.
type TavilyClient struct {
	apiKey  string
	baseURL string
	client  *httpclient.Client
}

// TavilyOption configures a TavilyClient.
type TavilyOption func(*TavilyClient)

// WithBaseURL overrides the API endpoint (tests point this at a local
// server).
func WithBaseURL(url string) TavilyOption {
	return func(c *TavilyClient) { c.baseURL = url }
}

// WithHTTPClient replaces the retrying HTTP client.
func WithHTTPClient(hc *httpclient.Client) TavilyOption {
	return func(c *TavilyClient) { c.client = hc }
}

func NewTavilyClient(apiKey string, opts ...TavilyOption) *TavilyClient {
	c := &TavilyClient{
		apiKey:  apiKey,
		baseURL: defaultTavilyBaseURL,
		client: httpclient.New(
			httpclient.WithTimeout(30*time.Second),
			httpclient.WithMaxRetries(3),
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tavilyRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []Result `json:"results"`
}

type tavilyError struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

// Search queries Tavily and returns up to maxResults hits.
func (c *TavilyClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("tavily: no API key configured")
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	body, err := json.Marshal(tavilyRequest{APIKey: c.apiKey, Query: query, MaxResults: maxResults})
	if err != nil {
		return nil, fmt.Errorf("tavily: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tavily: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tavily: reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr tavilyError
		if json.Unmarshal(raw, &apiErr) == nil && (apiErr.Detail != "" || apiErr.Error != "") {
			msg := apiErr.Detail
			if msg == "" {
				msg = apiErr.Error
			}
			return nil, fmt.Errorf("tavily: HTTP %d: %s", resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("tavily: HTTP %d", resp.StatusCode)
	}

	var decoded tavilyResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("tavily: decoding response: %w", err)
	}
	return decoded.Results, nil
}
