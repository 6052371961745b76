package httpclient

import (
	"net/http"
	"strconv"
	"time"
)

// ParseAnthropicHeaders extracts rate-limit info from Anthropic responses.
func ParseAnthropicHeaders(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{RetryAfter: parseRetryAfter(headers)}

	// Reset headers are RFC3339 timestamps; first one present wins.
	for _, h := range []string{
		"anthropic-ratelimit-input-tokens-reset",
		"anthropic-ratelimit-output-tokens-reset",
		"anthropic-ratelimit-requests-reset",
	} {
		if v := headers.Get(h); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				info.ResetTime = t.Unix()
				break
			}
		}
	}

	info.RequestsRemaining = parseIntHeader(headers, "anthropic-ratelimit-requests-remaining")
	info.TokensRemaining = parseIntHeader(headers, "anthropic-ratelimit-input-tokens-remaining")
	return info
}

// ParseOpenAIHeaders extracts rate-limit info from OpenAI-compatible
// responses (OpenAI, DeepSeek, Groq, Mistral).
func ParseOpenAIHeaders(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{RetryAfter: parseRetryAfter(headers)}

	for _, h := range []string{"x-ratelimit-reset-tokens", "x-ratelimit-reset-requests"} {
		if v := headers.Get(h); v != "" {
			if reset, err := strconv.ParseInt(v, 10, 64); err == nil {
				info.ResetTime = reset
				break
			}
		}
	}

	info.RequestsRemaining = parseIntHeader(headers, "x-ratelimit-remaining-requests")
	info.TokensRemaining = parseIntHeader(headers, "x-ratelimit-remaining-tokens")
	return info
}

// ParseGeminiHeaders extracts rate-limit info from Gemini responses,
// which only expose Retry-After.
func ParseGeminiHeaders(headers http.Header) RateLimitInfo {
	return RateLimitInfo{RetryAfter: parseRetryAfter(headers)}
}

func parseRetryAfter(headers http.Header) time.Duration {
	if v := headers.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

func parseIntHeader(headers http.Header, name string) int {
	if v := headers.Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
