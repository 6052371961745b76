// Package search provides the web search capability used for citation
// verification, plus the deterministic relevance scoring that decides
// whether a citation counts as verified.
package search

import (
	"context"
	"fmt"
	"strings"
)

// Result is one search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// Client is the search capability. Implementations must be safe for
// concurrent use.
type Client interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// Verification is the outcome of checking one citation.
type Verification struct {
	Citation   string   `json:"citation"`
	Type       string   `json:"type"`
	Verified   bool     `json:"verified"`
	Confidence float64  `json:"confidence"`
	URLs       []string `json:"urls"`
	Error      string   `json:"error,omitempty"`
}

// Domains whose presence in a result URL boosts relevance.
var officialDomains = []string{
	"gov.uk",
	"legislation.gov.uk",
	"cve.org",
	"nvd.nist.gov",
	"iso.org",
	"bsi-group.com",
	"europa.eu",
}

// BuildQuery constructs the verification query for a citation and
// reports the citation type (CVE, Standard, or Regulation).
func BuildQuery(citation string) (query, citationType string) {
	upper := strings.ToUpper(citation)
	switch {
	case strings.HasPrefix(upper, "CVE"):
		return fmt.Sprintf("%q CVE vulnerability security", citation), "CVE"
	case strings.Contains(upper, "ISO") || strings.Contains(upper, "27001") || strings.Contains(upper, "27002"):
		return fmt.Sprintf("%q ISO standard certification", citation), "Standard"
	case strings.Contains(upper, "PSTI"):
		return "PSTI Act 2022 Product Security Telecommunications Infrastructure UK legislation", "Regulation"
	case strings.Contains(citation, "UK") || strings.Contains(citation, "United Kingdom"):
		return fmt.Sprintf("%q UK regulation legislation gov.uk", citation), "Regulation"
	case strings.Contains(citation, "EU"):
		return fmt.Sprintf("%q EU regulation directive", citation), "Regulation"
	default:
		return fmt.Sprintf("%q regulation legislation", citation), "Regulation"
	}
}

// Analyze scores search results against a citation. An exact substring
// match in title+content scores 0.9; otherwise the matched fraction of
// citation tokens scores up to 0.6. Official domains add 0.3, capped at
// 1.0. The citation verifies when the best score reaches 0.7; up to
// three URLs scoring at least 0.5 are kept as evidence.
func Analyze(citation, citationType string, results []Result) Verification {
	v := Verification{Citation: citation, Type: citationType, URLs: []string{}}
	if len(results) == 0 {
		return v
	}

	citationLower := strings.ToLower(citation)
	terms := strings.Fields(citationLower)

	for _, r := range results {
		combined := strings.ToLower(r.Title) + " " + strings.ToLower(r.Content)

		var score float64
		if strings.Contains(combined, citationLower) {
			score = 0.9
		} else if len(terms) > 0 {
			matches := 0
			for _, term := range terms {
				if strings.Contains(combined, term) {
					matches++
				}
			}
			score = float64(matches) / float64(len(terms)) * 0.6
		}

		url := strings.ToLower(r.URL)
		for _, domain := range officialDomains {
			if strings.Contains(url, domain) {
				score += 0.3
				break
			}
		}
		if score > 1.0 {
			score = 1.0
		}

		if score > v.Confidence {
			v.Confidence = score
		}
		if score >= 0.5 && len(v.URLs) < 3 {
			v.URLs = append(v.URLs, r.URL)
		}
	}

	v.Verified = v.Confidence >= 0.7
	return v
}

// Verify runs the full pipeline for one citation.
func Verify(ctx context.Context, client Client, citation string, maxResults int) Verification {
	query, citationType := BuildQuery(citation)
	results, err := client.Search(ctx, query, maxResults)
	if err != nil {
		return Verification{Citation: citation, Type: citationType, URLs: []string{}, Error: err.Error()}
	}
	return Analyze(citation, citationType, results)
}
