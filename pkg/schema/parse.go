package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls the first JSON object out of a model response. It
// prefers fenced ```json blocks, then bare ``` fences, then falls back to
// the first balanced {...} object in the text.
func ExtractJSON(text string) (string, bool) {
	for _, fence := range []string{"```json", "```"} {
		start := strings.Index(text, fence)
		if start < 0 {
			continue
		}
		rest := text[start+len(fence):]
		end := strings.Index(rest, "```")
		if end < 0 {
			continue
		}
		candidate := strings.TrimSpace(rest[:end])
		if strings.HasPrefix(candidate, "{") {
			return candidate, true
		}
	}
	return extractBalancedObject(text)
}

func extractBalancedObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// assessmentPayload is the wire shape model responses use; the reasoning
// fields sit at the top level rather than nested.
type assessmentPayload struct {
	RiskScore           int            `json:"risk_score"`
	Summary             string         `json:"summary"`
	KeyArguments        []string       `json:"key_arguments"`
	RegulatoryCitations []string       `json:"regulatory_citations"`
	Vulnerabilities     []string       `json:"vulnerabilities"`
	Breakdown           *RiskBreakdown `json:"risk_breakdown"`
}

// ParseAssessment decodes a model response into a RiskAssessment labelled
// with the given provider/model label. When a breakdown is present its
// invariants are repaired and the legacy score is derived from the final
// score; otherwise the parsed legacy score is clamped to 1-5.
func ParseAssessment(label, response string) (RiskAssessment, error) {
	raw, ok := ExtractJSON(response)
	if !ok {
		return RiskAssessment{}, fmt.Errorf("no JSON object in response")
	}

	var payload assessmentPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return RiskAssessment{}, fmt.Errorf("decoding assessment: %w", err)
	}

	assessment := RiskAssessment{
		ModelName: label,
		Reasoning: ReasoningTrace{
			Summary:             payload.Summary,
			KeyArguments:        emptyIfNil(payload.KeyArguments),
			RegulatoryCitations: emptyIfNil(payload.RegulatoryCitations),
			Vulnerabilities:     emptyIfNil(payload.Vulnerabilities),
		},
		Breakdown: payload.Breakdown,
	}

	if assessment.Breakdown != nil {
		assessment.Breakdown.Repair()
		assessment.RiskScore = LegacyScore(assessment.Breakdown.FinalRiskScore)
	} else {
		assessment.RiskScore = clampScore(payload.RiskScore)
	}
	return assessment, nil
}

type critiquePayload struct {
	IsValid        bool     `json:"is_valid"`
	Issues         []string `json:"issues"`
	Confidence     float64  `json:"confidence"`
	Recommendation string   `json:"recommendation"`
}

// ParseCritique decodes a challenger response. The recommendation is
// normalised to accept/reject/needs_review and confidence is clamped
// to [0, 1].
func ParseCritique(challengerID, response string) (Critique, error) {
	raw, ok := ExtractJSON(response)
	if !ok {
		return Critique{}, fmt.Errorf("no JSON object in response")
	}

	var payload critiquePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Critique{}, fmt.Errorf("decoding critique: %w", err)
	}

	rec := strings.ToLower(strings.TrimSpace(payload.Recommendation))
	switch rec {
	case RecommendationAccept, RecommendationReject, RecommendationNeedsReview:
	default:
		rec = RecommendationNeedsReview
	}

	conf := payload.Confidence
	if conf < 0 {
		conf = 0
	} else if conf > 1 {
		conf = 1
	}

	return Critique{
		ChallengerID:   challengerID,
		IsValid:        payload.IsValid,
		Issues:         emptyIfNil(payload.Issues),
		Confidence:     conf,
		Recommendation: rec,
	}, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
