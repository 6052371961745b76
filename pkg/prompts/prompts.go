// Package prompts holds the prompt templates for every agent role. The
// templates are opaque to the rest of the system; only the JSON shapes
// they request are contractual.
package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quorasec/conclave/pkg/schema"
)

const assessmentJSONShape = `{
    "risk_score": <integer 1-5, legacy scale>,
    "summary": "<brief summary of the risk>",
    "key_arguments": ["<argument 1>", "<argument 2>", ...],
    "regulatory_citations": ["<regulation 1>", ...],
    "vulnerabilities": ["<CVE or vulnerability 1>", ...],
    "risk_breakdown": {
        "frequency_score": <integer 1-5, how often the threat materialises>,
        "frequency_rationale": "<why this frequency>",
        "impact_score": <integer 1-5, severity when it does>,
        "impact_rationale": "<why this impact>",
        "final_risk_score": <frequency_score * impact_score>,
        "classification": "<Low|Medium|High|Critical>"
    }
}`

const critiqueJSONShape = `{
    "is_valid": <true/false>,
    "issues": ["<issue 1>", "<issue 2>", ...],
    "confidence": <0.0-1.0>,
    "recommendation": "<accept|reject|needs_review>"
}`

// Generator asks one council model for an independent assessment.
func Generator(riskInput, referenceSources string) string {
	return fmt.Sprintf(`You are an expert IoT risk assessor. Analyze the following IoT device scenario and provide a comprehensive dual-factor risk assessment.

Device Scenario:
%s

Reference Sources:
%s

Score frequency (likelihood of the threat materialising) and impact (severity when it does) independently on 1-5 scales. The final risk score is their product (1-25).

Provide your assessment in the following JSON format:
%s

Be specific with regulatory citations (e.g., "PSTI Act 2022", "ISO 27001") and vulnerabilities (e.g., "CVE-2024-12345").`, riskInput, referenceSources, assessmentJSONShape)
}

// AggregatorInitial synthesizes the council drafts into one assessment.
func AggregatorInitial(riskInput string, drafts []schema.RiskAssessment) string {
	return fmt.Sprintf(`You are synthesizing risk assessments from %d expert models. Your task is to create a unified, consensus-driven risk assessment.

Device Scenario:
%s

Individual Assessments:
%s

Analyze the reasoning traces, identify consensus points, and synthesize a unified assessment that:
1. Reflects the majority logic and evidence
2. Incorporates the strongest arguments from all assessments
3. Maintains consistency between the scores and reasoning
4. Preserves all valid regulatory citations and vulnerabilities

Provide the unified assessment in JSON format:
%s`, len(drafts), riskInput, RenderAssessments(drafts), assessmentJSONShape)
}

// AggregatorRevision revises the previous draft against the last critique
// round.
func AggregatorRevision(previous schema.RiskAssessment, critiques []schema.Critique) string {
	return fmt.Sprintf(`You are REVISING a risk assessment based on critiques from three challenger agents. This is a revision cycle - you MUST address ALL issues raised.

Previous Assessment:
%s

Critiques from Challengers:
%s

CRITICAL: You must address each issue raised:
1. If Challenger A (Logic) found missing reasoning or arguments:
   - ADD detailed reasoning that justifies the scores
   - ENSURE key_arguments support the severity level
   - FIX any logical inconsistencies or contradictions

2. If Challenger B (Source) found unverified citations:
   - REMOVE unverified citations
   - REPLACE with verified alternatives if possible
   - KEEP only citations that can be verified

3. If Challenger C (Compliance) found missing regulatory information:
   - ADD relevant ISO standards (27001, 27002, etc.) if applicable
   - INCLUDE PSTI Act 2022 compliance considerations
   - ENSURE regulatory citations are complete

4. Maintain consistency:
   - Frequency and impact scores must match the evidence
   - The final risk score must equal frequency_score * impact_score
   - Regulatory citations must be relevant and verifiable

Provide the REVISED assessment in JSON format:
%s

IMPORTANT: This is a revision - do not simply repeat the previous assessment. Actively improve it based on the critiques.`, RenderAssessment(previous), RenderCritiques(critiques), assessmentJSONShape)
}

// ChallengerA scrutinises the draft's internal logic.
func ChallengerA(draft schema.RiskAssessment) string {
	return fmt.Sprintf(`You are a formal logician analyzing a risk assessment for internal consistency.

Risk Assessment:
%s

Your task:
1. Check if the frequency and impact scores are justified by the evidence in the reasoning
2. Identify any non-sequiturs or logical fallacies
3. Verify that the key arguments support the severity level
4. Check for contradictions within the reasoning

Provide your critique in JSON format:
%s

Evaluation Guidelines:
- If the core logic is sound and the scores are reasonably justified, set is_valid=true even if some details are missing
- Only set is_valid=false for SIGNIFICANT logical inconsistencies or when reasoning is completely missing
- Minor gaps in reasoning should be noted but may not require rejection

If the logic is fundamentally sound, set is_valid=true. If there are major logical inconsistencies or complete lack of reasoning, set is_valid=false and list the issues.`, RenderAssessment(draft), critiqueJSONShape)
}

// ChallengerB asks the fact-checker model to weigh the deterministic
// verification evidence; the verdict itself stays deterministic.
func ChallengerB(draft schema.RiskAssessment, citationList []string, searchResults string, referenceSources string) string {
	citationsText := "- (none)"
	if len(citationList) > 0 {
		citationsText = "- " + strings.Join(citationList, "\n- ")
	}
	return fmt.Sprintf(`You are a fact-checker verifying the external validity of citations in a risk assessment.

Risk Assessment:
%s

Citations to verify:
%s

Search results for each citation:
%s

Reference Sources:
%s

For each citation, determine:
1. Does it exist and is it real?
2. Is it correctly cited?
3. Is it relevant to the risk assessment?

Provide your critique in JSON format:
%s

If all citations are verified, set is_valid=true. If any citations are unverified or incorrect, set is_valid=false.`, RenderAssessment(draft), citationsText, searchResults, referenceSources, critiqueJSONShape)
}

// ChallengerC validates the draft against compliance requirements.
func ChallengerC(draft schema.RiskAssessment, referenceSources string) string {
	return fmt.Sprintf(`You are a safety and compliance expert validating a risk assessment against regulatory requirements.

Risk Assessment:
%s

Reference Sources:
%s

Validate against:
- PSTI Act 2022 requirements
- ISO standards (27001, 27002, etc.)
- IoT security best practices
- Product safety regulations

Check if:
1. The assessment addresses all relevant compliance requirements
2. Safety constraints are properly considered
3. Regulatory obligations are identified
4. The severity reflects compliance violations

Provide your critique in JSON format:
%s

Evaluation Guidelines:
- If major compliance requirements are addressed, set is_valid=true even if some minor standards are not explicitly mentioned
- Only set is_valid=false for SIGNIFICANT compliance gaps or complete absence of regulatory considerations

If major compliance requirements are properly addressed, set is_valid=true. If there are significant compliance gaps or complete absence of regulatory considerations, set is_valid=false.`, RenderAssessment(draft), referenceSources, critiqueJSONShape)
}

// Verifier asks for a natural-language convergence narrative. Routing is
// decided deterministically; the response is recorded for the audit trail.
func Verifier(draft schema.RiskAssessment, critiques []schema.Critique) string {
	return fmt.Sprintf(`You are the final arbiter reviewing critiques from three challenger agents.

Synthesized Draft:
%s

Critiques:
%s

Determine:
1. Are there any critical issues that require revision?
2. Should the assessment be accepted, rejected, or revised?
3. If revision is needed, what should be addressed?

Provide your decision in JSON format:
{
    "needs_revision": <true/false>,
    "reason": "<explanation>",
    "revision_focus": ["<area 1 to revise>", "<area 2 to revise>", ...]
}

If all critiques are resolved or minor, set needs_revision=false. If there are significant issues, set needs_revision=true.`, RenderAssessment(draft), RenderCritiques(critiques))
}

// RenderAssessment formats an assessment for prompt embedding.
func RenderAssessment(a schema.RiskAssessment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Model: %s\n", a.ModelName)
	if a.Breakdown != nil {
		fmt.Fprintf(&b, "Frequency: %d (%s)\n", a.Breakdown.FrequencyScore, a.Breakdown.FrequencyRationale)
		fmt.Fprintf(&b, "Impact: %d (%s)\n", a.Breakdown.ImpactScore, a.Breakdown.ImpactRationale)
		fmt.Fprintf(&b, "Final Risk Score: %d (%s)\n", a.Breakdown.FinalRiskScore, a.Breakdown.Classification)
	}
	fmt.Fprintf(&b, "Legacy Score: %d\n", a.RiskScore)
	fmt.Fprintf(&b, "Summary: %s\n", a.Reasoning.Summary)
	fmt.Fprintf(&b, "Arguments: %s\n", strings.Join(a.Reasoning.KeyArguments, "; "))
	fmt.Fprintf(&b, "Citations: %s\n", strings.Join(a.Reasoning.RegulatoryCitations, "; "))
	fmt.Fprintf(&b, "Vulnerabilities: %s", strings.Join(a.Reasoning.Vulnerabilities, "; "))
	return b.String()
}

// RenderAssessments formats a numbered list of assessments.
func RenderAssessments(assessments []schema.RiskAssessment) string {
	parts := make([]string, len(assessments))
	for i, a := range assessments {
		parts[i] = fmt.Sprintf("--- Assessment %d ---\n%s", i+1, RenderAssessment(a))
	}
	return strings.Join(parts, "\n\n")
}

// RenderCritiques formats critiques for prompt embedding.
func RenderCritiques(critiques []schema.Critique) string {
	parts := make([]string, len(critiques))
	for i, c := range critiques {
		parts[i] = fmt.Sprintf("Challenger %s: is_valid=%t, recommendation=%s, confidence=%.2f, issues=[%s]",
			c.ChallengerID, c.IsValid, c.Recommendation, c.Confidence, strings.Join(c.Issues, "; "))
	}
	return strings.Join(parts, "\n")
}

// RenderSearchResults formats per-citation verification evidence as JSON
// for the fact-checker prompt.
func RenderSearchResults(evidence interface{}) string {
	raw, err := json.MarshalIndent(evidence, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", evidence)
	}
	return string(raw)
}
