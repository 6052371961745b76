// Package citations extracts regulatory and vulnerability citations from
// free text: CVE identifiers, the PSTI Act, EU/UK/US regulations and
// directives, and ISO standards.
package citations

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	cvePattern        = regexp.MustCompile(`(?i)\bCVE[-\s]?(\d{4})[-\s]?(\d{4,7})\b`)
	pstiPattern       = regexp.MustCompile(`(?i)\bPSTI(?:\s+Act)?(?:\s+2022)?\b`)
	regulationPattern = regexp.MustCompile(`(?i)\b(EU|UK|US)\s+(Regulation|Directive)\s+(\d{4}/\d+|\d+/\d{4}|\d+)\b`)
	isoPattern        = regexp.MustCompile(`(?i)\bISO[/\s]?(\d{4,5})(?:[-/](\d+))?\b`)
)

// Extract returns the normalised citations found in text, de-duplicated
// and in order of first appearance.
func Extract(text string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}

	type match struct {
		pos      int
		citation string
	}
	var matches []match

	for _, m := range cvePattern.FindAllStringSubmatchIndex(text, -1) {
		year := text[m[2]:m[3]]
		num := text[m[4]:m[5]]
		matches = append(matches, match{m[0], fmt.Sprintf("CVE-%s-%s", year, num)})
	}

	for _, m := range pstiPattern.FindAllStringIndex(text, -1) {
		matches = append(matches, match{m[0], "PSTI Act 2022"})
	}

	for _, m := range regulationPattern.FindAllStringSubmatchIndex(text, -1) {
		region := strings.ToUpper(text[m[2]:m[3]])
		kind := titleCase(text[m[4]:m[5]])
		ref := text[m[6]:m[7]]
		matches = append(matches, match{m[0], fmt.Sprintf("%s %s %s", region, kind, ref)})
	}

	for _, m := range isoPattern.FindAllStringSubmatchIndex(text, -1) {
		citation := "ISO " + text[m[2]:m[3]]
		if m[4] >= 0 {
			citation += "-" + text[m[4]:m[5]]
		}
		matches = append(matches, match{m[0], citation})
	}

	// Order of first appearance across all pattern families.
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].pos < matches[j-1].pos; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}
	for _, m := range matches {
		add(m.citation)
	}
	if out == nil {
		return []string{}
	}
	return out
}

// ExtractAll merges citations from explicit fields and free-text sources
// into one de-duplicated set, preserving the explicit entries first.
func ExtractAll(explicit []string, texts ...string) []string {
	var out []string
	seen := map[string]bool{}
	for _, c := range explicit {
		c = strings.TrimSpace(c)
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, text := range texts {
		for _, c := range Extract(text) {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	if out == nil {
		return []string{}
	}
	return out
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
