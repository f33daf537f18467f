package secrets

import "sort"

// Result is the outcome of one Scrub call.
type Result struct {
	// Scrubbed is the content with secrets replaced by markers.
	Scrubbed string `json:"scrubbed"`

	// Findings never include the secret value.
	Findings []Finding `json:"findings,omitempty"`

	TotalFindings int            `json:"total_findings"`
	ByRule        map[string]int `json:"by_rule,omitempty"`
}

// Finding is one detected secret.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Line        int    `json:"line,omitempty"`
}

// HasFindings reports whether anything was redacted.
func (r Result) HasFindings() bool {
	return r.TotalFindings > 0
}

// RuleIDs returns the matched rule IDs, sorted.
func (r Result) RuleIDs() []string {
	ids := make([]string, 0, len(r.ByRule))
	for id := range r.ByRule {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
