package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	gitleaksconfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksregexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// Scrubber redacts secrets from text. It is safe for concurrent use.
type Scrubber struct {
	enabled   bool
	allowlist *Allowlist
}

// New creates a scrubber, loading the allowlist file if one is configured.
func New(cfg Config) (*Scrubber, error) {
	allow, err := LoadAllowlist(cfg.AllowlistFile)
	if err != nil {
		return nil, err
	}
	if err := allow.merge(cfg.Allowlist); err != nil {
		return nil, err
	}
	return &Scrubber{enabled: cfg.Enabled, allowlist: allow}, nil
}

// Enabled reports whether Scrub redacts anything.
func (s *Scrubber) Enabled() bool {
	return s != nil && s.enabled
}

// Scrub replaces every detected secret in content with a [REDACTED:rule-id]
// marker. If detection cannot run the content is returned unchanged along
// with the error.
func (s *Scrubber) Scrub(content string) (Result, error) {
	result := Result{Scrubbed: content, ByRule: map[string]int{}}
	if !s.Enabled() || strings.TrimSpace(content) == "" {
		return result, nil
	}

	// Detectors accumulate findings internally, so each call gets its own.
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return result, fmt.Errorf("create detector: %w", err)
	}
	applyAllowlist(&detector.Config, s.allowlist)

	type span struct {
		secret string
		ruleID string
	}
	var spans []span
	for _, f := range detector.DetectString(content) {
		if f.Secret == "" {
			continue
		}
		result.Findings = append(result.Findings, Finding{
			RuleID:      f.RuleID,
			Description: f.Description,
			Line:        f.StartLine,
		})
		result.ByRule[f.RuleID]++
		spans = append(spans, span{secret: f.Secret, ruleID: f.RuleID})
	}
	result.TotalFindings = len(result.Findings)

	// Longest first so a secret that contains another is replaced whole.
	sort.SliceStable(spans, func(i, j int) bool { return len(spans[i].secret) > len(spans[j].secret) })
	scrubbed := content
	for _, sp := range spans {
		scrubbed = strings.ReplaceAll(scrubbed, sp.secret, "[REDACTED:"+sp.ruleID+"]")
	}
	result.Scrubbed = scrubbed
	return result, nil
}

// applyAllowlist adds the allowlist as a global gitleaks allowlist. Patterns
// were validated when the allowlist was loaded.
func applyAllowlist(cfg *gitleaksconfig.Config, allow *Allowlist) {
	if allow == nil || len(allow.Regexes) == 0 {
		return
	}
	global := &gitleaksconfig.Allowlist{Description: "inboxd allowlist"}
	for _, pattern := range allow.Regexes {
		re := regexp.MustCompile(pattern)
		global.Regexes = append(global.Regexes, (*gitleaksregexp.Regexp)(re))
	}
	global.StopWords = append(global.StopWords, allow.Regexes...)
	cfg.Allowlists = append(cfg.Allowlists, global)
}
