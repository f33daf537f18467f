package secrets

import (
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Allowlist holds content patterns excluded from detection.
type Allowlist struct {
	Regexes []string
}

// LoadAllowlist reads a gitleaks-style allowlist:
//
//	[allowlist]
//	regexes = ['''DEMO_API_KEY''']
//
// A missing file yields an empty allowlist. Every pattern is compiled up
// front so that a bad file fails at startup.
func LoadAllowlist(path string) (*Allowlist, error) {
	out := &Allowlist{Regexes: []string{}}
	if path == "" {
		return out, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return out, nil
	}

	var doc struct {
		Allowlist struct {
			Regexes []string
		}
	}
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	for _, pattern := range doc.Allowlist.Regexes {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: %q in %s: %v", ErrInvalidRegex, pattern, path, err)
		}
	}
	out.Regexes = append(out.Regexes, doc.Allowlist.Regexes...)
	return out, nil
}

// merge appends patterns after validating them.
func (a *Allowlist) merge(patterns []string) error {
	for _, pattern := range patterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidRegex, pattern, err)
		}
		a.Regexes = append(a.Regexes, pattern)
	}
	return nil
}
