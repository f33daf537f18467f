// Package secrets redacts credentials from raw input before it leaves the
// process.
//
// Detection uses the gitleaks default rule set. Matches listed in an optional
// TOML allowlist are kept. Redacted spans are replaced with a
// [REDACTED:rule-id] marker so the generation engine still sees that
// something was there.
package secrets
