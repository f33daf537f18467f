package http

import (
	"github.com/fyrsmithlabs/inboxd/internal/schema"
)

// ProcessRequest is the request body for POST /api/v1/process.
type ProcessRequest struct {
	Input string `json:"input"`
	// HighPriorityCount presets the session budget already used.
	HighPriorityCount int `json:"highPriorityCount,omitempty"`
}

// EntriesResponse is returned by POST /api/v1/process?format=entries.
type EntriesResponse []schema.Entry

// BatchRequest is the request body for POST /api/v1/batch.
type BatchRequest struct {
	Inputs        []string `json:"inputs"`
	SharedSession bool     `json:"sharedSession,omitempty"`
}

// ScrubRequest is the request body for POST /api/v1/scrub.
type ScrubRequest struct {
	Content string `json:"content"`
}

// ScrubResponse is the response body for POST /api/v1/scrub.
type ScrubResponse struct {
	Content       string   `json:"content"`
	FindingsCount int      `json:"findings_count"`
	Rules         []string `json:"rules,omitempty"`
}

// RulesResponse is the response body for GET /api/v1/rules.
type RulesResponse struct {
	MaxHighPriority   int      `json:"maxHighPriority"`
	MaxSummaryBullets int      `json:"maxSummaryBullets"`
	MaxConceptualTags int      `json:"maxConceptualTags"`
	ContextTags       []string `json:"contextTags"`
	Instructions      string   `json:"instructions"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Telemetry string `json:"telemetry,omitempty"`
}
