package api

import (
	"github.com/tems/tems/pkg/risk"
	"github.com/tems/tems/pkg/types"
	"github.com/tems/tems/server/internal/alerts"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// OverallScore is the mean score of all live sources.
	OverallScore float64 `json:"overall_score"`
	// Label classifies OverallScore, or is "unknown" with no live sources.
	Label         string `json:"label"`
	SourceCount   int    `json:"source_count"`
	NormalCount   int    `json:"normal_count"`
	DegradedCount int    `json:"degraded_count"`
	AlertCount    int    `json:"alert_count"`
}

// SourceResponse is one source entry in GET /api/v1/sources or
// GET /api/v1/sources/{id}.
type SourceResponse struct {
	SourceID     string             `json:"source_id"`
	SourceType   string             `json:"source_type,omitempty"`
	Vendor       string             `json:"vendor,omitempty"`
	Score        float64            `json:"score"`
	Label        risk.Label         `json:"label"`
	Notes        string             `json:"notes"`
	EventCount   int                `json:"event_count"`
	Features     risk.FeatureVector `json:"features"`
	UptimePct    float64            `json:"uptime_pct"`
	LastError    string             `json:"last_error,omitempty"`
	Cert         *types.CertStatus  `json:"cert,omitempty"`
	ActiveAlerts int                `json:"active_alerts"`
	Diagnostics  []DiagnosticHint   `json:"diagnostics"`
	LastSeen     string             `json:"last_seen"` // RFC3339
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the data of
// every WebSocket stream message.
type SnapshotResponse struct {
	Health      HealthResponse   `json:"health"`
	Sources     []SourceResponse `json:"sources"`
	Alerts      []*alerts.Alert  `json:"alerts"`
	GeneratedAt string           `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

// validationErrorResponse is the 400 body for a /predict batch holding an
// invalid record.
type validationErrorResponse struct {
	Error string `json:"error"`
	Index int    `json:"index"`
	Field string `json:"field"`
}
