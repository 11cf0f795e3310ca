// Package api implements the HTTP surface of tems-server on a chi router.
//
// New(opts) returns a Handler that serves:
//
//	GET  /health               liveness, always {"status":"ok"}
//	POST /predict              score one JSON array of raw events
//	GET  /api/v1/health        fleet score, label, per-label and alert counts
//	GET  /api/v1/sources       all live sources ([]SourceResponse)
//	GET  /api/v1/sources/{id}  one source; 404 if unknown or stale
//	GET  /api/v1/alerts        firing alerts and those resolved in the last hour
//	GET  /api/v1/snapshot      everything above in one document
//	POST /v1/logs              OTLP/HTTP logs, when Options.OTLP is set
//	GET  /metrics              Prometheus exposition
//	GET  /ws/stream            WebSocket stream, when Options.Stream is set
//
// JSON types are defined in types.go and per-source hints in diagnostics.go.
package api
