// Package metrics exposes tems-server's own Prometheus metrics: receiver
// throughput, /predict outcomes, scoring latency, per-source score gauges,
// fired alerts and stream clients. The registry is served on GET /metrics.
package metrics
