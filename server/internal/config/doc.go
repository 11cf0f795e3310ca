// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - GRPCPort: port for the OTLP/gRPC receiver (default 4317)
//   - HTTPPort: port for the REST API, OTLP/HTTP and WebSocket hub (default 8080)
//   - LogLevel: slog level name (default info)
//   - Window.MaxEvents, Window.MaxAge: per-source scoring window (500, 15m)
//   - Snapshot.TTL: how long a source result remains live (default 5m)
//   - Predict.MaxEvents, Predict.MaxBodyBytes: /predict bounds (10000, 8 MiB)
//   - Stream.Interval: WebSocket broadcast period (default 5s)
//   - Alerts: rules and webhook targets
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
