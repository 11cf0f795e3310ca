// Package receiver accepts OTLP log exports from tems-agent instances (or any
// OTLP producer) over gRPC and OTLP/HTTP.
//
// Decode turns an ExportLogsServiceRequest into one compute.Update per
// source, validating every record with risk.Parse. A single invalid record
// rejects the whole request (codes.InvalidArgument, or HTTP 400) so a
// producer never gets a partially applied export. Accepted updates are
// scored by compute.Engine, stored, evaluated against the alert rules, and
// published as Prometheus series.
//
// LoggingInterceptor logs each RPC and recovers handler panics.
package receiver
