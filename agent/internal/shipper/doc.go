// Package shipper exports collection batches to tems-server as OTLP logs over
// gRPC (LogsService.Export).
//
// Shipper.Ship() is non-blocking: each batch becomes one ResourceLogs (source
// identity and certificate status as resource attributes, one LogRecord per
// event) and is placed in an in-memory channel of buffer_size entries. A
// cycle that collected nothing still ships a ResourceLogs without records so
// the server sees the source as alive. When
// the buffer is full the oldest entry is evicted so the latest events are
// always preserved.
//
// Shipper.Run() exports the buffer every ship_interval, reconnecting with
// truncated exponential backoff (1s to 60s, ±25% jitter) on transient
// errors. InvalidArgument, Unauthenticated and PermissionDenied discard the
// request rather than retrying it.
package shipper
