// Package types defines values shared by tems-agent and tems-server: the
// OTLP resource attribute keys that identify a collection source on the
// wire, and the TLS certificate status reported for HTTPS endpoints.
package types
