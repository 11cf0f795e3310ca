// Package collector polls BMCs and hardware exporters and returns their log
// entries and sensor states as validated risk.LogEvent batches.
//
// Implemented collectors: Redfish log services (redfish.go), ipmitool SEL
// and sensor output (ipmi.go), and ipmi_exporter / redfish_exporter state
// gauges (prometheus.go). Factory: New(config.Source) returns the correct
// Collector, wrapped with the TLS certificate check when check_cert is set.
//
// Collectors never return an error for a failed poll. The Batch carries Err
// and a single "collector" error event instead, so an unreachable BMC raises
// its source's score rather than going quiet.
//
// Authentication (basic, bearer, API key) is handled by the shared
// authRoundTripper in base.go.
package collector
