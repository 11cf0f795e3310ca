package types

// Resource attribute keys attached to every OTLP ResourceLogs the agent
// ships. The server groups records into per-source windows by AttrSourceID,
// falling back to AttrHostName when it is absent.
const (
	AttrSourceID   = "tems.source.id"
	AttrSourceType = "tems.source.type"
	AttrVendor     = "tems.vendor"

	// Semantic-convention keys, shared with any other OTLP producer.
	AttrHostName    = "host.name"
	AttrServiceName = "service.name"
)

// Resource attributes carrying a source's certificate check result.
const (
	AttrCertStatus   = "tems.cert.status"
	AttrCertDaysLeft = "tems.cert.days_left"
	AttrCertIssuer   = "tems.cert.issuer"
	AttrCertNotAfter = "tems.cert.not_after"
)

// ServiceCollector is the service name of the error event the agent emits
// when a collection cycle fails.
const ServiceCollector = "collector"
