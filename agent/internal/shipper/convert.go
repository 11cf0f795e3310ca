package shipper

import (
	"strconv"
	"time"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"

	"github.com/tems/tems/agent/internal/collector"
	"github.com/tems/tems/pkg/risk"
	"github.com/tems/tems/pkg/types"
)

// scopeName identifies the agent as the instrumentation scope of shipped logs.
const scopeName = "github.com/tems/tems/agent"

// severityNumbers maps levels onto the OTLP severity ranges.
var severityNumbers = map[risk.Level]logspb.SeverityNumber{
	risk.LevelDebug:    logspb.SeverityNumber_SEVERITY_NUMBER_DEBUG,
	risk.LevelInfo:     logspb.SeverityNumber_SEVERITY_NUMBER_INFO,
	risk.LevelWarning:  logspb.SeverityNumber_SEVERITY_NUMBER_WARN,
	risk.LevelError:    logspb.SeverityNumber_SEVERITY_NUMBER_ERROR,
	risk.LevelCritical: logspb.SeverityNumber_SEVERITY_NUMBER_FATAL,
}

// toResourceLogs converts one collection batch into an OTLP ResourceLogs.
// Source identity and certificate status travel as resource attributes; each
// event becomes one LogRecord carrying its own host and service.
func toResourceLogs(b *collector.Batch) *logspb.ResourceLogs {
	attrs := []*commonpb.KeyValue{
		strAttr(types.AttrSourceID, b.SourceID),
		strAttr(types.AttrSourceType, b.SourceType),
		strAttr(types.AttrHostName, b.Host),
	}
	if b.Vendor != "" {
		attrs = append(attrs, strAttr(types.AttrVendor, b.Vendor))
	}
	if c := b.Cert; c != nil {
		attrs = append(attrs,
			strAttr(types.AttrCertStatus, c.Status),
			strAttr(types.AttrCertDaysLeft, strconv.Itoa(int(c.DaysLeft))),
			strAttr(types.AttrCertIssuer, c.Issuer),
			strAttr(types.AttrCertNotAfter, c.NotAfter),
		)
	}

	observed := uint64(b.CollectedAt.UnixNano())
	records := make([]*logspb.LogRecord, 0, len(b.Events))
	for _, ev := range b.Events {
		records = append(records, toLogRecord(ev, observed))
	}

	return &logspb.ResourceLogs{
		Resource: &resourcepb.Resource{Attributes: attrs},
		ScopeLogs: []*logspb.ScopeLogs{{
			Scope:      &commonpb.InstrumentationScope{Name: scopeName},
			LogRecords: records,
		}},
	}
}

func toLogRecord(ev risk.LogEvent, observed uint64) *logspb.LogRecord {
	return &logspb.LogRecord{
		TimeUnixNano:         unixNano(ev.Timestamp),
		ObservedTimeUnixNano: observed,
		SeverityNumber:       severityNumbers[ev.Level],
		SeverityText:         ev.Level.String(),
		Body:                 &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: ev.Message}},
		Attributes: []*commonpb.KeyValue{
			strAttr(types.AttrHostName, ev.Host),
			strAttr(types.AttrServiceName, ev.Service),
		},
	}
}

// unixNano clamps times before the epoch to 0, which OTLP reads as unset.
func unixNano(t time.Time) uint64 {
	if t.Before(time.Unix(0, 0)) {
		return 0
	}
	return uint64(t.UnixNano())
}

func strAttr(key, val string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: val}},
	}
}
