package receiver

import (
	"errors"
	"strconv"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/tems/tems/pkg/risk"
	"github.com/tems/tems/pkg/types"
	"github.com/tems/tems/server/internal/compute"
)

// Decode validates every log record in req and groups the resulting events
// into one update per source, in order of first appearance.
//
// A record's source is its resource's tems.source.id, falling back to the
// record's host. Host and service come from the record attributes, falling
// back to the resource's. The first invalid record fails the whole request
// with a *risk.ValidationError whose Index counts records across the request.
// The second result is the number of records seen.
func Decode(req *collogspb.ExportLogsServiceRequest) ([]compute.Update, int, error) {
	var (
		updates []compute.Update
		index   = make(map[string]int)
		n       int
	)
	for _, rl := range req.GetResourceLogs() {
		res := attrMap(rl.GetResource().GetAttributes())
		cert := certStatus(res)

		for _, sl := range rl.GetScopeLogs() {
			for _, lr := range sl.GetLogRecords() {
				i := n
				n++

				rec := attrMap(lr.GetAttributes())
				raw := risk.RawEvent{
					Timestamp: recordTime(lr),
					Host:      firstNonEmpty(rec[types.AttrHostName], res[types.AttrHostName]),
					Service:   firstNonEmpty(rec[types.AttrServiceName], res[types.AttrServiceName]),
					Level:     recordLevel(lr),
					Message:   anyString(lr.GetBody()),
				}
				ev, err := risk.Parse(raw)
				if err != nil {
					var ve *risk.ValidationError
					if errors.As(err, &ve) {
						ve.Index = i
					}
					return nil, n, err
				}

				id := firstNonEmpty(res[types.AttrSourceID], ev.Host)
				k, ok := index[id]
				if !ok {
					k = len(updates)
					index[id] = k
					updates = append(updates, compute.Update{
						SourceID:   id,
						SourceType: res[types.AttrSourceType],
						Vendor:     res[types.AttrVendor],
						Cert:       cert,
					})
				}
				updates[k].Events = append(updates[k].Events, ev)
			}
		}

		// A source that reported no records still gets an update so its
		// window is rescored and its certificate status refreshed.
		if id := res[types.AttrSourceID]; id != "" {
			if _, ok := index[id]; !ok {
				index[id] = len(updates)
				updates = append(updates, compute.Update{
					SourceID:   id,
					SourceType: res[types.AttrSourceType],
					Vendor:     res[types.AttrVendor],
					Cert:       cert,
				})
			}
		}
	}
	return updates, n, nil
}

// recordTime returns the record's event time, or its observed time when the
// producer did not set one, as RFC 3339. Unset times yield "".
func recordTime(lr *logspb.LogRecord) string {
	ns := lr.GetTimeUnixNano()
	if ns == 0 {
		ns = lr.GetObservedTimeUnixNano()
	}
	if ns == 0 {
		return ""
	}
	return time.Unix(0, int64(ns)).UTC().Format(time.RFC3339Nano)
}

// recordLevel prefers the severity text when it names a known level and
// otherwise derives the level from the OTLP severity number range.
func recordLevel(lr *logspb.LogRecord) string {
	text := lr.GetSeverityText()
	if _, ok := risk.ParseLevel(text); ok {
		return text
	}
	switch n := lr.GetSeverityNumber(); {
	case n == logspb.SeverityNumber_SEVERITY_NUMBER_UNSPECIFIED:
		return text
	case n < logspb.SeverityNumber_SEVERITY_NUMBER_INFO:
		return risk.LevelDebug.String()
	case n < logspb.SeverityNumber_SEVERITY_NUMBER_WARN:
		return risk.LevelInfo.String()
	case n < logspb.SeverityNumber_SEVERITY_NUMBER_ERROR:
		return risk.LevelWarning.String()
	case n < logspb.SeverityNumber_SEVERITY_NUMBER_FATAL:
		return risk.LevelError.String()
	default:
		return risk.LevelCritical.String()
	}
}

// anyString renders a log body. Non-string values use their JSON form.
func anyString(v *commonpb.AnyValue) string {
	if v == nil {
		return ""
	}
	switch x := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return x.StringValue
	case *commonpb.AnyValue_IntValue:
		return strconv.FormatInt(x.IntValue, 10)
	case *commonpb.AnyValue_DoubleValue:
		return strconv.FormatFloat(x.DoubleValue, 'g', -1, 64)
	case *commonpb.AnyValue_BoolValue:
		return strconv.FormatBool(x.BoolValue)
	case nil:
		return ""
	default:
		b, err := protojson.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// attrMap flattens string-valued attributes. Other value types are ignored.
func attrMap(kvs []*commonpb.KeyValue) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		if s, ok := kv.GetValue().GetValue().(*commonpb.AnyValue_StringValue); ok {
			m[kv.GetKey()] = s.StringValue
		}
	}
	return m
}

func certStatus(res map[string]string) *types.CertStatus {
	status := res[types.AttrCertStatus]
	if status == "" {
		return nil
	}
	days, _ := strconv.Atoi(res[types.AttrCertDaysLeft])
	return &types.CertStatus{
		Status:   status,
		DaysLeft: int32(days),
		Issuer:   res[types.AttrCertIssuer],
		NotAfter: res[types.AttrCertNotAfter],
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
