package collector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/tems/tems/agent/internal/config"
	"github.com/tems/tems/pkg/risk"
)

// ServiceExporter is the service of events raised by an exporter's *_up gauge.
const ServiceExporter = "exporter"

// Gauge state values shared by ipmi_exporter and redfish_exporter.
const (
	stateNominal  = 0
	stateWarning  = 1
	stateCritical = 2
)

type promCollector struct {
	src    config.Source
	client *http.Client
}

// Collect scrapes an exporter's /metrics endpoint and turns non-nominal
// sensor and health states into events. Nominal samples produce nothing.
func (c *promCollector) Collect(ctx context.Context) (*Batch, error) {
	now := time.Now().UTC()
	b := newBatch(c.src, now)

	mfs, err := fetchMetrics(ctx, c.client, c.src.Endpoint)
	if err != nil {
		err = fmt.Errorf("prometheus collect %q: %w", c.src.ID, err)
		slog.Warn("collector: exporter fetch failed", "source", c.src.ID, "err", err)
		b.fail(err)
		return b, nil
	}

	b.add(MetricEvents(mfs, c.src.GaugeFamilies(), b.Host, now)...)
	return b, nil
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	body, err := get(ctx, client, url, string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return parseMetrics(io.LimitReader(body, maxResponseBytes))
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// MetricEvents converts state gauges from families into events for host.
// A sample of 1 is a warning and 2 or more is critical. Every *_up gauge in
// the exposition with a value of 0 yields an error event. Families are
// walked in name order so output is deterministic.
func MetricEvents(mfs map[string]*dto.MetricFamily, families []string, host string, now time.Time) []risk.RawEvent {
	var out []risk.RawEvent

	names := make([]string, 0, len(mfs))
	for name := range mfs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !strings.HasSuffix(name, "_up") {
			continue
		}
		for _, m := range mfs[name].GetMetric() {
			v, ok := sampleValue(m)
			if !ok || v != 0 {
				continue
			}
			out = append(out, risk.RawEvent{
				Timestamp: sampleTime(m, now),
				Host:      host,
				Service:   ServiceExporter,
				Level:     risk.LevelError.String(),
				Message:   name + formatLabels(m) + " is 0",
			})
		}
	}

	for _, fam := range families {
		mf := mfs[fam]
		if mf == nil {
			continue
		}
		for _, m := range mf.GetMetric() {
			v, ok := sampleValue(m)
			if !ok || v <= stateNominal {
				continue
			}
			level := risk.LevelCritical
			if v < stateCritical {
				level = risk.LevelWarning
			}
			out = append(out, risk.RawEvent{
				Timestamp: sampleTime(m, now),
				Host:      host,
				Service:   metricService(fam, m),
				Level:     level.String(),
				Message:   fmt.Sprintf("%s%s state %g", fam, formatLabels(m), v),
			})
		}
	}
	return out
}

func sampleValue(m *dto.Metric) (float64, bool) {
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue(), true
	case m.Untyped != nil:
		return m.Untyped.GetValue(), true
	default:
		return 0, false
	}
}

func sampleTime(m *dto.Metric, now time.Time) string {
	if ms := m.GetTimestampMs(); ms > 0 {
		return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
	}
	return now.Format(time.RFC3339Nano)
}

// metricService prefers the exporter's sensor type label, then trims the
// family name to its subject: ipmi_fan_speed_state -> fan_speed.
func metricService(family string, m *dto.Metric) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == "type" && lp.GetValue() != "" {
			return lp.GetValue()
		}
	}
	s := family
	for _, p := range []string{"ipmi_", "redfish_"} {
		s = strings.TrimPrefix(s, p)
	}
	s = strings.TrimSuffix(s, "_state")
	if s == "" {
		return family
	}
	return s
}

func formatLabels(m *dto.Metric) string {
	lps := m.GetLabel()
	if len(lps) == 0 {
		return ""
	}
	parts := make([]string, 0, len(lps))
	for _, lp := range lps {
		parts = append(parts, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
