package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

// Metrics holds the server's self-instrumentation. A nil *Metrics is valid
// and records nothing, so components can be built without it in tests.
type Metrics struct {
	reg *prometheus.Registry

	exports       *prometheus.CounterVec
	records       *prometheus.CounterVec
	predictions   *prometheus.CounterVec
	scoreDuration prometheus.Histogram
	sourceScore   *prometheus.GaugeVec
	sourceEvents  *prometheus.GaugeVec
	sourceLabel   *prometheus.GaugeVec
	alertsFired   *prometheus.CounterVec
	wsClients     prometheus.Gauge
}

// New creates the metric set on its own registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tems_receiver_exports_total",
			Help: "OTLP export requests handled, by transport and outcome.",
		}, []string{"transport", "outcome"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tems_receiver_records_total",
			Help: "Log records received, by outcome.",
		}, []string{"outcome"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tems_predict_requests_total",
			Help: "Synchronous /predict requests, by HTTP status code.",
		}, []string{"code"}),
		scoreDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tems_score_duration_seconds",
			Help:    "Time spent scoring one batch or window.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		sourceScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tems_source_score",
			Help: "Latest risk score per source.",
		}, []string{"source"}),
		sourceEvents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tems_source_window_events",
			Help: "Events in each source's scoring window.",
		}, []string{"source"}),
		sourceLabel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tems_source_degraded",
			Help: "1 when the source's latest label is degraded, else 0.",
		}, []string{"source"}),
		alertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tems_alerts_fired_total",
			Help: "Alerts fired, by rule and severity.",
		}, []string{"rule", "severity"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tems_ws_clients",
			Help: "Connected WebSocket stream clients.",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.exports, m.records, m.predictions, m.scoreDuration,
		m.sourceScore, m.sourceEvents, m.sourceLabel,
		m.alertsFired, m.wsClients,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Export counts one OTLP export request and its records.
func (m *Metrics) Export(transport string, accepted bool, records int) {
	if m == nil {
		return
	}
	outcome := OutcomeAccepted
	if !accepted {
		outcome = OutcomeRejected
	}
	m.exports.WithLabelValues(transport, outcome).Inc()
	m.records.WithLabelValues(outcome).Add(float64(records))
}

// Predict counts one /predict response.
func (m *Metrics) Predict(code int) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(strconv.Itoa(code)).Inc()
}

// ObserveScore records how long one scoring call took.
func (m *Metrics) ObserveScore(d time.Duration) {
	if m == nil {
		return
	}
	m.scoreDuration.Observe(d.Seconds())
}

// Source publishes a source's latest score, window size and label.
func (m *Metrics) Source(id string, score float64, events int, degraded bool) {
	if m == nil {
		return
	}
	m.sourceScore.WithLabelValues(id).Set(score)
	m.sourceEvents.WithLabelValues(id).Set(float64(events))
	var d float64
	if degraded {
		d = 1
	}
	m.sourceLabel.WithLabelValues(id).Set(d)
}

// ForgetSource removes a source's series after it expired.
func (m *Metrics) ForgetSource(id string) {
	if m == nil {
		return
	}
	m.sourceScore.DeleteLabelValues(id)
	m.sourceEvents.DeleteLabelValues(id)
	m.sourceLabel.DeleteLabelValues(id)
}

// AlertFired counts one fired alert.
func (m *Metrics) AlertFired(rule, severity string) {
	if m == nil {
		return
	}
	m.alertsFired.WithLabelValues(rule, severity).Inc()
}

// WSClients sets the number of connected stream clients.
func (m *Metrics) WSClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}
