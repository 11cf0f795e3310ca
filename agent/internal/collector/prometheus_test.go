package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tems/tems/agent/internal/config"
	"github.com/tems/tems/pkg/risk"
)

// exporterMetrics is a realistic subset of ipmi_exporter output.
const exporterMetrics = `
# HELP ipmi_up '1' if a scrape of the IPMI device was successful, '0' otherwise.
# TYPE ipmi_up gauge
ipmi_up{collector="bmc"} 1
ipmi_up{collector="sel"} 0
# HELP ipmi_sensor_state Indicates the severity of the state reported by an IPMI sensor (0=nominal, 1=warning, 2=critical).
# TYPE ipmi_sensor_state gauge
ipmi_sensor_state{id="10",name="PS1 Status",type="Power Supply"} 0
ipmi_sensor_state{id="11",name="PS2 Status",type="Power Supply"} 2
ipmi_sensor_state{id="12",name="Drive 0",type="Drive Slot"} 1
# HELP ipmi_fan_speed_state Reported state of a fan speed sensor (0=nominal, 1=warning, 2=critical).
# TYPE ipmi_fan_speed_state gauge
ipmi_fan_speed_state{id="20",name="Fan1"} 1
# HELP ipmi_temperature_celsius Temperature reading in degree Celsius.
# TYPE ipmi_temperature_celsius gauge
ipmi_temperature_celsius{id="30",name="CPU Temp"} 45
`

func TestPromCollector_Collect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(exporterMetrics))
	}))
	defer srv.Close()

	c := &promCollector{
		src: config.Source{
			ID: "exp", Type: "prometheus", Endpoint: srv.URL, Host: "node-1",
			Families: []string{"ipmi_sensor_state", "ipmi_fan_speed_state"},
		},
		client: srv.Client(),
	}

	b, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if b.Err != nil {
		t.Fatalf("b.Err = %v", b.Err)
	}
	if len(b.Events) != 4 {
		for _, ev := range b.Events {
			t.Logf("event: %+v", ev)
		}
		t.Fatalf("got %d events, want 4", len(b.Events))
	}

	up := b.Events[0]
	if up.Service != ServiceExporter || up.Level != risk.LevelError || !strings.Contains(up.Message, `collector="sel"`) {
		t.Errorf("up event = %+v", up)
	}
	if ev := b.Events[1]; ev.Service != "Power Supply" || ev.Level != risk.LevelCritical {
		t.Errorf("PS2 event = %+v", ev)
	}
	if ev := b.Events[2]; ev.Service != "Drive Slot" || ev.Level != risk.LevelWarning {
		t.Errorf("drive event = %+v", ev)
	}
	if ev := b.Events[3]; ev.Service != "fan_speed" || ev.Level != risk.LevelWarning {
		t.Errorf("fan event = %+v", ev)
	}
}

func TestPromCollector_DefaultFamiliesIgnoreReadings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(exporterMetrics))
	}))
	defer srv.Close()

	c := &promCollector{
		src:    config.Source{ID: "exp", Type: "prometheus", Endpoint: srv.URL},
		client: srv.Client(),
	}
	b, _ := c.Collect(context.Background())
	// ipmi_up{sel}=0 plus the two non-nominal ipmi_sensor_state samples.
	if len(b.Events) != 3 {
		t.Errorf("got %d events, want 3", len(b.Events))
	}
}

func TestPromCollector_FetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := &promCollector{
		src:    config.Source{ID: "exp", Type: "prometheus", Endpoint: srv.URL},
		client: srv.Client(),
	}
	b, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if b.Err == nil {
		t.Fatal("expected b.Err for 503")
	}
	if len(b.Events) != 1 || b.Events[0].Level != risk.LevelError {
		t.Errorf("events = %+v", b.Events)
	}
}

func TestMetricEvents_Timestamps(t *testing.T) {
	mfs, err := parseMetrics(strings.NewReader("redfish_health{resource=\"psu\"} 2 1726230896000\n"))
	if err != nil {
		t.Fatalf("parseMetrics() error = %v", err)
	}
	now := time.Date(2024, 9, 14, 0, 0, 0, 0, time.UTC)
	got := MetricEvents(mfs, []string{"redfish_health"}, "h", now)
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Timestamp != "2024-09-13T12:34:56Z" {
		t.Errorf("timestamp = %q, want the sample timestamp", got[0].Timestamp)
	}
	if got[0].Service != "health" {
		t.Errorf("service = %q, want health", got[0].Service)
	}
}

func TestMetricService(t *testing.T) {
	tests := map[string]string{
		"ipmi_sensor_state":      "sensor",
		"ipmi_temperature_state": "temperature",
		"redfish_health":         "health",
		"custom_thing":           "custom_thing",
	}
	for fam, want := range tests {
		if got := metricService(fam, nil); got != want {
			t.Errorf("metricService(%q) = %q, want %q", fam, got, want)
		}
	}
}
