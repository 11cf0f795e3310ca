package collector

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/tems/tems/agent/internal/config"
	"github.com/tems/tems/pkg/risk"
)

const selOutput = `   1 | 09/13/2024 | 12:34:56 | Critical | PSU1 input lost
   2 | 09/13/2024 | 12:35:00 | Warning | Fan2 lower non-critical going low
   3 | Pre-Init  | 0000000000 | OK | System boot
short | line
`

func TestParseSEL(t *testing.T) {
	now := time.Date(2024, 9, 14, 8, 0, 0, 0, time.UTC)
	entries := ParseSEL(selOutput, "node-1", now)
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	first := entries[0]
	if first.Record != 1 {
		t.Errorf("record = %d, want 1", first.Record)
	}
	ev, err := risk.Parse(first.Event)
	if err != nil {
		t.Fatalf("Parse(first) error = %v", err)
	}
	if !ev.Timestamp.Equal(time.Date(2024, 9, 13, 12, 34, 56, 0, time.UTC)) {
		t.Errorf("timestamp = %v", ev.Timestamp)
	}
	if ev.Level != risk.LevelCritical || ev.Service != ServiceIPMI || ev.Message != "PSU1 input lost" {
		t.Errorf("event = %+v", ev)
	}

	if entries[1].Event.Level != "warning" {
		t.Errorf("entry 2 level = %q, want warning", entries[1].Event.Level)
	}
	if entries[2].Event.Timestamp != now.Format(time.RFC3339Nano) {
		t.Errorf("bad date should fall back to now, got %q", entries[2].Event.Timestamp)
	}
	if entries[2].Event.Level != "info" {
		t.Errorf("OK should map to info, got %q", entries[2].Event.Level)
	}
}

const sensorOutput = `CPU Temp         | 45.000     | degrees C  | ok    | na        | 5.000
Fan1             | 300.000    | RPM        | cr    | na        | 400.000
PS2 Status       | 0x0        | discrete   | nr    | na        | na
VBAT             | 2.900      | Volts      | nc    | na        | 2.950
Intrusion        | na         | discrete   | na    | na        | na
`

func TestParseSensor(t *testing.T) {
	now := time.Date(2024, 9, 14, 8, 0, 0, 0, time.UTC)
	got := ParseSensor(sensorOutput, "node-1", now)
	if len(got) != 4 {
		t.Fatalf("got %d events, want 4 (na row skipped)", len(got))
	}
	wantLevels := []string{"info", "error", "critical", "warning"}
	for i, w := range wantLevels {
		if got[i].Level != w {
			t.Errorf("event[%d] level = %q, want %q", i, got[i].Level, w)
		}
		if got[i].Service != ServiceSensor {
			t.Errorf("event[%d] service = %q", i, got[i].Service)
		}
	}
	if got[1].Message != "Fan1: 300.000 RPM (cr)" {
		t.Errorf("message = %q", got[1].Message)
	}
}

// fakeRun returns canned outputs in order and records invocations.
type fakeRun struct {
	outputs [][]byte
	err     error
	calls   [][]string
	envs    [][]string
}

func (f *fakeRun) run(_ context.Context, name string, args, env []string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	f.envs = append(f.envs, env)
	if f.err != nil {
		return nil, f.err
	}
	out := f.outputs[0]
	if len(f.outputs) > 1 {
		f.outputs = f.outputs[1:]
	}
	return out, nil
}

func TestIPMICollector_SELWatermark(t *testing.T) {
	fr := &fakeRun{outputs: [][]byte{
		[]byte("1 | 09/13/2024 | 12:34:56 | Critical | PSU1 input lost\n"),
		[]byte("1 | 09/13/2024 | 12:34:56 | Critical | PSU1 input lost\n2 | 09/13/2024 | 12:40:00 | Warning | Fan2 low\n"),
		[]byte("1 | 09/14/2024 | 08:00:00 | OK | Log area reset/cleared\n"),
	}}
	c := &ipmiCollector{src: config.Source{ID: "local", Type: "ipmi", Host: "node-1"}, run: fr.run}

	counts := []int{1, 1, 1}
	for i, want := range counts {
		b, err := c.Collect(context.Background())
		if err != nil {
			t.Fatalf("cycle %d: Collect() error = %v", i, err)
		}
		if len(b.Events) != want {
			t.Errorf("cycle %d: got %d events, want %d", i, len(b.Events), want)
		}
	}
	if got := fr.calls[0]; !slices.Equal(got, []string{"ipmitool", "sel", "elist"}) {
		t.Errorf("command = %v", got)
	}
}

func TestIPMICollector_RemoteCommand(t *testing.T) {
	t.Setenv("TEST_IPMI_PASSWORD", "calvin")
	fr := &fakeRun{outputs: [][]byte{nil}}
	c := &ipmiCollector{
		src: config.Source{
			ID: "bmc", Type: "ipmi", Endpoint: "10.0.0.9",
			Auth: config.AuthConfig{Mode: "basic", Username: "admin", PasswordEnv: "TEST_IPMI_PASSWORD"},
		},
		run: fr.run,
	}
	if _, err := c.Collect(context.Background()); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	want := []string{"ipmitool", "-I", "lanplus", "-H", "10.0.0.9", "-U", "admin", "-E", "sel", "elist"}
	if !slices.Equal(fr.calls[0], want) {
		t.Errorf("command = %v, want %v", fr.calls[0], want)
	}
	if !slices.Equal(fr.envs[0], []string{"IPMI_PASSWORD=calvin"}) {
		t.Errorf("env = %v", fr.envs[0])
	}
	for _, a := range fr.calls[0] {
		if a == "calvin" {
			t.Error("password leaked onto the command line")
		}
	}
}

func TestIPMICollector_SensorMode(t *testing.T) {
	fr := &fakeRun{outputs: [][]byte{[]byte(sensorOutput)}}
	c := &ipmiCollector{
		src: config.Source{ID: "local", Type: "ipmi", Host: "node-1", Args: []string{"sensor"}},
		run: fr.run,
	}
	b, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	// ok readings are not events in sensor mode.
	if len(b.Events) != 3 {
		t.Fatalf("got %d events, want 3", len(b.Events))
	}
}

func TestIPMICollector_CommandFailure(t *testing.T) {
	fr := &fakeRun{err: errors.New("exec: \"ipmitool\": executable file not found in $PATH")}
	c := &ipmiCollector{src: config.Source{ID: "local", Type: "ipmi", Host: "node-1"}, run: fr.run}

	b, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if b.Err == nil || len(b.Events) != 1 || b.Events[0].Service != ServiceCollector {
		t.Errorf("failure batch = %+v", b)
	}
}
