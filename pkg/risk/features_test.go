package risk

import (
	"testing"
	"time"
)

func ev(host, service string, level Level) LogEvent {
	return LogEvent{
		Timestamp: time.Date(2024, 9, 13, 12, 0, 0, 0, time.UTC),
		Host:      host,
		Service:   service,
		Level:     level,
	}
}

func TestExtract_Empty(t *testing.T) {
	for _, in := range [][]LogEvent{nil, {}} {
		fv := Extract(in)
		if fv != (FeatureVector{}) {
			t.Errorf("Extract(%v) = %+v, want zero vector", in, fv)
		}
	}
}

func TestExtract_Counts(t *testing.T) {
	fv := Extract([]LogEvent{
		ev("h1", "power", LevelError),
		ev("h1", "power", LevelCritical),
		ev("h2", "cooling", LevelWarning),
		ev("h1", "agent", LevelInfo),
		ev("h2", "power", LevelDebug),
	})

	if fv.N != 5 {
		t.Errorf("N: got %d, want 5", fv.N)
	}
	if fv.ErrorCount != 1 {
		t.Errorf("ErrorCount: got %d, want 1", fv.ErrorCount)
	}
	if fv.CriticalCount != 1 {
		t.Errorf("CriticalCount: got %d, want 1", fv.CriticalCount)
	}
	if fv.WarningCount != 1 {
		t.Errorf("WarningCount: got %d, want 1", fv.WarningCount)
	}
	if fv.Severe() != 2 {
		t.Errorf("Severe: got %d, want 2", fv.Severe())
	}
	if fv.TopService != "power" || !almostEqual(fv.ServiceConcentration, 0.6, 1e-9) {
		t.Errorf("service: got %q %.2f, want power 0.60", fv.TopService, fv.ServiceConcentration)
	}
	if fv.TopHost != "h1" || !almostEqual(fv.HostConcentration, 0.6, 1e-9) {
		t.Errorf("host: got %q %.2f, want h1 0.60", fv.TopHost, fv.HostConcentration)
	}
}

func TestExtract_TieBreaksLexicographically(t *testing.T) {
	fv := Extract([]LogEvent{
		ev("zeta", "b", LevelInfo),
		ev("alpha", "a", LevelInfo),
	})
	if fv.TopHost != "alpha" {
		t.Errorf("TopHost: got %q, want alpha", fv.TopHost)
	}
	if fv.TopService != "a" {
		t.Errorf("TopService: got %q, want a", fv.TopService)
	}
	if !almostEqual(fv.HostConcentration, 0.5, 1e-9) {
		t.Errorf("HostConcentration: got %.2f, want 0.50", fv.HostConcentration)
	}
}

func TestExtract_TimeSpanIgnoresOrder(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := ev("h", "s", LevelInfo)
	a.Timestamp = t0.Add(time.Hour)
	b := ev("h", "s", LevelInfo)
	b.Timestamp = t0
	c := ev("h", "s", LevelInfo)
	c.Timestamp = t0.Add(30 * time.Minute)

	fv := Extract([]LogEvent{a, b, c})
	if !fv.FirstSeen.Equal(t0) {
		t.Errorf("FirstSeen: got %v, want %v", fv.FirstSeen, t0)
	}
	if !fv.LastSeen.Equal(t0.Add(time.Hour)) {
		t.Errorf("LastSeen: got %v, want %v", fv.LastSeen, t0.Add(time.Hour))
	}
}
