package risk

import "time"

// FeatureVector is the numeric summary of one batch. It is recomputed for
// every batch and never stored.
type FeatureVector struct {
	// N is the number of events in the batch.
	N int `json:"n"`

	// ErrorCount and CriticalCount count events at exactly those levels.
	ErrorCount    int `json:"error_count"`
	CriticalCount int `json:"critical_count"`
	WarningCount  int `json:"warning_count"`

	// TopService is the most frequent service; ServiceConcentration is the
	// fraction of the batch it accounts for. Ties go to the name that sorts
	// first. Both are zero for an empty batch.
	TopService           string  `json:"top_service,omitempty"`
	ServiceConcentration float64 `json:"service_concentration"`

	// TopHost and HostConcentration are the same measure over hosts.
	TopHost           string  `json:"top_host,omitempty"`
	HostConcentration float64 `json:"host_concentration"`

	// FirstSeen and LastSeen bound the batch in time. They are informational:
	// no score input depends on gaps between events.
	FirstSeen time.Time `json:"first_seen,omitzero"`
	LastSeen  time.Time `json:"last_seen,omitzero"`
}

// Severe returns the number of events at error level or above.
func (f FeatureVector) Severe() int {
	return f.ErrorCount + f.CriticalCount
}

// Extract reduces events to a FeatureVector. Order does not matter and an
// empty or nil slice yields the zero vector, the zero-risk baseline.
func Extract(events []LogEvent) FeatureVector {
	var fv FeatureVector
	if len(events) == 0 {
		return fv
	}

	services := make(map[string]int)
	hosts := make(map[string]int)

	for _, ev := range events {
		fv.N++
		switch ev.Level {
		case LevelWarning:
			fv.WarningCount++
		case LevelError:
			fv.ErrorCount++
		case LevelCritical:
			fv.CriticalCount++
		case LevelDebug, LevelInfo:
		}
		services[ev.Service]++
		hosts[ev.Host]++

		if fv.FirstSeen.IsZero() || ev.Timestamp.Before(fv.FirstSeen) {
			fv.FirstSeen = ev.Timestamp
		}
		if ev.Timestamp.After(fv.LastSeen) {
			fv.LastSeen = ev.Timestamp
		}
	}

	var n int
	fv.TopService, n = mostFrequent(services)
	fv.ServiceConcentration = float64(n) / float64(fv.N)
	fv.TopHost, n = mostFrequent(hosts)
	fv.HostConcentration = float64(n) / float64(fv.N)

	return fv
}

// mostFrequent returns the key with the highest count, preferring the
// lexicographically smallest key on ties so the result is deterministic.
func mostFrequent(counts map[string]int) (string, int) {
	var best string
	var bestN int
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best, bestN
}
