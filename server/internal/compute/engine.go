package compute

import (
	"slices"
	"sync"
	"time"

	"github.com/tems/tems/pkg/risk"
	"github.com/tems/tems/pkg/types"
)

// uptimeWindow is the number of recent updates tracked for uptime %.
const uptimeWindow = 20

// Update is one source's contribution from a single OTLP export.
type Update struct {
	SourceID   string
	SourceType string
	Vendor     string
	Cert       *types.CertStatus
	Events     []risk.LogEvent
}

// Result is the scored state of one source's window after an update.
type Result struct {
	SourceID   string
	SourceType string
	Vendor     string
	Timestamp  time.Time

	Prediction risk.Prediction

	// EventCount is the number of events in the window that was scored.
	EventCount int

	// UptimePct is the share of recent updates without a collector failure.
	UptimePct float64

	// LastError is the message of the most recent collector failure event,
	// empty once a clean update arrives.
	LastError string

	Cert *types.CertStatus
}

// Window bounds a source's event window.
type Window struct {
	MaxEvents int
	MaxAge    time.Duration
}

// Engine keeps one append-only event window per source and rescores it from
// scratch on every update.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	window   Window
	pipeline *risk.Pipeline

	mu     sync.Mutex
	states map[string]*sourceState
}

// NewEngine returns an Engine that scores windows with p.
func NewEngine(w Window, p *risk.Pipeline) *Engine {
	if p == nil {
		p = risk.New()
	}
	return &Engine{window: w, pipeline: p, states: make(map[string]*sourceState)}
}

// Process appends u.Events to the source's window, prunes events beyond the
// window bounds, and returns the window's new score.
//
// now is passed explicitly so callers (and tests) control the clock without
// sleeping. Use time.Now() in production.
func (e *Engine) Process(u Update, now time.Time) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stateFor(u.SourceID)
	if u.SourceType != "" {
		st.sourceType = u.SourceType
	}
	if u.Vendor != "" {
		st.vendor = u.Vendor
	}
	if u.Cert != nil {
		st.cert = u.Cert
	}

	failure := lastCollectorFailure(u.Events)
	st.recordUpdate(failure == "")
	st.lastError = failure

	for _, ev := range u.Events {
		st.events = append(st.events, arrival{event: ev, at: now})
	}
	st.prune(e.window, now)

	scored := make([]risk.LogEvent, len(st.events))
	for i, a := range st.events {
		scored[i] = a.event
	}
	return &Result{
		SourceID:   u.SourceID,
		SourceType: st.sourceType,
		Vendor:     st.vendor,
		Timestamp:  now,
		Prediction: e.pipeline.RunEvents(scored),
		EventCount: len(scored),
		UptimePct:  st.uptimePct(),
		LastError:  st.lastError,
		Cert:       st.cert,
	}
}

// Forget drops a source's window, e.g. after its result expired from the store.
func (e *Engine) Forget(sourceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.states, sourceID)
}

// Sources returns the number of windows currently held.
func (e *Engine) Sources() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.states)
}

// arrival is a windowed event stamped with the server time it was received.
// Age is measured from arrival because BMC clocks are often unsynchronised or
// report local time as UTC.
type arrival struct {
	event risk.LogEvent
	at    time.Time
}

// sourceState holds one source's window and metadata.
type sourceState struct {
	events     []arrival
	sourceType string
	vendor     string
	cert       *types.CertStatus
	lastError  string
	history    []bool // recent update outcomes, newest last
}

func (e *Engine) stateFor(id string) *sourceState {
	if st, ok := e.states[id]; ok {
		return st
	}
	st := &sourceState{}
	e.states[id] = st
	return st
}

// prune removes events that arrived more than MaxAge before now, then keeps
// only the newest MaxEvents by arrival. Relative order is preserved.
func (st *sourceState) prune(w Window, now time.Time) {
	if w.MaxAge > 0 {
		cutoff := now.Add(-w.MaxAge)
		st.events = slices.DeleteFunc(st.events, func(a arrival) bool {
			return a.at.Before(cutoff)
		})
	}
	if w.MaxEvents > 0 && len(st.events) > w.MaxEvents {
		st.events = slices.Clone(st.events[len(st.events)-w.MaxEvents:])
	}
}

func (st *sourceState) recordUpdate(success bool) {
	if len(st.history) >= uptimeWindow {
		st.history = st.history[1:]
	}
	st.history = append(st.history, success)
}

func (st *sourceState) uptimePct() float64 {
	if len(st.history) == 0 {
		return 100
	}
	var ok int
	for _, s := range st.history {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(st.history)) * 100
}

// lastCollectorFailure returns the message of the last collector error event
// in events, or "".
func lastCollectorFailure(events []risk.LogEvent) string {
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev.Service == types.ServiceCollector && ev.Level >= risk.LevelError {
			return ev.Message
		}
	}
	return ""
}
