package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/tems/tems/server/internal/compute"
	"github.com/tems/tems/server/internal/config"
	"github.com/tems/tems/server/internal/metrics"
)

const (
	defaultCooldown = 15 * time.Minute
	maxHistoryLen   = 200
	recentWindow    = time.Hour
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	SourceID   string     `json:"source_id"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
}

type rule struct {
	config.AlertRule
	cond condition
}

// Engine evaluates alert rules against scored results and delivers webhook
// notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []rule
	webhooks []config.WebhookConfig
	metrics  *metrics.Metrics
	client   *http.Client
	now      func() time.Time

	mu       sync.Mutex
	active   map[string]*Alert    // key: "ruleName:sourceID"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts
	wg       sync.WaitGroup       // in-flight deliveries
}

// New creates an Engine from the server alert configuration. It fails when a
// rule's condition does not parse. An Engine with no rules is valid and
// Evaluate becomes a no-op.
func New(cfg config.AlertsConfig, m *metrics.Metrics) (*Engine, error) {
	e := &Engine{
		webhooks: cfg.Webhooks,
		metrics:  m,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
	}
	for _, r := range cfg.Rules {
		c, err := parseCondition(r.Condition)
		if err != nil {
			return nil, fmt.Errorf("alerts: rule %q: %w", r.Name, err)
		}
		if r.Severity == "" {
			r.Severity = "warning"
		}
		if r.Cooldown <= 0 {
			r.Cooldown = defaultCooldown
		}
		e.rules = append(e.rules, rule{AlertRule: r, cond: c})
	}
	return e, nil
}

// Evaluate tests all configured rules against res.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
func (e *Engine) Evaluate(res *compute.Result) {
	if len(e.rules) == 0 {
		return
	}

	now := e.now()
	for _, r := range e.rules {
		key := r.Name + ":" + res.SourceID
		fires, value := r.cond.eval(res)

		if fires {
			e.fire(r, res.SourceID, key, value, now)
		} else {
			e.resolve(r, res.SourceID, key, now)
		}
	}
}

func (e *Engine) fire(r rule, sourceID, key string, value float64, now time.Time) {
	e.mu.Lock()
	if _, firing := e.active[key]; firing || now.Sub(e.lastFire[key]) <= r.Cooldown {
		e.mu.Unlock()
		return
	}
	a := &Alert{
		ID:       fmt.Sprintf("%s:%s:%d", r.Name, sourceID, now.UnixNano()),
		RuleName: r.Name,
		SourceID: sourceID,
		Severity: r.Severity,
		Value:    value,
		Message: fmt.Sprintf("[%s] %s fired on %s: %s (value %.2f)",
			r.Severity, r.Name, sourceID, r.Condition, value),
		FiredAt: now,
		State:   StateFiring,
	}
	e.active[key] = a
	e.lastFire[key] = now
	alertCopy := *a
	e.mu.Unlock()

	slog.Warn("alerts: fired",
		"rule", r.Name,
		"source", sourceID,
		"value", value,
		"severity", r.Severity,
	)
	e.metrics.AlertFired(r.Name, r.Severity)
	e.dispatch(&alertCopy)
}

func (e *Engine) resolve(r rule, sourceID, key string, now time.Time) {
	e.mu.Lock()
	a, ok := e.active[key]
	if !ok {
		e.mu.Unlock()
		return
	}
	resolved := now
	a.State = StateResolved
	a.ResolvedAt = &resolved
	delete(e.active, key)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	alertCopy := *a
	e.mu.Unlock()

	slog.Info("alerts: resolved", "rule", r.Name, "source", sourceID)
	e.dispatch(&alertCopy)
}

// Forget resolves every alert still firing for sourceID and drops its
// cooldown state. It is called when the source's result expires, since no
// further Evaluate will arrive to clear it.
func (e *Engine) Forget(sourceID string) {
	now := e.now()
	for _, r := range e.rules {
		key := r.Name + ":" + sourceID
		e.resolve(r, sourceID, key, now)

		e.mu.Lock()
		delete(e.lastFire, key)
		e.mu.Unlock()
	}
}

func (e *Engine) dispatch(a *Alert) {
	if len(e.webhooks) == 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.deliver(a)
	}()
}

// Wait blocks until in-flight webhook deliveries finish.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindow)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FiredAt.After(out[j].FiredAt)
	})
	return out
}

// FiringFor returns the number of firing alerts for sourceID.
func (e *Engine) FiringFor(sourceID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	var n int
	for _, a := range e.active {
		if a.SourceID == sourceID {
			n++
		}
	}
	return n
}
