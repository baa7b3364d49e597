package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/pilotwatch/pilotwatch/pkg/types"
	"github.com/pilotwatch/pilotwatch/server/internal/config"
	"github.com/pilotwatch/pilotwatch/server/internal/danger"
	"github.com/pilotwatch/pilotwatch/server/internal/events"
)

const (
	defaultCooldown   = 5 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Built-in escalation rule names.
const (
	RuleDanger     = "danger"
	RuleHandoffDue = "handoff_due"
)

// Alert represents a single alert event produced by the engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	PilotID    string     `json:"pilot_id"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
}

// Engine evaluates alert rules against recorded vitals and danger state
// changes, and delivers webhook notifications when alerts fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	rules    []config.AlertRule
	webhooks []config.WebhookConfig
	active   map[string]*Alert    // key: "ruleName:pilotID"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts
	lastSeq  map[string]uint64    // newest event seq handled per stream

	client  *http.Client
	now     func() time.Time
	deliver func(Alert)
	onFire  func(Alert)
}

// New creates an Engine from the alert configuration. Rules with an
// unparseable condition are logged and skipped.
func New(cfg config.AlertsConfig) *Engine {
	e := &Engine{
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		lastSeq:  make(map[string]uint64),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
	e.deliver = func(a Alert) { go e.send(a) }
	e.Reload(cfg)
	return e
}

// OnTransition registers fn to be called with every fired or resolved alert,
// after the engine's lock is released. Used for metrics.
func (e *Engine) OnTransition(fn func(Alert)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onFire = fn
}

// Reload replaces rules and webhooks. Active alerts for rules that still
// exist keep firing; alerts for removed rules are resolved.
func (e *Engine) Reload(cfg config.AlertsConfig) {
	rules := make([]config.AlertRule, 0, len(cfg.Rules))
	names := make(map[string]bool, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if !validCondition(r.Condition) {
			slog.Warn("alerts: invalid condition, rule skipped", "rule", r.Name, "condition", r.Condition)
			continue
		}
		rules = append(rules, r)
		names[r.Name] = true
	}

	e.mu.Lock()
	e.rules = rules
	e.webhooks = cfg.Webhooks
	resolved := e.resolveMatchingLocked(func(a *Alert) bool {
		return !isEscalation(a.RuleName) && !names[a.RuleName]
	})
	e.mu.Unlock()

	for _, a := range resolved {
		e.emit(a)
	}
	slog.Info("alerts: rules loaded", "rules", len(rules), "webhooks", len(cfg.Webhooks))
}

// Handle is an events.Handler: recorded vitals are evaluated against the
// rules and danger changes drive the escalation alerts.
//
// Vitals and danger events that arrive after a newer one of the same stream
// (by Seq) are ignored.
func (e *Engine) Handle(ev events.Event) {
	switch ev.Type {
	case events.VitalsRecorded:
		if v, ok := ev.Data.(types.VitalsSnapshot); ok && !e.stale("vitals:"+ev.PilotID, ev.Seq) {
			e.Evaluate(ev.PilotID, v)
		}
	case events.DangerChanged:
		if st, ok := ev.Data.(danger.State); ok && !e.stale("danger", ev.Seq) {
			e.ObserveDanger(st)
		}
	case events.PilotStandby:
		e.ResolvePilot(ev.PilotID)
	case events.MissionEnded:
		e.ObserveDanger(danger.State{})
		e.resolveMatching(func(a *Alert) bool { return !isEscalation(a.RuleName) })
	}
}

// stale reports whether seq is older than the newest event already handled
// on stream, and records it otherwise. Events without a Seq are never stale.
func (e *Engine) stale(stream string, seq uint64) bool {
	if seq == 0 {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if seq <= e.lastSeq[stream] {
		return true
	}
	e.lastSeq[stream] = seq
	return false
}

// ResolvePilot resolves every firing alert raised for pilotID.
func (e *Engine) ResolvePilot(pilotID string) {
	e.resolveMatching(func(a *Alert) bool { return a.PilotID == pilotID })
}

func (e *Engine) resolveMatching(match func(*Alert) bool) {
	e.mu.Lock()
	resolved := e.resolveMatchingLocked(match)
	e.mu.Unlock()

	for _, a := range resolved {
		e.emit(a)
	}
}

// resolveMatchingLocked resolves active alerts for which match is true, in
// key order. Must be called with e.mu held.
func (e *Engine) resolveMatchingLocked(match func(*Alert) bool) []Alert {
	keys := make([]string, 0, len(e.active))
	for key, a := range e.active {
		if match(a) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	out := make([]Alert, 0, len(keys))
	for _, key := range keys {
		out = append(out, e.resolveLocked(key, e.active[key]))
	}
	return out
}

func isEscalation(rule string) bool {
	return rule == RuleDanger || rule == RuleHandoffDue
}

// Evaluate tests all configured rules against one pilot's snapshot.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
func (e *Engine) Evaluate(pilotID string, v types.VitalsSnapshot) {
	e.mu.Lock()
	rules := e.rules
	var changed []Alert
	for _, rule := range rules {
		key := rule.Name + ":" + pilotID
		fires, value := evalCondition(rule.Condition, v)
		if fires {
			sev := rule.Severity
			if sev == "" {
				sev = "warning"
			}
			msg := fmt.Sprintf("[%s] %s fired for %s: %s (value %.2f)", sev, rule.Name, pilotID, rule.Condition, value)
			if a, ok := e.fireLocked(key, rule.Name, pilotID, sev, msg, value, rule.Cooldown); ok {
				changed = append(changed, a)
			}
		} else if a, ok := e.active[key]; ok {
			changed = append(changed, e.resolveLocked(key, a))
		}
	}
	e.mu.Unlock()

	for _, a := range changed {
		e.emit(a)
	}
}

// ObserveDanger raises or resolves the escalation alerts.
func (e *Engine) ObserveDanger(st danger.State) {
	e.mu.Lock()
	var changed []Alert
	e.escalateLocked(&changed, RuleDanger, st.PilotID, st.Alerting, "critical",
		fmt.Sprintf("[critical] heart rate %d bpm outside safe range for %s", st.HeartRate, st.PilotID), float64(st.HeartRate))
	e.escalateLocked(&changed, RuleHandoffDue, st.PilotID, st.HandoffDue, "critical",
		fmt.Sprintf("[critical] autopilot hand-off due for %s", st.PilotID), 0)
	e.mu.Unlock()

	for _, a := range changed {
		e.emit(a)
	}
}

// escalateLocked keeps a single alert per escalation rule regardless of
// pilot. Must be called with e.mu held.
func (e *Engine) escalateLocked(changed *[]Alert, rule, pilotID string, on bool, sev, msg string, value float64) {
	var (
		curKey string
		cur    *Alert
	)
	for key, a := range e.active {
		if a.RuleName == rule {
			curKey, cur = key, a
			break
		}
	}
	if !on {
		if cur != nil {
			*changed = append(*changed, e.resolveLocked(curKey, cur))
		}
		return
	}
	if cur != nil && cur.PilotID == pilotID {
		return
	}
	if cur != nil {
		*changed = append(*changed, e.resolveLocked(curKey, cur))
	}
	if a, ok := e.fireLocked(rule+":"+pilotID, rule, pilotID, sev, msg, value, -1); ok {
		*changed = append(*changed, a)
	}
}

// fireLocked records a firing alert unless one is already active for key or
// the key is within its cooldown. A zero cooldown means the default; a
// negative one disables it. Must be called with e.mu held.
func (e *Engine) fireLocked(key, rule, pilotID, sev, msg string, value float64, cooldown time.Duration) (Alert, bool) {
	if _, ok := e.active[key]; ok {
		return Alert{}, false
	}
	if cooldown == 0 {
		cooldown = defaultCooldown
	}
	now := e.now()
	if last, ok := e.lastFire[key]; ok && cooldown > 0 && now.Sub(last) <= cooldown {
		return Alert{}, false
	}
	a := &Alert{
		ID:       fmt.Sprintf("%s:%d", key, now.UnixNano()),
		RuleName: rule,
		PilotID:  pilotID,
		Severity: sev,
		Message:  msg,
		Value:    value,
		FiredAt:  now,
		State:    StateFiring,
	}
	e.active[key] = a
	e.lastFire[key] = now
	return *a, true
}

// resolveLocked moves an active alert into history. Must be called with
// e.mu held.
func (e *Engine) resolveLocked(key string, a *Alert) Alert {
	resolved := e.now()
	a.State = StateResolved
	a.ResolvedAt = &resolved
	delete(e.active, key)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	return *a
}

func (e *Engine) emit(a Alert) {
	if a.State == StateFiring {
		slog.Warn("alert fired", "rule", a.RuleName, "pilot", a.PilotID, "value", a.Value, "severity", a.Severity)
	} else {
		slog.Info("alert resolved", "rule", a.RuleName, "pilot", a.PilotID)
	}
	e.mu.Lock()
	fn := e.onFire
	e.mu.Unlock()
	if fn != nil {
		fn(a)
	}
	e.deliver(a)
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, newest first.
func (e *Engine) Active() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]Alert, 0, len(e.active))
	for _, a := range e.active {
		out = append(out, *a)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}
