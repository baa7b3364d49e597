package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pilotwatch/pilotwatch/pkg/types"
	"github.com/pilotwatch/pilotwatch/server/internal/danger"
	"github.com/pilotwatch/pilotwatch/server/internal/debrief"
	"github.com/pilotwatch/pilotwatch/server/internal/events"
	"github.com/pilotwatch/pilotwatch/server/internal/roster"
	"github.com/pilotwatch/pilotwatch/server/internal/session"
)

const dangerBuffer = 64

// Options configures a Dashboard.
type Options struct {
	Roster *roster.Roster
	Bus    *events.Bus

	// CountdownTick is the autopilot countdown interval. Zero disables the
	// background ticker.
	CountdownTick time.Duration

	// Now and NewID are injectable for tests.
	Now   func() time.Time
	NewID func() string
}

// State is the full view pushed to dashboard clients.
type State struct {
	Mission types.MissionSession `json:"mission"`
	Pilots  []types.Pilot        `json:"pilots"`
	Danger  danger.State         `json:"danger"`
}

// Dashboard coordinates the roster, the current mission session and the
// danger monitor.
type Dashboard struct {
	mu      sync.Mutex
	roster  *roster.Roster
	machine *session.Machine
	monitor *danger.Monitor
	bus     *events.Bus
	now     func() time.Time
	newID   func() string

	seq      atomic.Uint64
	dangerCh chan queuedDanger

	hookMu    sync.RWMutex
	finalized []func(types.MissionSession)
}

// New returns a dashboard with a fresh, not-yet-started mission.
func New(opts Options) *Dashboard {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	d := &Dashboard{
		roster:   opts.Roster,
		bus:      opts.Bus,
		now:      opts.Now,
		newID:    opts.NewID,
		dangerCh: make(chan queuedDanger, dangerBuffer),
	}
	d.machine = session.New(d.newID(), d.now)
	d.monitor = danger.NewMonitor(opts.CountdownTick, d.queueDanger)
	return d
}

// OnFinalized registers fn to receive a copy of the mission every time an
// ended mission changes (end, debrief, notes, recommendations).
func (d *Dashboard) OnFinalized(fn func(types.MissionSession)) {
	d.hookMu.Lock()
	defer d.hookMu.Unlock()
	d.finalized = append(d.finalized, fn)
}

// Run publishes danger changes until ctx is cancelled.
func (d *Dashboard) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-d.dangerCh:
			d.bus.Publish(events.Event{
				Seq:       q.seq,
				Type:      events.DangerChanged,
				MissionID: d.missionID(),
				PilotID:   q.st.PilotID,
				Time:      q.at,
				Data:      q.st,
			})
		}
	}
}

type queuedDanger struct {
	seq uint64
	at  time.Time
	st  danger.State
}

// queueDanger is the monitor's change callback. The sequence number is taken
// here, so a change caused by a vitals sample orders after that sample's
// event.
func (d *Dashboard) queueDanger(st danger.State) {
	q := queuedDanger{seq: d.seq.Add(1), at: d.now(), st: st}
	select {
	case d.dangerCh <- q:
	default:
		slog.Warn("dashboard: danger event dropped", "alerting", st.Alerting, "seq", q.seq)
	}
}

// --- reads ---

func (d *Dashboard) missionID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.machine.MissionID()
}

// Mission returns a deep copy of the current mission.
func (d *Dashboard) Mission() types.MissionSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.machine.Snapshot()
}

// Danger returns the current danger state.
func (d *Dashboard) Danger() danger.State {
	return d.monitor.State()
}

// Pilots returns the roster, optionally filtered by status ("" for all).
func (d *Dashboard) Pilots(status types.PilotStatus) []types.Pilot {
	if status == "" {
		return d.roster.List()
	}
	return d.roster.ListByStatus(status)
}

// Pilot returns one roster entry.
func (d *Dashboard) Pilot(id string) (types.Pilot, error) {
	return d.roster.Get(id)
}

// State returns a consistent view of mission, roster and danger.
func (d *Dashboard) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{
		Mission: d.machine.Snapshot(),
		Pilots:  d.roster.List(),
		Danger:  d.monitor.State(),
	}
}

// --- mutations ---

// tx runs fn under the lock, then publishes the events fn queued and, if
// finalize is set, hands the ended mission to the finalized hooks.
func (d *Dashboard) tx(fn func(emit func(events.Type, string, any)) (finalize bool, err error)) error {
	var pending []events.Event
	d.mu.Lock()
	missionID := d.machine.MissionID()
	emit := func(t events.Type, pilotID string, data any) {
		pending = append(pending, events.Event{Seq: d.seq.Add(1), Type: t, MissionID: missionID, PilotID: pilotID, Time: d.now(), Data: data})
	}
	finalize, err := fn(emit)
	var snap types.MissionSession
	if finalize && err == nil {
		snap = d.machine.Snapshot()
	}
	d.mu.Unlock()

	for _, e := range pending {
		d.bus.Publish(e)
	}
	if finalize && err == nil {
		d.hookMu.RLock()
		hooks := d.finalized
		d.hookMu.RUnlock()
		for _, h := range hooks {
			h(snap.Clone())
		}
	}
	return err
}

// observe must be called with d.mu held.
func (d *Dashboard) observe() {
	id, v, ok := d.machine.LastActive()
	if !ok {
		d.monitor.Observe("", nil)
		return
	}
	d.monitor.Observe(id, &v)
}

// StartMission opens a mission. If the previous mission has ended a new one
// with a fresh id replaces it. Pilots already marked active on the roster are
// activated in roster order.
func (d *Dashboard) StartMission() (types.MissionSession, error) {
	var out types.MissionSession
	err := d.tx(func(emit func(events.Type, string, any)) (bool, error) {
		if d.machine.State() == types.SessionEnded {
			d.machine = session.New(d.newID(), d.now)
		}
		if err := d.machine.Start(); err != nil {
			return false, err
		}
		emit(events.MissionStarted, "", nil)
		for _, p := range d.roster.ListByStatus(types.StatusActive) {
			if _, err := d.machine.ActivatePilot(p); err != nil {
				return false, fmt.Errorf("dashboard: activate %s: %w", p.ID, err)
			}
			emit(events.PilotActivated, p.ID, nil)
		}
		d.observe()
		out = d.machine.Snapshot()
		return false, nil
	})
	if err != nil {
		return types.MissionSession{}, err
	}
	slog.Info("dashboard: mission started", "mission", out.MissionID, "pilots", len(out.ActivePilots))
	return out, nil
}

// SetPilotStatus changes a pilot's roster status. While a mission is in
// progress an active pilot is tracked and a standby pilot dropped.
func (d *Dashboard) SetPilotStatus(id string, status types.PilotStatus) (types.Pilot, error) {
	var out types.Pilot
	err := d.tx(func(emit func(events.Type, string, any)) (bool, error) {
		p, err := d.roster.SetStatus(id, status)
		if err != nil {
			return false, err
		}
		out = p
		if d.machine.State() != types.SessionInProgress {
			return false, nil
		}
		switch status {
		case types.StatusActive:
			added, err := d.machine.ActivatePilot(p)
			if err != nil {
				return false, err
			}
			if added {
				emit(events.PilotActivated, id, nil)
			}
		case types.StatusStandby:
			removed, err := d.machine.StandbyPilot(id)
			if err != nil {
				return false, err
			}
			if removed {
				emit(events.PilotStandby, id, nil)
			}
		}
		d.observe()
		return false, nil
	})
	return out, err
}

// RecordVitals appends a snapshot to an active pilot's history and makes it
// the pilot's current roster vitals.
func (d *Dashboard) RecordVitals(id string, v types.VitalsSnapshot) (types.VitalsSnapshot, error) {
	return d.Ingest(id, func(types.VitalsSnapshot) types.VitalsSnapshot { return v })
}

// Ingest merges a partial sample into the pilot's current vitals and records
// the result. merge receives the current snapshot and returns the new one.
func (d *Dashboard) Ingest(id string, merge func(current types.VitalsSnapshot) types.VitalsSnapshot) (types.VitalsSnapshot, error) {
	var out types.VitalsSnapshot
	err := d.tx(func(emit func(events.Type, string, any)) (bool, error) {
		p, err := d.roster.Get(id)
		if err != nil {
			return false, err
		}
		stored, err := d.machine.RecordVitals(id, merge(p.Vitals))
		if err != nil {
			return false, err
		}
		if _, err := d.roster.UpdateVitals(id, stored); err != nil {
			return false, err
		}
		out = stored
		emit(events.VitalsRecorded, id, stored)
		d.observe()
		return false, nil
	})
	return out, err
}

// BeginAutopilotCountdown starts the hand-off countdown.
func (d *Dashboard) BeginAutopilotCountdown() (danger.State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.machine.State() != types.SessionInProgress {
		return danger.State{}, fmt.Errorf("%w: countdown while %s", session.ErrInvalidTransition, d.machine.State())
	}
	st, err := d.monitor.BeginCountdown()
	if err != nil {
		return st, err
	}
	slog.Warn("dashboard: autopilot countdown started", "pilot", st.PilotID, "heart_rate", st.HeartRate)
	return st, nil
}

// EndMission stops the danger monitor and ends the mission.
func (d *Dashboard) EndMission() (types.MissionSession, error) {
	var out types.MissionSession
	err := d.tx(func(emit func(events.Type, string, any)) (bool, error) {
		if st := d.machine.State(); st != types.SessionInProgress {
			return false, fmt.Errorf("%w: end while %s", session.ErrInvalidTransition, st)
		}
		d.monitor.Stop()
		ended, err := d.machine.End()
		if err != nil {
			return false, err
		}
		out = ended
		emit(events.MissionEnded, "", Summarize(ended))
		return true, nil
	})
	if err != nil {
		return types.MissionSession{}, err
	}
	slog.Info("dashboard: mission ended", "mission", out.MissionID, "duration_ms", *out.MissionDurationMs)
	return out, nil
}

// AttachDebrief validates and stores a pilot's debrief, then refreshes the
// pilot's success score on the roster.
func (d *Dashboard) AttachDebrief(id string, m types.DebriefMetrics) (types.DebriefValues, error) {
	var out types.DebriefValues
	err := d.tx(func(emit func(events.Type, string, any)) (bool, error) {
		v, err := debrief.Attach(d.machine, id, m)
		if err != nil {
			return false, err
		}
		out = v
		if _, err := d.roster.Recompute(id, &v); err != nil {
			slog.Warn("dashboard: recompute after debrief", "pilot", id, "err", err)
		}
		emit(events.DebriefAttached, id, v)
		return true, nil
	})
	return out, err
}

// Recompute refreshes a pilot's roster metrics from current vitals and, once
// attached, the pilot's debrief.
func (d *Dashboard) Recompute(id string) (types.Pilot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var values *types.DebriefValues
	snap := d.machine.Snapshot()
	if ps := snap.Pilot(id); ps != nil && ps.DebriefMetrics != nil {
		if v, err := debrief.Parse(*ps.DebriefMetrics); err == nil {
			values = &v
		}
	}
	return d.roster.Recompute(id, values)
}

// SetCommanderFeedback sets mission-level feedback.
func (d *Dashboard) SetCommanderFeedback(text string) error {
	return d.tx(func(func(events.Type, string, any)) (bool, error) {
		if err := d.machine.SetCommanderFeedback(text); err != nil {
			return false, err
		}
		return d.machine.State() == types.SessionEnded, nil
	})
}

// SetCommanderNotes sets the commander's notes on one pilot.
func (d *Dashboard) SetCommanderNotes(id, text string) error {
	return d.tx(func(func(events.Type, string, any)) (bool, error) {
		if err := d.machine.SetCommanderNotes(id, text); err != nil {
			return false, err
		}
		return d.machine.State() == types.SessionEnded, nil
	})
}

// AddRecommendations records generated recommendations on the mission
// identified by missionID. It fails if that mission is no longer current.
func (d *Dashboard) AddRecommendations(missionID string, recs []types.AIRecommendation) error {
	return d.tx(func(emit func(events.Type, string, any)) (bool, error) {
		if id := d.machine.MissionID(); id != missionID {
			return false, fmt.Errorf("%w: mission %s is not current", session.ErrNotFound, missionID)
		}
		if err := d.machine.AddRecommendations(recs); err != nil {
			return false, err
		}
		emit(events.RecommendationsGenerated, "", len(recs))
		return d.machine.State() == types.SessionEnded, nil
	})
}

// Summary is the compact mission description carried by mission.ended.
type Summary struct {
	MissionID  string   `json:"mission_id"`
	DurationMs int64    `json:"duration_ms"`
	Duration   string   `json:"duration"`
	Pilots     []string `json:"pilots"`
}

// Summarize describes an ended mission.
func Summarize(m types.MissionSession) Summary {
	s := Summary{MissionID: m.MissionID, Pilots: make([]string, 0, len(m.ActivePilots))}
	if m.MissionDurationMs != nil {
		s.DurationMs = *m.MissionDurationMs
	}
	s.Duration = session.FormatDuration(s.DurationMs)
	for _, p := range m.ActivePilots {
		s.Pilots = append(s.Pilots, p.PilotID)
	}
	return s
}
