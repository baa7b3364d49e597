package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pilotwatch/pilotwatch/pkg/types"
	"github.com/pilotwatch/pilotwatch/server/internal/compute"
)

// Sentinel errors.
var (
	ErrInvalidTransition = errors.New("session: invalid transition")
	ErrNotFound          = errors.New("session: pilot not found")
	ErrAlreadySet        = errors.New("session: already set")
	ErrOutOfOrderVitals  = errors.New("session: out-of-order vitals")
)

// Machine owns one MissionSession. It is safe for concurrent use.
type Machine struct {
	mu  sync.RWMutex
	s   types.MissionSession
	now func() time.Time
}

// New returns a machine in the not_started state. If now is nil, time.Now
// is used.
func New(missionID string, now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{
		s: types.MissionSession{
			MissionID:    missionID,
			State:        types.SessionNotStarted,
			ActivePilots: []types.PilotSession{},
		},
		now: now,
	}
}

// MissionID returns the id of the mission this machine owns.
func (m *Machine) MissionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.MissionID
}

// State returns the current lifecycle state.
func (m *Machine) State() types.SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.State
}

// Start opens the session.
func (m *Machine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("start", types.SessionNotStarted); err != nil {
		return err
	}
	m.s.State = types.SessionInProgress
	m.s.StartTime = m.now()
	m.s.ActivePilots = []types.PilotSession{}
	return nil
}

// ActivatePilot begins tracking p. The pilot's current vitals are stamped
// with the current time, scored, and become the first history entry.
// Activating a pilot that is already tracked is a no-op; added reports
// whether a new PilotSession was appended.
func (m *Machine) ActivatePilot(p types.Pilot) (added bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("activate pilot", types.SessionInProgress); err != nil {
		return false, err
	}
	if m.s.Pilot(p.ID) != nil {
		return false, nil
	}

	now := m.now()
	first := p.Vitals
	first.Timestamp = now
	m.s.ActivePilots = append(m.s.ActivePilots, types.PilotSession{
		PilotID:          p.ID,
		Name:             p.Name,
		Age:              p.Age,
		Gender:           p.Gender,
		InitialReadiness: p.Metrics.Readiness,
		StartTime:        now,
		VitalsHistory:    []types.VitalsSnapshot{compute.Score(first)},
	})
	return true, nil
}

// StandbyPilot stops tracking a pilot and discards its history. removed is
// false when the pilot was not tracked.
func (m *Machine) StandbyPilot(pilotID string) (removed bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("standby pilot", types.SessionInProgress); err != nil {
		return false, err
	}
	for i := range m.s.ActivePilots {
		if m.s.ActivePilots[i].PilotID == pilotID {
			m.s.ActivePilots = append(m.s.ActivePilots[:i], m.s.ActivePilots[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// RecordVitals scores v and appends it to the pilot's history. A zero
// timestamp is replaced with the current time. The returned snapshot is the
// one stored.
func (m *Machine) RecordVitals(pilotID string, v types.VitalsSnapshot) (types.VitalsSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("record vitals", types.SessionInProgress); err != nil {
		return types.VitalsSnapshot{}, err
	}
	ps := m.s.Pilot(pilotID)
	if ps == nil {
		return types.VitalsSnapshot{}, fmt.Errorf("%w: %s is not active", ErrNotFound, pilotID)
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = m.now()
	}
	if last, ok := ps.Latest(); ok && !v.Timestamp.After(last.Timestamp) {
		return types.VitalsSnapshot{}, fmt.Errorf("%w: %s at %s is not after %s",
			ErrOutOfOrderVitals, pilotID, v.Timestamp.Format(time.RFC3339Nano), last.Timestamp.Format(time.RFC3339Nano))
	}
	scored := compute.Score(v)
	ps.VitalsHistory = append(ps.VitalsHistory, scored)
	return scored, nil
}

// End closes the session and returns the finalized copy. end_time and
// mission_duration_ms are set together; every tracked pilot gets its
// end_time and the performance score of its newest snapshot.
func (m *Machine) End() (types.MissionSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("end", types.SessionInProgress); err != nil {
		return types.MissionSession{}, err
	}
	end := m.now()
	dur := end.Sub(m.s.StartTime).Milliseconds()
	m.s.State = types.SessionEnded
	m.s.EndTime = &end
	m.s.MissionDurationMs = &dur
	for i := range m.s.ActivePilots {
		ps := &m.s.ActivePilots[i]
		pe := end
		ps.EndTime = &pe
		if last, ok := ps.Latest(); ok {
			perf := last.PerformanceScore
			ps.FinalPerformance = &perf
		}
	}
	return m.s.Clone(), nil
}

// AttachDebrief stores a pilot's debrief metrics. It is legal only after the
// session has ended, and only once per pilot.
func (m *Machine) AttachDebrief(pilotID string, metrics types.DebriefMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("attach debrief", types.SessionEnded); err != nil {
		return err
	}
	ps := m.s.Pilot(pilotID)
	if ps == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, pilotID)
	}
	if ps.DebriefMetrics != nil {
		return fmt.Errorf("%w: debrief for %s", ErrAlreadySet, pilotID)
	}
	ps.DebriefMetrics = &metrics
	return nil
}

// SetCommanderFeedback replaces the mission-level commander feedback.
func (m *Machine) SetCommanderFeedback(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("set feedback", types.SessionInProgress, types.SessionEnded); err != nil {
		return err
	}
	m.s.CommanderFeedback = text
	return nil
}

// SetCommanderNotes replaces the commander's notes on one pilot.
func (m *Machine) SetCommanderNotes(pilotID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("set notes", types.SessionInProgress, types.SessionEnded); err != nil {
		return err
	}
	ps := m.s.Pilot(pilotID)
	if ps == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, pilotID)
	}
	ps.CommanderNotes = text
	return nil
}

// AddRecommendations stores recommendation records on the mission. Records
// already held for a pilot named in recs are replaced; other pilots keep
// theirs.
func (m *Machine) AddRecommendations(recs []types.AIRecommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("add recommendations", types.SessionInProgress, types.SessionEnded); err != nil {
		return err
	}
	replaced := make(map[string]bool, len(recs))
	for _, r := range recs {
		replaced[r.PilotID] = true
	}
	kept := make([]types.AIRecommendation, 0, len(m.s.AIRecommendations)+len(recs))
	for _, r := range m.s.AIRecommendations {
		if !replaced[r.PilotID] {
			kept = append(kept, r)
		}
	}
	m.s.AIRecommendations = append(kept, recs...)
	return nil
}

// Snapshot returns a deep copy of the session.
func (m *Machine) Snapshot() types.MissionSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.Clone()
}

// LastActive returns the most recently activated pilot still tracked and
// that pilot's newest snapshot. ok is false when no pilot is tracked or the
// session is not in progress.
func (m *Machine) LastActive() (pilotID string, latest types.VitalsSnapshot, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.s.State != types.SessionInProgress || len(m.s.ActivePilots) == 0 {
		return "", types.VitalsSnapshot{}, false
	}
	ps := &m.s.ActivePilots[len(m.s.ActivePilots)-1]
	latest, ok = ps.Latest()
	return ps.PilotID, latest, ok
}

// require must be called with m.mu held.
func (m *Machine) require(op string, allowed ...types.SessionState) error {
	for _, s := range allowed {
		if m.s.State == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, op, m.s.State)
}
