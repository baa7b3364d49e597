package danger

import (
	"errors"
	"sync"
	"time"

	"github.com/pilotwatch/pilotwatch/pkg/types"
)

// Heart rate bounds. Values strictly outside [MinSafeHeartRate, MaxSafeHeartRate]
// are dangerous.
const (
	MinSafeHeartRate = 40
	MaxSafeHeartRate = 180
)

// CountdownSeconds is the length of the autopilot hand-off countdown.
const CountdownSeconds = 15

// DefaultTick is the countdown decrement interval.
const DefaultTick = time.Second

// ErrNotAlerting is returned by BeginCountdown when no danger is active.
var ErrNotAlerting = errors.New("danger: not alerting")

// Dangerous reports whether hr is outside the safe range.
func Dangerous(hr int) bool {
	return hr > MaxSafeHeartRate || hr < MinSafeHeartRate
}

// State is the monitor's externally visible state.
type State struct {
	Alerting  bool   `json:"alerting"`
	PilotID   string `json:"pilot_id,omitempty"`
	HeartRate int    `json:"heart_rate,omitempty"`

	// Countdown is nil when no countdown is running.
	Countdown  *int `json:"autopilot_countdown"`
	HandoffDue bool `json:"handoff_due"`
}

func (s State) clone() State {
	if s.Countdown != nil {
		c := *s.Countdown
		s.Countdown = &c
	}
	return s
}

func (s State) equal(o State) bool {
	if s.Alerting != o.Alerting || s.PilotID != o.PilotID || s.HeartRate != o.HeartRate || s.HandoffDue != o.HandoffDue {
		return false
	}
	if (s.Countdown == nil) != (o.Countdown == nil) {
		return false
	}
	return s.Countdown == nil || *s.Countdown == *o.Countdown
}

// Monitor holds the danger state. It is safe for concurrent use.
type Monitor struct {
	mu       sync.Mutex
	state    State
	interval time.Duration
	stop     chan struct{} // closes the running ticker; nil when none
	onChange func(State)
}

// NewMonitor returns an idle monitor. onChange, if non-nil, is called with a
// copy of the new state after every change, outside the monitor's lock.
func NewMonitor(interval time.Duration, onChange func(State)) *Monitor {
	return &Monitor{interval: interval, onChange: onChange}
}

// State returns a copy of the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Observe re-evaluates the state from the newest snapshot of the last
// activated pilot. A nil snapshot means no pilot is active.
func (m *Monitor) Observe(pilotID string, latest *types.VitalsSnapshot) State {
	return m.update(func(s *State) {
		if latest == nil || !Dangerous(latest.HeartRate) {
			m.stopTicker()
			*s = State{}
			return
		}
		s.Alerting = true
		s.PilotID = pilotID
		s.HeartRate = latest.HeartRate
	})
}

// BeginCountdown starts (or restarts) the hand-off countdown at
// CountdownSeconds.
func (m *Monitor) BeginCountdown() (State, error) {
	var err error
	st := m.update(func(s *State) {
		if !s.Alerting {
			err = ErrNotAlerting
			return
		}
		n := CountdownSeconds
		s.Countdown = &n
		s.HandoffDue = false
		m.startTicker()
	})
	return st, err
}

// Tick decrements a running countdown by one. It does nothing when no
// countdown is running or it has already reached 0.
func (m *Monitor) Tick() State {
	st, _ := m.tick(nil)
	return st
}

// Stop cancels any countdown and resets the monitor to idle.
func (m *Monitor) Stop() {
	m.update(func(s *State) {
		m.stopTicker()
		*s = State{}
	})
}

// update applies fn under the lock and notifies on change.
func (m *Monitor) update(fn func(*State)) State {
	m.mu.Lock()
	prev := m.state.clone()
	fn(&m.state)
	next := m.state.clone()
	m.mu.Unlock()

	if m.onChange != nil && !prev.equal(next) {
		m.onChange(next.clone())
	}
	return next
}

// tick decrements the countdown. owner identifies the ticker goroutine
// calling it; a ticker that is no longer current is told to exit.
func (m *Monitor) tick(owner chan struct{}) (st State, keepRunning bool) {
	keepRunning = true
	st = m.update(func(s *State) {
		if owner != nil && m.stop != owner {
			keepRunning = false
			return
		}
		if s.Countdown == nil || *s.Countdown <= 0 {
			return
		}
		n := *s.Countdown - 1
		s.Countdown = &n
		if n == 0 {
			s.HandoffDue = true
			m.stopTicker()
			keepRunning = false
		}
	})
	return st, keepRunning
}

// startTicker must be called with m.mu held.
func (m *Monitor) startTicker() {
	m.stopTicker()
	if m.interval <= 0 {
		return
	}
	stop := make(chan struct{})
	m.stop = stop
	go m.run(stop, m.interval)
}

// stopTicker must be called with m.mu held.
func (m *Monitor) stopTicker() {
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
}

func (m *Monitor) run(stop chan struct{}, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if _, ok := m.tick(stop); !ok {
				return
			}
		}
	}
}
