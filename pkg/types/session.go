package types

import "time"

// SessionState is the lifecycle state of a mission session.
// Transitions are one-way: not_started -> in_progress -> ended.
type SessionState string

const (
	SessionNotStarted SessionState = "not_started"
	SessionInProgress SessionState = "in_progress"
	SessionEnded      SessionState = "ended"
)

// DebriefMetrics is the operator-entered post-mission summary for one pilot.
// Values are numeric strings as typed by the operator; see debrief.Parse for
// the typed form.
type DebriefMetrics struct {
	CriticalSituations string `json:"critical_situations"`
	AvgResponseTime    string `json:"avg_response_time"`
	TimeInHighGs       string `json:"time_in_high_gs"`
}

// DebriefValues is the parsed, numeric form of DebriefMetrics.
type DebriefValues struct {
	CriticalSituations float64 `json:"critical_situations"`
	AvgResponseTimeMs  float64 `json:"avg_response_time_ms"`
	TimeInHighGsMs     float64 `json:"time_in_high_gs_ms"`
}

// PilotSession is one pilot's participation in a mission: the vitals history
// recorded while active and the debrief attached after the mission ends.
type PilotSession struct {
	PilotID          string     `json:"pilot_id"`
	Name             string     `json:"name"`
	Age              int        `json:"age"`
	Gender           Gender     `json:"gender"`
	InitialReadiness float64    `json:"initial_readiness"`
	FinalPerformance *float64   `json:"final_performance,omitempty"`
	CommanderNotes   string     `json:"commander_notes,omitempty"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`

	// VitalsHistory is append-only and strictly ordered by Timestamp.
	VitalsHistory []VitalsSnapshot `json:"vitals_history"`

	DebriefMetrics *DebriefMetrics `json:"debrief_metrics,omitempty"`
}

// Latest returns the newest snapshot in the history, or false if empty.
func (p *PilotSession) Latest() (VitalsSnapshot, bool) {
	if len(p.VitalsHistory) == 0 {
		return VitalsSnapshot{}, false
	}
	return p.VitalsHistory[len(p.VitalsHistory)-1], true
}

// AIRecommendation is a recommendation record attached to a finished mission.
type AIRecommendation struct {
	PilotID        string    `json:"pilot_id"`
	Recommendation string    `json:"recommendation"`
	Priority       string    `json:"priority"` // HIGH | MEDIUM | LOW
	Category       string    `json:"category"` // HEALTH | PERFORMANCE | TRAINING
	Timestamp      time.Time `json:"timestamp"`
}

// MissionSession is the bounded time window and pilot set monitored for one
// mission. EndTime and MissionDurationMs are set together, once, when the
// mission ends.
type MissionSession struct {
	MissionID         string             `json:"mission_id"`
	State             SessionState       `json:"state"`
	StartTime         time.Time          `json:"start_time"`
	EndTime           *time.Time         `json:"end_time,omitempty"`
	MissionDurationMs *int64             `json:"mission_duration_ms,omitempty"`
	ActivePilots      []PilotSession     `json:"active_pilots"`
	CommanderFeedback string             `json:"commander_feedback,omitempty"`
	AIRecommendations []AIRecommendation `json:"ai_recommendations,omitempty"`
}

// Pilot returns the session for pilotID, or nil.
func (m *MissionSession) Pilot(pilotID string) *PilotSession {
	for i := range m.ActivePilots {
		if m.ActivePilots[i].PilotID == pilotID {
			return &m.ActivePilots[i]
		}
	}
	return nil
}

// Clone returns a deep copy of m. Callers may freely modify the result.
func (m MissionSession) Clone() MissionSession {
	out := m
	if m.EndTime != nil {
		t := *m.EndTime
		out.EndTime = &t
	}
	if m.MissionDurationMs != nil {
		d := *m.MissionDurationMs
		out.MissionDurationMs = &d
	}
	out.ActivePilots = make([]PilotSession, len(m.ActivePilots))
	for i, p := range m.ActivePilots {
		out.ActivePilots[i] = p.clone()
	}
	if m.AIRecommendations != nil {
		out.AIRecommendations = append([]AIRecommendation(nil), m.AIRecommendations...)
	}
	return out
}

func (p PilotSession) clone() PilotSession {
	out := p
	out.VitalsHistory = append([]VitalsSnapshot(nil), p.VitalsHistory...)
	if p.EndTime != nil {
		t := *p.EndTime
		out.EndTime = &t
	}
	if p.FinalPerformance != nil {
		f := *p.FinalPerformance
		out.FinalPerformance = &f
	}
	if p.DebriefMetrics != nil {
		d := *p.DebriefMetrics
		out.DebriefMetrics = &d
	}
	return out
}
