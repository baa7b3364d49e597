package api

import (
	"github.com/pilotwatch/pilotwatch/pkg/types"
	"github.com/pilotwatch/pilotwatch/server/internal/recommend"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status       string             `json:"status"`
	MissionID    string             `json:"mission_id"`
	MissionState types.SessionState `json:"mission_state"`
	PilotCount   int                `json:"pilot_count"`
	ActiveCount  int                `json:"active_count"`
	Alerting     bool               `json:"alerting"`
	AlertCount   int                `json:"alert_count"`
	GeneratedAt  string             `json:"generated_at"` // RFC3339
}

// PilotResponse is one roster entry with diagnostic hints.
type PilotResponse struct {
	types.Pilot
	Diagnostics []DiagnosticHint `json:"diagnostics"`
}

// MissionResponse is a mission with its duration rendered as HH:MM:SS.
type MissionResponse struct {
	types.MissionSession
	Duration string `json:"duration,omitempty"`
}

// DebriefResponse is the payload for PUT /mission/pilots/{id}/debrief.
type DebriefResponse struct {
	PilotID string               `json:"pilot_id"`
	Metrics types.DebriefMetrics `json:"metrics"`
	Values  types.DebriefValues  `json:"values"`
	Success float64              `json:"success"`
}

// RecommendationsResponse is the payload for POST /mission/recommendations.
type RecommendationsResponse struct {
	MissionID string `json:"mission_id"`
	recommend.Result
	Records []types.AIRecommendation `json:"records"`
}

type statusRequest struct {
	Status types.PilotStatus `json:"status"`
}

type feedbackRequest struct {
	Feedback string `json:"feedback"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
