package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pilotwatch/pilotwatch/pkg/types"
	"github.com/pilotwatch/pilotwatch/server/internal/alerts"
	"github.com/pilotwatch/pilotwatch/server/internal/dashboard"
	"github.com/pilotwatch/pilotwatch/server/internal/debrief"
	"github.com/pilotwatch/pilotwatch/server/internal/ingest"
	"github.com/pilotwatch/pilotwatch/server/internal/recommend"
	"github.com/pilotwatch/pilotwatch/server/internal/session"
	"github.com/pilotwatch/pilotwatch/server/internal/store"
)

const (
	maxBodyBytes        = 1 << 20
	defaultMissionLimit = 50
)

// Archive is the read side of the mission archive.
type Archive interface {
	Get(ctx context.Context, missionID string) (types.MissionSession, error)
	List(ctx context.Context, limit int) ([]types.MissionSession, error)
}

// AlertSource lists current alerts.
type AlertSource interface {
	Active() []alerts.Alert
}

// Recommender produces recommendations for a finalized mission.
type Recommender interface {
	Generate(ctx context.Context, reqs []recommend.Request) (recommend.Result, error)
}

// Deps are the collaborators the API reads from and writes to. Archive,
// Alerts, Recommender and Auth are optional.
type Deps struct {
	Dashboard   *dashboard.Dashboard
	Ingester    *ingest.Ingester
	Store       *store.Store
	Archive     Archive
	Alerts      AlertSource
	Recommender Recommender
	Auth        func(http.Handler) http.Handler
	Now         func() time.Time
}

// Handler serves the /api/v1 endpoints.
type Handler struct {
	Deps
}

// New creates the router. Mount it at /api/v1.
func New(d Deps) chi.Router {
	if d.Now == nil {
		d.Now = time.Now
	}
	h := &Handler{Deps: d}

	r := chi.NewRouter()
	r.Get("/health", h.health)

	r.Group(func(r chi.Router) {
		if d.Auth != nil {
			r.Use(d.Auth)
		}
		r.Get("/state", h.state)

		r.Route("/pilots", func(r chi.Router) {
			r.Get("/", h.listPilots)
			r.Get("/{id}", h.getPilot)
			r.Put("/{id}/status", h.setPilotStatus)
			r.Post("/{id}/recompute", h.recomputePilot)
			r.Post("/{id}/vitals", h.recordVitals)
		})

		r.Route("/mission", func(r chi.Router) {
			r.Get("/", h.getMission)
			r.Post("/start", h.startMission)
			r.Post("/end", h.endMission)
			r.Put("/feedback", h.setFeedback)
			r.Put("/pilots/{id}/notes", h.setNotes)
			r.Put("/pilots/{id}/debrief", h.attachDebrief)
			r.Post("/recommendations", h.generateRecommendations)
		})

		r.Get("/missions", h.listMissions)
		r.Get("/missions/{id}", h.getArchivedMission)

		r.Get("/danger", h.getDanger)
		r.Post("/danger/countdown", h.beginCountdown)

		r.Get("/alerts", h.listAlerts)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// --- route handlers ---------------------------------------------------------

// health returns GET /health: process liveness and a mission summary.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	st := h.Dashboard.State()
	resp := HealthResponse{
		Status:       "ok",
		MissionID:    st.Mission.MissionID,
		MissionState: st.Mission.State,
		PilotCount:   len(st.Pilots),
		ActiveCount:  len(st.Mission.ActivePilots),
		Alerting:     st.Danger.Alerting,
		GeneratedAt:  h.Now().UTC().Format(time.RFC3339),
	}
	if h.Alerts != nil {
		for _, a := range h.Alerts.Active() {
			if a.State == alerts.StateFiring {
				resp.AlertCount++
			}
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

// state returns GET /state: the same payload the WebSocket hub pushes.
func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, h.Dashboard.State())
}

// listPilots returns GET /pilots: the roster, optionally filtered by status.
func (h *Handler) listPilots(w http.ResponseWriter, r *http.Request) {
	status := types.PilotStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		jsonErr(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
		return
	}
	pilots := h.Dashboard.Pilots(status)
	out := make([]PilotResponse, 0, len(pilots))
	for _, p := range pilots {
		out = append(out, toPilotResponse(p))
	}
	jsonResp(w, http.StatusOK, out)
}

// getPilot returns GET /pilots/{id}.
func (h *Handler) getPilot(w http.ResponseWriter, r *http.Request) {
	p, err := h.Dashboard.Pilot(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, toPilotResponse(p))
}

// setPilotStatus handles PUT /pilots/{id}/status.
func (h *Handler) setPilotStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if !req.Status.Valid() {
		jsonErr(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q: want active|standby", req.Status))
		return
	}
	p, err := h.Dashboard.SetPilotStatus(chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, toPilotResponse(p))
}

// recomputePilot handles POST /pilots/{id}/recompute.
func (h *Handler) recomputePilot(w http.ResponseWriter, r *http.Request) {
	p, err := h.Dashboard.Recompute(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, toPilotResponse(p))
}

// recordVitals handles POST /pilots/{id}/vitals. The body is a partial
// sample; omitted readings keep their current values.
func (h *Handler) recordVitals(w http.ResponseWriter, r *http.Request) {
	var s ingest.Sample
	if err := decodeBody(r, &s); err != nil {
		writeError(w, r, err)
		return
	}
	s.PilotID = chi.URLParam(r, "id")
	if err := s.Validate(); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	v, err := h.Ingester.Record(s)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, v)
}

// getMission returns GET /mission: the current mission.
func (h *Handler) getMission(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, toMissionResponse(h.Dashboard.Mission()))
}

// startMission handles POST /mission/start.
func (h *Handler) startMission(w http.ResponseWriter, r *http.Request) {
	m, err := h.Dashboard.StartMission()
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResp(w, http.StatusCreated, toMissionResponse(m))
}

// endMission handles POST /mission/end.
func (h *Handler) endMission(w http.ResponseWriter, r *http.Request) {
	m, err := h.Dashboard.EndMission()
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, toMissionResponse(m))
}

// setFeedback handles PUT /mission/feedback.
func (h *Handler) setFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Dashboard.SetCommanderFeedback(req.Feedback); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, toMissionResponse(h.Dashboard.Mission()))
}

// setNotes handles PUT /mission/pilots/{id}/notes.
func (h *Handler) setNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.Dashboard.SetCommanderNotes(id, req.Notes); err != nil {
		writeError(w, r, err)
		return
	}
	m := h.Dashboard.Mission()
	jsonResp(w, http.StatusOK, m.Pilot(id))
}

// attachDebrief handles PUT /mission/pilots/{id}/debrief.
func (h *Handler) attachDebrief(w http.ResponseWriter, r *http.Request) {
	var m types.DebriefMetrics
	if err := decodeBody(r, &m); err != nil {
		writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	v, err := h.Dashboard.AttachDebrief(id, m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, DebriefResponse{
		PilotID: id,
		Metrics: debrief.Normalize(m),
		Values:  v,
		Success: debrief.SuccessScore(v),
	})
}

// generateRecommendations handles POST /mission/recommendations. It runs on
// a copy of the ended mission, outside the dashboard lock. Partial provider
// failure still returns 200 with the failed pilots listed.
func (h *Handler) generateRecommendations(w http.ResponseWriter, r *http.Request) {
	if h.Recommender == nil {
		jsonErr(w, http.StatusServiceUnavailable, "recommendations are disabled")
		return
	}
	m := h.Dashboard.Mission()
	if m.State != types.SessionEnded {
		writeError(w, r, fmt.Errorf("%w: recommendations while %s", session.ErrInvalidTransition, m.State))
		return
	}
	reqs := recommend.RequestsFor(m)
	if len(reqs) == 0 {
		jsonErr(w, http.StatusUnprocessableEntity, "no pilot in this mission has recorded vitals")
		return
	}

	res, genErr := h.Recommender.Generate(r.Context(), reqs)
	resp := RecommendationsResponse{
		MissionID: m.MissionID,
		Result:    res,
		Records:   recommend.Records(res, h.Now()),
	}
	if len(resp.Records) > 0 {
		if err := h.Dashboard.AddRecommendations(m.MissionID, resp.Records); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if genErr != nil {
		jsonResp(w, statusFor(genErr), resp)
		return
	}
	jsonResp(w, http.StatusOK, resp)
}

// listMissions returns GET /missions: ended missions from memory and, when
// configured, the archive, most recent first.
func (h *Handler) listMissions(w http.ResponseWriter, r *http.Request) {
	limit := defaultMissionLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	missions := h.Store.List()
	if h.Archive != nil {
		archived, err := h.Archive.List(r.Context(), limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		seen := make(map[string]bool, len(missions))
		for _, m := range missions {
			seen[m.MissionID] = true
		}
		for _, m := range archived {
			if !seen[m.MissionID] {
				missions = append(missions, m)
			}
		}
		sort.SliceStable(missions, func(i, j int) bool {
			return missions[i].StartTime.After(missions[j].StartTime)
		})
	}
	if len(missions) > limit {
		missions = missions[:limit]
	}

	out := make([]MissionResponse, 0, len(missions))
	for _, m := range missions {
		out = append(out, toMissionResponse(m))
	}
	jsonResp(w, http.StatusOK, out)
}

// getArchivedMission returns GET /missions/{id}.
func (h *Handler) getArchivedMission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if m, ok := h.Store.Get(id); ok {
		jsonResp(w, http.StatusOK, toMissionResponse(m))
		return
	}
	if h.Archive == nil {
		jsonErr(w, http.StatusNotFound, "mission not found")
		return
	}
	m, err := h.Archive.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, toMissionResponse(m))
}

// getDanger returns GET /danger.
func (h *Handler) getDanger(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, h.Dashboard.Danger())
}

// beginCountdown handles POST /danger/countdown.
func (h *Handler) beginCountdown(w http.ResponseWriter, r *http.Request) {
	st, err := h.Dashboard.BeginAutopilotCountdown()
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, st)
}

// listAlerts returns GET /alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if h.Alerts == nil {
		jsonResp(w, http.StatusOK, []alerts.Alert{})
		return
	}
	out := h.Alerts.Active()
	if out == nil {
		out = []alerts.Alert{}
	}
	jsonResp(w, http.StatusOK, out)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// decodeBody decodes a JSON request body into v. An empty body is an error.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", errBadRequest)
		}
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	return nil
}

func toPilotResponse(p types.Pilot) PilotResponse {
	return PilotResponse{Pilot: p, Diagnostics: computeDiagnostics(p)}
}

func toMissionResponse(m types.MissionSession) MissionResponse {
	out := MissionResponse{MissionSession: m}
	if m.MissionDurationMs != nil {
		out.Duration = session.FormatDuration(*m.MissionDurationMs)
	}
	return out
}
