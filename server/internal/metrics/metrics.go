package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pilotwatch/pilotwatch/pkg/types"
	"github.com/pilotwatch/pilotwatch/server/internal/alerts"
	"github.com/pilotwatch/pilotwatch/server/internal/danger"
	"github.com/pilotwatch/pilotwatch/server/internal/dashboard"
	"github.com/pilotwatch/pilotwatch/server/internal/events"
)

const namespace = "pilotwatch"

// Metrics holds every collector.
type Metrics struct {
	EventsTotal      *prometheus.CounterVec
	VitalsTotal      *prometheus.CounterVec
	HeartRate        *prometheus.GaugeVec
	OxygenLevel      *prometheus.GaugeVec
	Readiness        *prometheus.GaugeVec
	Performance      *prometheus.GaugeVec
	ActivePilots     prometheus.Gauge
	DangerAlerting   prometheus.Gauge
	Countdown        prometheus.Gauge
	MissionsEnded    prometheus.Counter
	MissionDuration  prometheus.Histogram
	DebriefsTotal    prometheus.Counter
	Recommendations  prometheus.Counter
	AlertTransitions *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Domain events published, by type.",
		}, []string{"type"}),
		VitalsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vitals_recorded_total",
			Help:      "Vitals snapshots appended to mission history, by pilot.",
		}, []string{"pilot"}),
		HeartRate: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pilot_heart_rate_bpm",
			Help:      "Latest recorded heart rate.",
		}, []string{"pilot"}),
		OxygenLevel: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pilot_oxygen_level_percent",
			Help:      "Latest recorded blood oxygen saturation.",
		}, []string{"pilot"}),
		Readiness: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pilot_readiness_score",
			Help:      "Readiness score of the latest snapshot (0-100).",
		}, []string{"pilot"}),
		Performance: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pilot_performance_score",
			Help:      "Performance score of the latest snapshot (0-100).",
		}, []string{"pilot"}),
		ActivePilots: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_pilots",
			Help:      "Pilots tracked in the current mission.",
		}),
		DangerAlerting: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "danger_alerting",
			Help:      "1 while the monitored pilot's heart rate is outside the safe range.",
		}),
		Countdown: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "autopilot_countdown_seconds",
			Help:      "Remaining autopilot countdown, -1 when no countdown runs.",
		}),
		MissionsEnded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missions_ended_total",
			Help:      "Missions that reached the ended state.",
		}),
		MissionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mission_duration_seconds",
			Help:      "Duration of ended missions.",
			Buckets:   []float64{60, 300, 900, 1800, 3600, 7200, 14400},
		}),
		DebriefsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debriefs_attached_total",
			Help:      "Debrief records attached to ended missions.",
		}),
		Recommendations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendation_records_total",
			Help:      "Recommendation records added to missions.",
		}),
		AlertTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_transitions_total",
			Help:      "Alert firing/resolved transitions, by rule and state.",
		}, []string{"rule", "state"}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	m.Countdown.Set(-1)
	return m
}

// Handle is an events.Handler.
func (m *Metrics) Handle(e events.Event) {
	m.EventsTotal.WithLabelValues(string(e.Type)).Inc()

	switch e.Type {
	case events.MissionStarted:
		m.ActivePilots.Set(0)
		m.Countdown.Set(-1)
		m.DangerAlerting.Set(0)
	case events.PilotActivated:
		m.ActivePilots.Inc()
	case events.PilotStandby:
		m.ActivePilots.Dec()
		m.deletePilot(e.PilotID)
	case events.VitalsRecorded:
		v, ok := e.Data.(types.VitalsSnapshot)
		if !ok {
			return
		}
		m.VitalsTotal.WithLabelValues(e.PilotID).Inc()
		m.HeartRate.WithLabelValues(e.PilotID).Set(float64(v.HeartRate))
		m.OxygenLevel.WithLabelValues(e.PilotID).Set(v.OxygenLevel)
		m.Readiness.WithLabelValues(e.PilotID).Set(v.ReadinessScore)
		m.Performance.WithLabelValues(e.PilotID).Set(v.PerformanceScore)
	case events.DangerChanged:
		st, ok := e.Data.(danger.State)
		if !ok {
			return
		}
		m.DangerAlerting.Set(boolGauge(st.Alerting))
		if st.Countdown != nil {
			m.Countdown.Set(float64(*st.Countdown))
		} else {
			m.Countdown.Set(-1)
		}
	case events.MissionEnded:
		m.MissionsEnded.Inc()
		m.ActivePilots.Set(0)
		if s, ok := e.Data.(dashboard.Summary); ok {
			m.MissionDuration.Observe(float64(s.DurationMs) / 1000)
		}
	case events.DebriefAttached:
		m.DebriefsTotal.Inc()
	case events.RecommendationsGenerated:
		if n, ok := e.Data.(int); ok {
			m.Recommendations.Add(float64(n))
		}
	}
}

func (m *Metrics) deletePilot(id string) {
	for _, g := range []*prometheus.GaugeVec{m.HeartRate, m.OxygenLevel, m.Readiness, m.Performance} {
		g.DeleteLabelValues(id)
	}
}

// ObserveAlert counts an alert transition. It matches alerts.Engine.OnTransition.
func (m *Metrics) ObserveAlert(a alerts.Alert) {
	m.AlertTransitions.WithLabelValues(a.RuleName, a.State).Inc()
}

// Middleware records request count and latency. The route label is the chi
// route pattern, so path parameters do not inflate cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unknown"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.statusCode = code
		r.written = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.written = true
	return r.ResponseWriter.Write(b)
}

// Hijack passes WebSocket upgrades through the wrapped writer.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: response writer does not support hijacking")
	}
	r.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
