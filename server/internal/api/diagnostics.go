package api

import (
	"fmt"

	"github.com/pilotwatch/pilotwatch/pkg/types"
	"github.com/pilotwatch/pilotwatch/server/internal/danger"
	"github.com/pilotwatch/pilotwatch/server/internal/recommend"
)

// DiagnosticHint is one human-readable insight about a pilot's vitals.
// The UI displays these as chips on the pilot card; clicking one shows
// Detail, written for a flight surgeon rather than an engineer.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier (used for dedup/ordering).
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label shown on the chip (≤ 5 words).
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is the reading the hint is about, when there is one.
	Value *float64 `json:"value,omitempty"`
}

const (
	minOxygenCritical = 90.0
	minOxygenWarning  = 95.0
	maxTemperature    = 38.0
	minTemperature    = 35.5
	minReadinessScore = 60.0
)

// computeDiagnostics derives diagnostic hints from a pilot's current vitals.
// Critical hints come first, then warnings.
func computeDiagnostics(p types.Pilot) []DiagnosticHint {
	v := p.Vitals

	// ── No readings yet ──────────────────────────────────────────────────────
	if v.HeartRate == 0 && v.OxygenLevel == 0 {
		return []DiagnosticHint{{
			Key:   "no_data",
			Level: "info",
			Title: "No readings yet",
			Detail: "No wearable data has arrived for this pilot. " +
				"Check that the device is paired and pushing samples. " +
				"Scores will show up with the first reading.",
		}}
	}

	var critical, warnings []DiagnosticHint

	// ── Heart rate ───────────────────────────────────────────────────────────
	if danger.Dangerous(v.HeartRate) {
		hr := float64(v.HeartRate)
		critical = append(critical, DiagnosticHint{
			Key:   "heart_rate_danger",
			Level: "critical",
			Title: fmt.Sprintf("Heart rate %d bpm", v.HeartRate),
			Detail: fmt.Sprintf(
				"Heart rate is %d bpm, outside the safe band of %d–%d bpm. "+
					"This raises a danger alert for the active pilot and lets the "+
					"operator start the %d second autopilot countdown. "+
					"Confirm the reading with the pilot before handing off.",
				v.HeartRate, danger.MinSafeHeartRate, danger.MaxSafeHeartRate, danger.CountdownSeconds,
			),
			Value: &hr,
		})
	}

	// ── Oxygen saturation ────────────────────────────────────────────────────
	if v.OxygenLevel > 0 && v.OxygenLevel < minOxygenWarning {
		o2 := v.OxygenLevel
		h := DiagnosticHint{
			Key:   "oxygen_low",
			Level: "warning",
			Title: fmt.Sprintf("SpO₂ %.0f%%", o2),
			Detail: fmt.Sprintf(
				"Blood oxygen is %.1f%%, below the %.0f%% a rested pilot should hold. "+
					"Check mask fit and the oxygen system. Sustained readings like this "+
					"also drag down the performance score.",
				o2, minOxygenWarning,
			),
			Value: &o2,
		}
		if o2 < minOxygenCritical {
			h.Level = "critical"
			h.Detail = fmt.Sprintf(
				"Blood oxygen is %.1f%%, under %.0f%%. This is hypoxia territory: "+
					"judgement and reaction time degrade before the pilot notices. "+
					"Descend or switch to emergency oxygen now.",
				o2, minOxygenCritical,
			)
			critical = append(critical, h)
		} else {
			warnings = append(warnings, h)
		}
	}

	base := recommend.BaselinesFor(p.Age, p.Gender)

	// ── G-load ───────────────────────────────────────────────────────────────
	if v.GForce > base.GForceLimit {
		g := v.GForce
		warnings = append(warnings, DiagnosticHint{
			Key:   "g_force_high",
			Level: "warning",
			Title: fmt.Sprintf("%.1f G", g),
			Detail: fmt.Sprintf(
				"Current load is %.1f G, above the %.0f G limit for this pilot's age band. "+
					"Time spent here counts towards the high-G total in the debrief.",
				g, base.GForceLimit,
			),
			Value: &g,
		})
	}

	// ── Heart rate variability ───────────────────────────────────────────────
	if hrv := hrvMillis(v.HeartRateVariability); hrv > 0 && hrv < base.MinHeartRateVariability {
		warnings = append(warnings, DiagnosticHint{
			Key:   "hrv_low",
			Level: "warning",
			Title: "Low HRV",
			Detail: fmt.Sprintf(
				"HRV is %.0f ms against a minimum of %.0f ms for this pilot. "+
					"Low variability is an early fatigue and stress marker. "+
					"Consider a shorter sortie or extra rest before the next one.",
				hrv, base.MinHeartRateVariability,
			),
			Value: &hrv,
		})
	}

	// ── Body temperature ─────────────────────────────────────────────────────
	if t := v.BodyTemperature; t > 0 && (t > maxTemperature || t < minTemperature) {
		title, detail := "Elevated temperature", fmt.Sprintf(
			"Body temperature is %.1f °C, above %.1f °C. Fever or heat stress "+
				"both cut tolerance to G-load.", t, maxTemperature)
		if t < minTemperature {
			title, detail = "Low temperature", fmt.Sprintf(
				"Body temperature is %.1f °C, below %.1f °C. Check the cockpit "+
					"environment and the sensor contact.", t, minTemperature)
		}
		warnings = append(warnings, DiagnosticHint{
			Key:    "temperature",
			Level:  "warning",
			Title:  title,
			Detail: detail,
			Value:  &t,
		})
	}

	// ── Readiness ────────────────────────────────────────────────────────────
	if r := v.ReadinessScore; r > 0 && r < minReadinessScore {
		warnings = append(warnings, DiagnosticHint{
			Key:   "readiness_low",
			Level: "warning",
			Title: fmt.Sprintf("Readiness %.0f", r),
			Detail: fmt.Sprintf(
				"Readiness is %.0f/100, under %.0f. It blends heart rate, oxygen "+
					"and recovery; look at which of those is pulling it down "+
					"before clearing this pilot.",
				r, minReadinessScore,
			),
			Value: &r,
		})
	}

	hints := append(critical, warnings...)

	// ── All clear ────────────────────────────────────────────────────────────
	if len(hints) == 0 {
		score := v.ReadinessScore
		hints = append(hints, DiagnosticHint{
			Key:   "healthy",
			Level: "ok",
			Title: "All clear",
			Detail: fmt.Sprintf(
				"All vitals are inside their normal ranges with a readiness of %.0f/100. "+
					"Keep watching the heart rate trend during high-G phases.",
				score,
			),
			Value: &score,
		})
	}
	return hints
}

// hrvMillis normalises HRV to milliseconds. Some wearables report RMSSD in
// seconds; anything under 1 is taken to be seconds.
func hrvMillis(hrv float64) float64 {
	if hrv > 0 && hrv < 1 {
		return hrv * 1000
	}
	return hrv
}
