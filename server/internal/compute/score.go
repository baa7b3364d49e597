package compute

import "github.com/pilotwatch/pilotwatch/pkg/types"

// Readiness thresholds and penalties.
const (
	HeartRateRatioLimit = 1.5
	HRVFloor            = 0.10
	SystolicLimit       = 140.0
	DiastolicLimit      = 90.0
	OxygenFloor         = 95.0
	TemperatureLimit    = 37.5

	penaltyHeartRate   = 10
	penaltyHRV         = 15
	penaltyBP          = 10
	penaltyOxygen      = 20
	penaltyTemperature = 25
)

// Performance thresholds and penalties.
const (
	GForceSevere     = 7.0
	GForceElevated   = 5.0
	ActivityMinLimit = 120

	penaltyGSevere   = 15
	penaltyGElevated = 5
	penaltyActivity  = 10
)

// Weights for the success score. They sum to 1.0.
const (
	weightReaction = 0.40
	weightHighG    = 0.35
	weightNearMiss = 0.25
)

// Penalty names one deduction applied during scoring.
type Penalty struct {
	Reason string  `json:"reason"`
	Points float64 `json:"points"`
}

// Input holds the raw readings fed into Compute.
type Input struct {
	HeartRate         float64
	RestingHeartRate  float64
	HRV               float64
	BloodPressure     types.BloodPressure
	OxygenLevel       float64
	BodyTemperature   float64
	GForce            float64
	MinutesOfActivity float64
}

// Output is the result of Compute.
type Output struct {
	Readiness   float64
	Performance float64

	// Penalties lists every deduction in the order applied, readiness first.
	// Useful for rendering per-factor breakdowns in the UI.
	Penalties []Penalty
}

// Readiness returns the 0–100 fitness-to-fly score for one set of vitals.
func Readiness(hr, restingHR, hrv float64, bp types.BloodPressure, o2, temp float64) float64 {
	score, _ := readiness(hr, restingHR, hrv, bp, o2, temp)
	return score
}

// Performance reduces readiness by the physical-stress penalties. The result
// never exceeds readiness.
func Performance(gForce, activityMinutes, readinessScore float64) float64 {
	score, _ := performance(gForce, activityMinutes, readinessScore)
	return score
}

// Success is the weighted debrief score:
//
//	0.4·reactionTime + 0.35·timeInHighG + 0.25·nearMiss
//
// It is not clamped; the inputs are operator-supplied and unbounded.
func Success(reactionTime, timeInHighG, nearMiss float64) float64 {
	return weightReaction*reactionTime + weightHighG*timeInHighG + weightNearMiss*nearMiss
}

// Compute scores in and reports the penalties that were applied.
func Compute(in Input) Output {
	r, penalties := readiness(in.HeartRate, in.RestingHeartRate, in.HRV, in.BloodPressure, in.OxygenLevel, in.BodyTemperature)
	p, perf := performance(in.GForce, in.MinutesOfActivity, r)
	return Output{
		Readiness:   r,
		Performance: p,
		Penalties:   append(penalties, perf...),
	}
}

// InputFrom maps a snapshot's readings onto Input.
func InputFrom(v types.VitalsSnapshot) Input {
	return Input{
		HeartRate:         float64(v.HeartRate),
		RestingHeartRate:  float64(v.RestingHeartRate),
		HRV:               v.HeartRateVariability,
		BloodPressure:     v.BloodPressure,
		OxygenLevel:       v.OxygenLevel,
		BodyTemperature:   v.BodyTemperature,
		GForce:            v.GForce,
		MinutesOfActivity: float64(v.MinutesOfActivity),
	}
}

// Score returns a copy of v with ReadinessScore and PerformanceScore filled.
// Any values already present are overwritten.
func Score(v types.VitalsSnapshot) types.VitalsSnapshot {
	out := Compute(InputFrom(v))
	v.ReadinessScore = out.Readiness
	v.PerformanceScore = out.Performance
	return v
}

func readiness(hr, restingHR, hrv float64, bp types.BloodPressure, o2, temp float64) (float64, []Penalty) {
	score := 100.0
	var applied []Penalty
	deduct := func(reason string, pts float64) {
		score -= pts
		applied = append(applied, Penalty{Reason: reason, Points: pts})
	}

	if hr > HeartRateRatioLimit*restingHR {
		deduct("elevated heart rate", penaltyHeartRate)
	}
	if hrv < HRVFloor {
		deduct("low heart rate variability", penaltyHRV)
	}
	if bp.Systolic > SystolicLimit || bp.Diastolic > DiastolicLimit {
		deduct("high blood pressure", penaltyBP)
	}
	if o2 < OxygenFloor {
		deduct("low oxygen saturation", penaltyOxygen)
	}
	if temp > TemperatureLimit {
		deduct("elevated body temperature", penaltyTemperature)
	}
	return clamp100(score), applied
}

func performance(gForce, activityMinutes, readinessScore float64) (float64, []Penalty) {
	score := readinessScore
	var applied []Penalty

	switch {
	case gForce > GForceSevere:
		score -= penaltyGSevere
		applied = append(applied, Penalty{Reason: "severe g-load", Points: penaltyGSevere})
	case gForce > GForceElevated:
		score -= penaltyGElevated
		applied = append(applied, Penalty{Reason: "elevated g-load", Points: penaltyGElevated})
	}
	if activityMinutes > ActivityMinLimit {
		score -= penaltyActivity
		applied = append(applied, Penalty{Reason: "extended activity", Points: penaltyActivity})
	}
	return clamp100(score), applied
}

// clamp100 restricts v to the range [0, 100].
func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
