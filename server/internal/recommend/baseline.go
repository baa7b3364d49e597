package recommend

import "github.com/pilotwatch/pilotwatch/pkg/types"

// Baselines are the reference values a pilot's metrics are compared against.
type Baselines struct {
	HeartRateVariability    float64 `json:"heart_rate_variability"`
	MinHeartRateVariability float64 `json:"min_heart_rate_variability"`
	Systolic                float64 `json:"systolic"`
	OxygenLevel             float64 `json:"oxygen_level"`
	GForceLimit             float64 `json:"g_force_limit"`
}

// BaselinesFor returns the baselines for a pilot's age band (<30, 30-39, 40+)
// and gender. Female pilots ("w") use the lower HRV and systolic tables.
func BaselinesFor(age int, gender types.Gender) Baselines {
	band := 2
	switch {
	case age < 30:
		band = 0
	case age < 40:
		band = 1
	}

	hrv := [3]float64{78, 74, 70}
	hrvMin := [3]float64{68, 63, 58}
	sys := [3]float64{115, 120, 125}
	if gender == types.GenderFemale {
		hrv = [3]float64{76, 72, 68}
		hrvMin = [3]float64{65, 60, 55}
		sys = [3]float64{110, 115, 120}
	}
	return Baselines{
		HeartRateVariability:    hrv[band],
		MinHeartRateVariability: hrvMin[band],
		Systolic:                sys[band],
		OxygenLevel:             98,
		GForceLimit:             [3]float64{9, 8, 7}[band],
	}
}
