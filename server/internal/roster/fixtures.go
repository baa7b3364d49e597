package roster

import (
	"time"

	"github.com/pilotwatch/pilotwatch/pkg/types"
)

// DefaultPilots returns the built-in four-pilot roster used when the config
// lists no pilots. Everyone starts on standby; vitals are stamped at now.
// Calculated metrics carry the seeded values until a Recompute.
func DefaultPilots(now time.Time) []types.Pilot {
	pilot := func(id, name, role string, months int, g types.Gender, age int, h, w float64,
		hr, rhr int, hrv, sys, dia, o2, temp, gForce float64, activity int, m types.CalculatedMetrics) types.Pilot {
		return types.Pilot{
			ID:          id,
			TerraUserID: "TU" + id[1:],
			GarminID:    "G" + id[1:],
			Profile: types.Profile{
				Name:               name,
				Role:               role,
				Rank:               "Lieutenant",
				Age:                age,
				Gender:             g,
				HeightCm:           h,
				WeightKg:           w,
				MonthsOfExperience: months,
			},
			Status: types.StatusStandby,
			Vitals: types.VitalsSnapshot{
				Timestamp:            now,
				HeartRate:            hr,
				RestingHeartRate:     rhr,
				HeartRateVariability: hrv,
				BloodPressure:        types.BloodPressure{Systolic: sys, Diastolic: dia},
				OxygenLevel:          o2,
				BodyTemperature:      temp,
				GForce:               gForce,
				MinutesOfActivity:    activity,
				ReadinessScore:       m.Readiness,
				PerformanceScore:     m.Performance,
			},
			Metrics: m,
		}
	}

	return []types.Pilot{
		pilot("P001", "LT. MARTINEZ, J.", "WING COMMANDER", 96, types.GenderMale, 32, 180, 75,
			99, 65, 0.156, 125, 82, 97.5, 37.5, 2.9, 45, types.CalculatedMetrics{Readiness: 95, Performance: 92, Success: 94}),
		pilot("P002", "LT. CHEN, M.", "FIGHTER PILOT", 72, types.GenderFemale, 29, 170, 65,
			72, 62, 0.145, 118, 78, 99, 36.8, 0, 0, types.CalculatedMetrics{Readiness: 93, Performance: 95, Success: 96}),
		pilot("P003", "LT. PATEL, A.", "FIGHTER PILOT", 60, types.GenderMale, 28, 175, 70,
			75, 60, 0.142, 122, 80, 98, 36.9, 0, 0, types.CalculatedMetrics{Readiness: 92, Performance: 90, Success: 91}),
		pilot("P004", "LT. WILSON, J.", "FIGHTER PILOT", 48, types.GenderDiverse, 26, 178, 72,
			78, 64, 0.138, 126, 82, 97, 37.0, 0, 0, types.CalculatedMetrics{Readiness: 88, Performance: 85, Success: 86}),
	}
}
