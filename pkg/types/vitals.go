package types

import "time"

// BloodPressure is a systolic/diastolic pair in mmHg.
type BloodPressure struct {
	Systolic  float64 `json:"systolic"`
	Diastolic float64 `json:"diastolic"`
}

// VitalsSnapshot is one pilot's instantaneous biometric readings.
//
// ReadinessScore and PerformanceScore are derived by the scoring engine when
// the snapshot is recorded; values supplied by callers are overwritten.
// Once appended to a session history a snapshot is never modified.
type VitalsSnapshot struct {
	Timestamp            time.Time     `json:"timestamp"`
	HeartRate            int           `json:"heart_rate"`
	RestingHeartRate     int           `json:"resting_heart_rate"`
	HeartRateVariability float64       `json:"heart_rate_variability"`
	BloodPressure        BloodPressure `json:"blood_pressure"`
	OxygenLevel          float64       `json:"oxygen_level"`
	BodyTemperature      float64       `json:"body_temperature"`
	GForce               float64       `json:"g_force"`
	MinutesOfActivity    int           `json:"minutes_of_activity"`

	ReadinessScore   float64 `json:"readiness_score"`
	PerformanceScore float64 `json:"performance_score"`
}
