package types

// PilotStatus is whether a pilot is tracked in the open mission session.
type PilotStatus string

const (
	StatusActive  PilotStatus = "active"
	StatusStandby PilotStatus = "standby"
)

// Valid reports whether s is one of the known statuses.
func (s PilotStatus) Valid() bool {
	return s == StatusActive || s == StatusStandby
}

// Gender uses the roster's single-letter codes: m | w | d.
type Gender string

const (
	GenderMale    Gender = "m"
	GenderFemale  Gender = "w"
	GenderDiverse Gender = "d"
)

// Profile is the static part of a pilot record. It does not change after
// the pilot is created.
type Profile struct {
	Name               string  `json:"name"`
	Role               string  `json:"role"`
	Rank               string  `json:"rank"`
	Age                int     `json:"age"`
	Gender             Gender  `json:"gender"`
	HeightCm           float64 `json:"height_cm"`
	WeightKg           float64 `json:"weight_kg"`
	MonthsOfExperience int     `json:"months_of_experience"`
}

// CalculatedMetrics holds the scores last produced by an explicit recompute.
type CalculatedMetrics struct {
	Readiness   float64 `json:"readiness"`
	Performance float64 `json:"performance"`
	Success     float64 `json:"success"`
}

// Pilot is one roster entry: identity, profile and current dynamic state.
type Pilot struct {
	ID          string `json:"id"`
	TerraUserID string `json:"terra_user_id,omitempty"`
	GarminID    string `json:"garmin_id,omitempty"`

	Profile

	Status  PilotStatus       `json:"status"`
	Vitals  VitalsSnapshot    `json:"vitals"`
	Metrics CalculatedMetrics `json:"calculated_metrics"`
}
