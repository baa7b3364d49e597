package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/pilotwatch/pilotwatch/pkg/types"
)

// Sample is one pushed reading. Nil fields are not updated.
type Sample struct {
	PilotID              string               `json:"pilot_id"`
	Timestamp            *time.Time           `json:"timestamp,omitempty"`
	HeartRate            *int                 `json:"heart_rate,omitempty"`
	RestingHeartRate     *int                 `json:"resting_heart_rate,omitempty"`
	HeartRateVariability *float64             `json:"heart_rate_variability,omitempty"`
	BloodPressure        *types.BloodPressure `json:"blood_pressure,omitempty"`
	OxygenLevel          *float64             `json:"oxygen_level,omitempty"`
	BodyTemperature      *float64             `json:"body_temperature,omitempty"`
	GForce               *float64             `json:"g_force,omitempty"`
	MinutesOfActivity    *int                 `json:"minutes_of_activity,omitempty"`
}

// ErrEmptySample is returned for a sample carrying no readings.
var ErrEmptySample = errors.New("ingest: sample has no readings")

// Validate checks the pilot id and the range of every reading present.
func (s Sample) Validate() error {
	if s.PilotID == "" {
		return errors.New("ingest: pilot_id is required")
	}
	if s.HeartRate == nil && s.RestingHeartRate == nil && s.HeartRateVariability == nil &&
		s.BloodPressure == nil && s.OxygenLevel == nil && s.BodyTemperature == nil &&
		s.GForce == nil && s.MinutesOfActivity == nil {
		return ErrEmptySample
	}
	if s.HeartRate != nil && *s.HeartRate < 0 {
		return fmt.Errorf("ingest: heart_rate %d is negative", *s.HeartRate)
	}
	if s.RestingHeartRate != nil && *s.RestingHeartRate < 0 {
		return fmt.Errorf("ingest: resting_heart_rate %d is negative", *s.RestingHeartRate)
	}
	if s.OxygenLevel != nil && (*s.OxygenLevel < 0 || *s.OxygenLevel > 100) {
		return fmt.Errorf("ingest: oxygen_level %.1f outside 0–100", *s.OxygenLevel)
	}
	if s.GForce != nil && *s.GForce < 0 {
		return fmt.Errorf("ingest: g_force %.2f is negative", *s.GForce)
	}
	if s.MinutesOfActivity != nil && *s.MinutesOfActivity < 0 {
		return fmt.Errorf("ingest: minutes_of_activity %d is negative", *s.MinutesOfActivity)
	}
	return nil
}

// Apply overlays the sample on cur. The timestamp is the sample's, or zero
// so the session stamps it on arrival.
func (s Sample) Apply(cur types.VitalsSnapshot) types.VitalsSnapshot {
	out := cur
	out.Timestamp = time.Time{}
	if s.Timestamp != nil {
		out.Timestamp = *s.Timestamp
	}
	if s.HeartRate != nil {
		out.HeartRate = *s.HeartRate
	}
	if s.RestingHeartRate != nil {
		out.RestingHeartRate = *s.RestingHeartRate
	}
	if s.HeartRateVariability != nil {
		out.HeartRateVariability = *s.HeartRateVariability
	}
	if s.BloodPressure != nil {
		out.BloodPressure = *s.BloodPressure
	}
	if s.OxygenLevel != nil {
		out.OxygenLevel = *s.OxygenLevel
	}
	if s.BodyTemperature != nil {
		out.BodyTemperature = *s.BodyTemperature
	}
	if s.GForce != nil {
		out.GForce = *s.GForce
	}
	if s.MinutesOfActivity != nil {
		out.MinutesOfActivity = *s.MinutesOfActivity
	}
	return out
}
