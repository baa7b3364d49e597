package alerts

import (
	"strconv"
	"strings"

	"github.com/pilotwatch/pilotwatch/pkg/types"
)

// evalCondition evaluates a rule condition string against one vitals snapshot.
//
// Supported expressions (field operator value):
//
//	heart_rate > 170
//	heart_rate < 45
//	oxygen_level < 92
//	body_temperature > 38
//	systolic > 160
//	diastolic > 100
//	heart_rate_variability < 0.08
//	g_force >= 8
//	minutes_of_activity > 180
//	readiness_score < 60
//	performance_score < 50
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, v types.VitalsSnapshot) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	value, ok := numericField(field, v)
	if !ok {
		return false, 0
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	return compareFloat(value, op, threshold), value
}

// validCondition reports whether cond parses and names a known field.
func validCondition(cond string) bool {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false
	}
	if _, ok := numericField(parts[0], types.VitalsSnapshot{}); !ok {
		return false
	}
	switch parts[1] {
	case ">", ">=", "<", "<=", "==":
	default:
		return false
	}
	_, err := strconv.ParseFloat(parts[2], 64)
	return err == nil
}

// numericField maps a field name to its value in the snapshot.
func numericField(field string, v types.VitalsSnapshot) (float64, bool) {
	switch field {
	case "heart_rate":
		return float64(v.HeartRate), true
	case "resting_heart_rate":
		return float64(v.RestingHeartRate), true
	case "heart_rate_variability":
		return v.HeartRateVariability, true
	case "systolic":
		return v.BloodPressure.Systolic, true
	case "diastolic":
		return v.BloodPressure.Diastolic, true
	case "oxygen_level":
		return v.OxygenLevel, true
	case "body_temperature":
		return v.BodyTemperature, true
	case "g_force":
		return v.GForce, true
	case "minutes_of_activity":
		return float64(v.MinutesOfActivity), true
	case "readiness_score":
		return v.ReadinessScore, true
	case "performance_score":
		return v.PerformanceScore, true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
