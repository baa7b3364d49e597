package debrief

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/pilotwatch/pilotwatch/pkg/types"
	"github.com/pilotwatch/pilotwatch/server/internal/compute"
	"github.com/pilotwatch/pilotwatch/server/internal/session"
)

// Field names as they appear in the external representation.
const (
	FieldCriticalSituations = "critical_situations"
	FieldAvgResponseTime    = "avg_response_time"
	FieldTimeInHighGs       = "time_in_high_gs"
)

var numeric = regexp.MustCompile(`^\d*\.?\d*$`)

// FieldError reports one field that failed to parse.
type FieldError struct {
	Field string
	Value string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("debrief: %s: %q is not a non-negative number", e.Field, e.Value)
}

// ParseField parses one operator-entered value. Empty input is 0.
func ParseField(field, s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	if s == "." || !numeric.MatchString(s) {
		return 0, &FieldError{Field: field, Value: s}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &FieldError{Field: field, Value: s}
	}
	return v, nil
}

// Parse converts all three metrics. Every bad field is reported; the
// returned error joins one *FieldError per field.
func Parse(m types.DebriefMetrics) (types.DebriefValues, error) {
	var (
		v    types.DebriefValues
		errs []error
		err  error
	)
	if v.CriticalSituations, err = ParseField(FieldCriticalSituations, m.CriticalSituations); err != nil {
		errs = append(errs, err)
	}
	if v.AvgResponseTimeMs, err = ParseField(FieldAvgResponseTime, m.AvgResponseTime); err != nil {
		errs = append(errs, err)
	}
	if v.TimeInHighGsMs, err = ParseField(FieldTimeInHighGs, m.TimeInHighGs); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return types.DebriefValues{}, errors.Join(errs...)
	}
	return v, nil
}

// Normalize replaces empty fields with "0", the stored form of an omitted
// value.
func Normalize(m types.DebriefMetrics) types.DebriefMetrics {
	zero := func(s string) string {
		if s == "" {
			return "0"
		}
		return s
	}
	return types.DebriefMetrics{
		CriticalSituations: zero(m.CriticalSituations),
		AvgResponseTime:    zero(m.AvgResponseTime),
		TimeInHighGs:       zero(m.TimeInHighGs),
	}
}

// Attacher is the part of the session machine Attach needs.
type Attacher interface {
	State() types.SessionState
	AttachDebrief(pilotID string, metrics types.DebriefMetrics) error
}

var _ Attacher = (*session.Machine)(nil)

// Attach validates metrics and stores them once on the pilot's session. The
// mission must have ended. The parsed values are returned for scoring.
func Attach(a Attacher, pilotID string, m types.DebriefMetrics) (types.DebriefValues, error) {
	if st := a.State(); st != types.SessionEnded {
		return types.DebriefValues{}, fmt.Errorf("%w: attach debrief while %s", session.ErrInvalidTransition, st)
	}
	v, err := Parse(m)
	if err != nil {
		return types.DebriefValues{}, err
	}
	if err := a.AttachDebrief(pilotID, Normalize(m)); err != nil {
		return types.DebriefValues{}, err
	}
	return v, nil
}

// SuccessScore feeds parsed values into the success formula.
func SuccessScore(v types.DebriefValues) float64 {
	return compute.Success(v.AvgResponseTimeMs, v.TimeInHighGsMs, v.CriticalSituations)
}
