package roster

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilotwatch/pilotwatch/pkg/types"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newRoster(t *testing.T) *Roster {
	t.Helper()
	r, err := New(DefaultPilots(t0))
	require.NoError(t, err)
	return r
}

func ids(pilots []types.Pilot) []string {
	out := make([]string, len(pilots))
	for i, p := range pilots {
		out[i] = p.ID
	}
	return out
}

func TestDefaultPilots(t *testing.T) {
	pilots := DefaultPilots(t0)
	require.Len(t, pilots, 4)
	assert.Equal(t, []string{"P001", "P002", "P003", "P004"}, ids(pilots))
	for _, p := range pilots {
		assert.Equal(t, types.StatusStandby, p.Status, p.ID)
		assert.Equal(t, t0, p.Vitals.Timestamp, p.ID)
	}
	assert.Equal(t, "TU001", pilots[0].TerraUserID)
	assert.Equal(t, "G004", pilots[3].GarminID)
	assert.Equal(t, types.GenderFemale, pilots[1].Gender)
}

func TestNew_RejectsInvalid(t *testing.T) {
	p := DefaultPilots(t0)

	_, err := New([]types.Pilot{p[0], p[0]})
	assert.Error(t, err, "duplicate id")

	bad := p[1]
	bad.Status = "grounded"
	_, err = New([]types.Pilot{bad})
	assert.Error(t, err, "invalid status")

	_, err = New([]types.Pilot{{}})
	assert.Error(t, err, "empty id")
}

func TestListByStatus_PreservesOrder(t *testing.T) {
	r := newRoster(t)
	_, err := r.SetStatus("P003", types.StatusActive)
	require.NoError(t, err)
	_, err = r.SetStatus("P001", types.StatusActive)
	require.NoError(t, err)

	assert.Equal(t, []string{"P001", "P003"}, ids(r.ListByStatus(types.StatusActive)))
	assert.Equal(t, []string{"P002", "P004"}, ids(r.ListByStatus(types.StatusStandby)))
}

func TestSetStatus_UnknownPilot(t *testing.T) {
	r := newRoster(t)
	before := r.List()

	_, err := r.SetStatus("P999", types.StatusActive)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, before, r.List(), "roster must be unchanged")
}

func TestSetStatus_InvalidStatus(t *testing.T) {
	r := newRoster(t)
	_, err := r.SetStatus("P001", "grounded")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestWithStatus_DoesNotAliasInput(t *testing.T) {
	pilots := DefaultPilots(t0)
	updated, found := WithStatus(pilots, "P002", types.StatusActive)
	require.True(t, found)
	assert.Equal(t, types.StatusActive, updated[1].Status)
	assert.Equal(t, types.StatusStandby, pilots[1].Status)

	same, found := WithStatus(pilots, "nope", types.StatusActive)
	assert.False(t, found)
	assert.Equal(t, pilots, same)
}

func TestRecompute(t *testing.T) {
	r := newRoster(t)

	v := types.VitalsSnapshot{
		Timestamp:            t0.Add(time.Minute),
		HeartRate:            190,
		RestingHeartRate:     65,
		HeartRateVariability: 0.15,
		BloodPressure:        types.BloodPressure{Systolic: 120, Diastolic: 80},
		OxygenLevel:          98,
		BodyTemperature:      36.8,
		GForce:               8,
	}
	_, err := r.UpdateVitals("P001", v)
	require.NoError(t, err)

	// UpdateVitals does not rescore.
	p, err := r.Get("P001")
	require.NoError(t, err)
	assert.Equal(t, 95.0, p.Metrics.Readiness)

	p, err = r.Recompute("P001", nil)
	require.NoError(t, err)
	assert.Equal(t, 90.0, p.Metrics.Readiness)
	assert.Equal(t, 75.0, p.Metrics.Performance)
	assert.Equal(t, 94.0, p.Metrics.Success, "success kept without debrief")
	assert.Equal(t, 90.0, p.Vitals.ReadinessScore)

	p, err = r.Recompute("P001", &types.DebriefValues{CriticalSituations: 2, AvgResponseTimeMs: 73, TimeInHighGsMs: 500})
	require.NoError(t, err)
	assert.InDelta(t, 204.7, p.Metrics.Success, 0.001)

	_, err = r.Recompute("P999", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
