package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/pilotwatch/pilotwatch/pkg/types"
)

func intp(v int) *int { return &v }
func floatp(v float64) *float64 { return &v }

type fakeRecorder struct {
	current types.VitalsSnapshot
	got     []types.VitalsSnapshot
	err     error
}

func (f *fakeRecorder) Ingest(_ string, merge func(types.VitalsSnapshot) types.VitalsSnapshot) (types.VitalsSnapshot, error) {
	if f.err != nil {
		return types.VitalsSnapshot{}, f.err
	}
	v := merge(f.current)
	f.got = append(f.got, v)
	f.current = v
	return v, nil
}

func TestSample_Validate(t *testing.T) {
	tests := []struct {
		name    string
		s       Sample
		wantErr bool
	}{
		{"heart rate only", Sample{PilotID: "P1", HeartRate: intp(80)}, false},
		{"oxygen only", Sample{PilotID: "P1", OxygenLevel: floatp(97)}, false},
		{"missing pilot", Sample{HeartRate: intp(80)}, true},
		{"no readings", Sample{PilotID: "P1"}, true},
		{"negative heart rate", Sample{PilotID: "P1", HeartRate: intp(-1)}, true},
		{"oxygen above 100", Sample{PilotID: "P1", OxygenLevel: floatp(101)}, true},
		{"negative g", Sample{PilotID: "P1", GForce: floatp(-0.1)}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.s.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.ErrorIs(t, Sample{PilotID: "P1"}.Validate(), ErrEmptySample)
}

func TestSample_Apply(t *testing.T) {
	cur := types.VitalsSnapshot{
		Timestamp:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		HeartRate:   70,
		OxygenLevel: 98,
		GForce:      1,
	}
	got := Sample{PilotID: "P1", HeartRate: intp(150)}.Apply(cur)
	assert.Equal(t, 150, got.HeartRate)
	assert.Equal(t, 98.0, got.OxygenLevel)
	assert.Equal(t, 1.0, got.GForce)
	assert.True(t, got.Timestamp.IsZero(), "timestamp cleared for stamping on arrival")

	ts := time.Date(2025, 1, 1, 0, 0, 5, 0, time.UTC)
	got = Sample{PilotID: "P1", Timestamp: &ts, OxygenLevel: floatp(93)}.Apply(cur)
	assert.Equal(t, ts, got.Timestamp)
	assert.Equal(t, 70, got.HeartRate)
	assert.Equal(t, 93.0, got.OxygenLevel)
}

func TestIngester_RateLimit(t *testing.T) {
	rec := &fakeRecorder{}
	in := New(rec, rate.Every(time.Hour), 2)

	for i := 0; i < 2; i++ {
		_, err := in.Record(Sample{PilotID: "P1", HeartRate: intp(80 + i)})
		require.NoError(t, err)
	}
	_, err := in.Record(Sample{PilotID: "P1", HeartRate: intp(90)})
	assert.ErrorIs(t, err, ErrRateLimited)

	_, err = in.Record(Sample{PilotID: "P2", HeartRate: intp(90)})
	assert.NoError(t, err, "limits are per pilot")
	assert.Len(t, rec.got, 3)
}

func TestIngester_HandleMessage(t *testing.T) {
	rec := &fakeRecorder{current: types.VitalsSnapshot{HeartRate: 70, OxygenLevel: 98}}
	in := New(rec, rate.Inf, 1)

	require.NoError(t, in.HandleMessage([]byte(`{"pilot_id":"P1","oxygen_level":92.5}`)))
	require.Len(t, rec.got, 1)
	assert.Equal(t, 92.5, rec.got[0].OxygenLevel)
	assert.Equal(t, 70, rec.got[0].HeartRate)

	assert.Error(t, in.HandleMessage([]byte(`not json`)))
	assert.ErrorIs(t, in.HandleMessage([]byte(`{"pilot_id":"P1"}`)), ErrEmptySample)

	rec.err = errors.New("session: pilot not found")
	assert.Error(t, in.HandleMessage([]byte(`{"pilot_id":"P1","heart_rate":80}`)))
}
