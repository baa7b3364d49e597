package danger

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilotwatch/pilotwatch/pkg/types"
)

func snap(hr int) *types.VitalsSnapshot {
	return &types.VitalsSnapshot{HeartRate: hr}
}

func TestDangerous_Boundaries(t *testing.T) {
	tests := []struct {
		hr   int
		want bool
	}{
		{0, true},
		{39, true},
		{40, false},
		{70, false},
		{180, false},
		{181, true},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Dangerous(tc.hr), "hr=%d", tc.hr)
	}
}

func TestObserve(t *testing.T) {
	m := NewMonitor(0, nil)

	st := m.Observe("P1", snap(181))
	assert.True(t, st.Alerting)
	assert.Equal(t, "P1", st.PilotID)
	assert.Equal(t, 181, st.HeartRate)
	assert.Nil(t, st.Countdown)

	st = m.Observe("P1", snap(180))
	assert.False(t, st.Alerting)

	st = m.Observe("P1", snap(39))
	assert.True(t, st.Alerting)

	st = m.Observe("", nil)
	assert.Equal(t, State{}, st, "no active pilot")
}

func TestBeginCountdown_RequiresAlerting(t *testing.T) {
	m := NewMonitor(0, nil)
	_, err := m.BeginCountdown()
	assert.ErrorIs(t, err, ErrNotAlerting)
	assert.Nil(t, m.State().Countdown)
}

func TestCountdown_ReachesZero(t *testing.T) {
	m := NewMonitor(0, nil)
	m.Observe("P1", snap(190))

	st, err := m.BeginCountdown()
	require.NoError(t, err)
	require.NotNil(t, st.Countdown)
	assert.Equal(t, CountdownSeconds, *st.Countdown)

	for i := 0; i < CountdownSeconds; i++ {
		m.Observe("P1", snap(190))
		st = m.Tick()
	}
	require.NotNil(t, st.Countdown)
	assert.Equal(t, 0, *st.Countdown)
	assert.True(t, st.HandoffDue)
	assert.True(t, st.Alerting)

	st = m.Tick()
	assert.Equal(t, 0, *st.Countdown, "stays at zero")
}

func TestCountdown_CancelledWhenHeartRateRecovers(t *testing.T) {
	m := NewMonitor(0, nil)
	m.Observe("P1", snap(190))
	_, err := m.BeginCountdown()
	require.NoError(t, err)
	m.Tick()
	m.Tick()

	st := m.Observe("P1", snap(70))
	assert.False(t, st.Alerting)
	assert.Nil(t, st.Countdown)

	st = m.Tick()
	assert.Nil(t, st.Countdown, "tick after cancel is a no-op")
}

func TestCountdown_Restart(t *testing.T) {
	m := NewMonitor(0, nil)
	m.Observe("P1", snap(30))
	_, err := m.BeginCountdown()
	require.NoError(t, err)
	m.Tick()
	m.Tick()

	st, err := m.BeginCountdown()
	require.NoError(t, err)
	assert.Equal(t, CountdownSeconds, *st.Countdown)
}

func TestStop_Resets(t *testing.T) {
	m := NewMonitor(time.Hour, nil)
	m.Observe("P1", snap(190))
	_, err := m.BeginCountdown()
	require.NoError(t, err)

	m.Stop()
	assert.Equal(t, State{}, m.State())
	m.mu.Lock()
	assert.Nil(t, m.stop, "ticker stopped")
	m.mu.Unlock()
}

func TestBackgroundTicker(t *testing.T) {
	m := NewMonitor(2*time.Millisecond, nil)
	m.Observe("P1", snap(190))
	_, err := m.BeginCountdown()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return m.State().HandoffDue
	}, 2*time.Second, 5*time.Millisecond)

	st := m.State()
	assert.Equal(t, 0, *st.Countdown)
	m.mu.Lock()
	assert.Nil(t, m.stop, "ticker exits at zero")
	m.mu.Unlock()
}

func TestBackgroundTicker_CancelStopsDecrement(t *testing.T) {
	m := NewMonitor(time.Millisecond, nil)
	m.Observe("P1", snap(190))
	_, err := m.BeginCountdown()
	require.NoError(t, err)

	m.Observe("P1", snap(70))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, State{}, m.State())
}

func TestOnChange(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []State
	)
	m := NewMonitor(0, func(s State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	})

	m.Observe("P1", snap(70))  // no change from idle
	m.Observe("P1", snap(190)) // alerting
	m.Observe("P1", snap(190)) // no change
	_, _ = m.BeginCountdown()  // countdown 15
	m.Tick()                   // 14
	m.Stop()                   // idle

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 4)
	assert.True(t, seen[0].Alerting)
	assert.Equal(t, 15, *seen[1].Countdown)
	assert.Equal(t, 14, *seen[2].Countdown)
	assert.Equal(t, State{}, seen[3])
}
