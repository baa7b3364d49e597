package dashboard

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilotwatch/pilotwatch/pkg/types"
	"github.com/pilotwatch/pilotwatch/server/internal/danger"
	"github.com/pilotwatch/pilotwatch/server/internal/debrief"
	"github.com/pilotwatch/pilotwatch/server/internal/events"
	"github.com/pilotwatch/pilotwatch/server/internal/roster"
	"github.com/pilotwatch/pilotwatch/server/internal/session"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	d   *Dashboard
	bus *events.Bus

	mu     sync.Mutex
	now    time.Time
	events []events.Event
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) eventTypes() []events.Type {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.Type, len(f.events))
	for i, e := range f.events {
		out[i] = e.Type
	}
	return out
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	r, err := roster.New(roster.DefaultPilots(t0))
	require.NoError(t, err)

	f := &fixture{bus: events.NewBus(), now: t0}
	f.bus.Subscribe(func(e events.Event) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.events = append(f.events, e)
	})
	n := 0
	f.d = New(Options{
		Roster: r,
		Bus:    f.bus,
		Now:    f.clock,
		NewID: func() string {
			n++
			return []string{"m-1", "m-2", "m-3"}[n-1]
		},
	})
	return f
}

func (f *fixture) record(t *testing.T, id string, hr int) {
	t.Helper()
	p, err := f.d.Pilot(id)
	require.NoError(t, err)
	v := p.Vitals
	v.Timestamp = time.Time{}
	v.HeartRate = hr
	f.advance(time.Second)
	_, err = f.d.RecordVitals(id, v)
	require.NoError(t, err)
}

func TestEndToEnd_AutopilotAndDebrief(t *testing.T) {
	f := newFixture(t)
	d := f.d

	_, err := d.StartMission()
	require.NoError(t, err)
	_, err = d.SetPilotStatus("P001", types.StatusActive)
	require.NoError(t, err)

	f.record(t, "P001", 190)
	assert.True(t, d.Danger().Alerting)

	st, err := d.BeginAutopilotCountdown()
	require.NoError(t, err)
	require.NotNil(t, st.Countdown)
	assert.Equal(t, 15, *st.Countdown)

	for i := 0; i < 15; i++ {
		f.record(t, "P001", 190)
		st = d.monitor.Tick()
	}
	require.NotNil(t, st.Countdown)
	assert.Equal(t, 0, *st.Countdown)
	assert.True(t, st.HandoffDue)

	ended, err := d.EndMission()
	require.NoError(t, err)
	assert.Equal(t, types.SessionEnded, ended.State)
	assert.Equal(t, danger.State{}, d.Danger(), "monitor stopped at end")
	require.Len(t, ended.ActivePilots, 1)
	assert.Len(t, ended.ActivePilots[0].VitalsHistory, 17)

	metrics := types.DebriefMetrics{CriticalSituations: "2", AvgResponseTime: "73", TimeInHighGs: "500"}
	_, err = d.AttachDebrief("P001", metrics)
	require.NoError(t, err)
	_, err = d.AttachDebrief("P001", metrics)
	assert.ErrorIs(t, err, session.ErrAlreadySet)

	p, err := d.Pilot("P001")
	require.NoError(t, err)
	assert.InDelta(t, 204.7, p.Metrics.Success, 0.001)

	got := f.eventTypes()
	assert.Equal(t, events.MissionStarted, got[0])
	assert.Equal(t, events.PilotActivated, got[1])
	assert.Contains(t, got, events.MissionEnded)
	assert.Equal(t, events.DebriefAttached, got[len(got)-1])
}

func TestDanger_LastActivatedPilotOnly(t *testing.T) {
	f := newFixture(t)
	d := f.d
	_, err := d.StartMission()
	require.NoError(t, err)

	_, err = d.SetPilotStatus("P001", types.StatusActive)
	require.NoError(t, err)
	f.record(t, "P001", 190)
	assert.True(t, d.Danger().Alerting)

	// P002 becomes the monitored pilot; its vitals are normal.
	_, err = d.SetPilotStatus("P002", types.StatusActive)
	require.NoError(t, err)
	assert.False(t, d.Danger().Alerting)

	f.record(t, "P001", 200)
	assert.False(t, d.Danger().Alerting, "earlier pilot is not monitored")

	_, err = d.SetPilotStatus("P002", types.StatusStandby)
	require.NoError(t, err)
	st := d.Danger()
	assert.True(t, st.Alerting)
	assert.Equal(t, "P001", st.PilotID)
}

func TestCountdown_CancelledByRecovery(t *testing.T) {
	f := newFixture(t)
	d := f.d
	_, err := d.StartMission()
	require.NoError(t, err)
	_, err = d.SetPilotStatus("P001", types.StatusActive)
	require.NoError(t, err)
	f.record(t, "P001", 190)

	_, err = d.BeginAutopilotCountdown()
	require.NoError(t, err)
	d.monitor.Tick()

	f.record(t, "P001", 70)
	st := d.Danger()
	assert.False(t, st.Alerting)
	assert.Nil(t, st.Countdown)
}

func TestBeginAutopilotCountdown_Errors(t *testing.T) {
	f := newFixture(t)
	_, err := f.d.BeginAutopilotCountdown()
	assert.ErrorIs(t, err, session.ErrInvalidTransition)

	_, err = f.d.StartMission()
	require.NoError(t, err)
	_, err = f.d.BeginAutopilotCountdown()
	assert.ErrorIs(t, err, danger.ErrNotAlerting)
}

func TestStartMission(t *testing.T) {
	f := newFixture(t)
	d := f.d

	// Pilots selected before start are tracked immediately, in roster order.
	_, err := d.SetPilotStatus("P003", types.StatusActive)
	require.NoError(t, err)
	_, err = d.SetPilotStatus("P002", types.StatusActive)
	require.NoError(t, err)

	m, err := d.StartMission()
	require.NoError(t, err)
	assert.Equal(t, "m-1", m.MissionID)
	require.Len(t, m.ActivePilots, 2)
	assert.Equal(t, "P002", m.ActivePilots[0].PilotID)
	assert.Equal(t, 93.0, m.ActivePilots[0].InitialReadiness)

	_, err = d.StartMission()
	assert.ErrorIs(t, err, session.ErrInvalidTransition)

	_, err = d.EndMission()
	require.NoError(t, err)
	_, err = d.EndMission()
	assert.ErrorIs(t, err, session.ErrInvalidTransition)

	m, err = d.StartMission()
	require.NoError(t, err)
	assert.Equal(t, "m-2", m.MissionID, "ended mission is replaced")
}

func TestRecordVitals_Errors(t *testing.T) {
	f := newFixture(t)
	d := f.d
	_, err := d.RecordVitals("P001", types.VitalsSnapshot{HeartRate: 80})
	assert.ErrorIs(t, err, session.ErrInvalidTransition)

	_, err = d.StartMission()
	require.NoError(t, err)
	_, err = d.RecordVitals("P001", types.VitalsSnapshot{HeartRate: 80})
	assert.ErrorIs(t, err, session.ErrNotFound, "standby pilot")

	_, err = d.RecordVitals("P999", types.VitalsSnapshot{HeartRate: 80})
	assert.ErrorIs(t, err, roster.ErrNotFound)

	_, err = d.SetPilotStatus("P999", types.StatusActive)
	assert.ErrorIs(t, err, roster.ErrNotFound)
}

func TestRecompute_UsesAttachedDebrief(t *testing.T) {
	f := newFixture(t)
	d := f.d
	_, err := d.StartMission()
	require.NoError(t, err)
	_, err = d.SetPilotStatus("P001", types.StatusActive)
	require.NoError(t, err)
	f.record(t, "P001", 99)
	_, err = d.EndMission()
	require.NoError(t, err)

	before, err := d.Pilot("P001")
	require.NoError(t, err)

	// Attach on the machine only, so the roster has not seen the debrief yet.
	_, err = debrief.Attach(d.machine, "P001", types.DebriefMetrics{CriticalSituations: "2", AvgResponseTime: "73", TimeInHighGs: "500"})
	require.NoError(t, err)

	p, err := d.Recompute("P001")
	require.NoError(t, err)
	assert.InDelta(t, 204.7, p.Metrics.Success, 0.001)
	assert.NotEqual(t, before.Metrics.Success, p.Metrics.Success)

	other, err := d.Pilot("P002")
	require.NoError(t, err)
	p, err = d.Recompute("P002")
	require.NoError(t, err)
	assert.Equal(t, other.Metrics.Success, p.Metrics.Success, "no debrief keeps success")

	_, err = d.Recompute("P999")
	assert.ErrorIs(t, err, roster.ErrNotFound)
}

func TestIngest_UpdatesRoster(t *testing.T) {
	f := newFixture(t)
	d := f.d
	_, err := d.StartMission()
	require.NoError(t, err)
	_, err = d.SetPilotStatus("P002", types.StatusActive)
	require.NoError(t, err)

	f.advance(time.Second)
	stored, err := d.Ingest("P002", func(cur types.VitalsSnapshot) types.VitalsSnapshot {
		cur.Timestamp = time.Time{}
		cur.OxygenLevel = 91
		return cur
	})
	require.NoError(t, err)
	assert.Equal(t, 91.0, stored.OxygenLevel)
	assert.Equal(t, 72, stored.HeartRate, "other readings carried over")
	assert.Equal(t, 80.0, stored.ReadinessScore)

	p, err := d.Pilot("P002")
	require.NoError(t, err)
	assert.Equal(t, stored, p.Vitals)
}

func TestFinalizedHooks(t *testing.T) {
	f := newFixture(t)
	d := f.d
	var got []types.MissionSession
	d.OnFinalized(func(m types.MissionSession) { got = append(got, m) })

	_, err := d.StartMission()
	require.NoError(t, err)
	_, err = d.SetPilotStatus("P001", types.StatusActive)
	require.NoError(t, err)
	require.NoError(t, d.SetCommanderFeedback("in flight"))
	assert.Empty(t, got, "no hook while in progress")

	_, err = d.EndMission()
	require.NoError(t, err)
	require.NoError(t, d.SetCommanderNotes("P001", "good"))
	require.NoError(t, d.AddRecommendations("m-1", []types.AIRecommendation{{PilotID: "P001", Recommendation: "rest"}}))
	assert.Error(t, d.AddRecommendations("m-x", nil))

	require.Len(t, got, 3)
	assert.Equal(t, "good", got[2].ActivePilots[0].CommanderNotes)
	assert.Len(t, got[2].AIRecommendations, 1)
}

func TestRun_PublishesDangerChanges(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.d.Run(ctx)

	_, err := f.d.StartMission()
	require.NoError(t, err)
	_, err = f.d.SetPilotStatus("P001", types.StatusActive)
	require.NoError(t, err)
	f.record(t, "P001", 30)

	require.Eventually(t, func() bool {
		for _, typ := range f.eventTypes() {
			if typ == events.DangerChanged {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func (f *fixture) snapshot() []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.Event(nil), f.events...)
}

func TestEventSeq_OrdersDangerAfterCause(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.d.Run(ctx)

	_, err := f.d.StartMission()
	require.NoError(t, err)
	_, err = f.d.SetPilotStatus("P001", types.StatusActive)
	require.NoError(t, err)
	f.record(t, "P001", 190)

	var dangerSeq uint64
	require.Eventually(t, func() bool {
		for _, e := range f.snapshot() {
			if e.Type == events.DangerChanged {
				dangerSeq = e.Seq
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	var vitalsSeq uint64
	for _, e := range f.snapshot() {
		if e.Type == events.VitalsRecorded {
			vitalsSeq = e.Seq
		}
	}
	require.NotZero(t, vitalsSeq)
	assert.Greater(t, dangerSeq, vitalsSeq)
}

func TestEventSeq_UniqueAndOrderedPerPilot(t *testing.T) {
	f := newFixture(t)
	_, err := f.d.StartMission()
	require.NoError(t, err)
	for _, id := range []string{"P002", "P003"} {
		_, err = f.d.SetPilotStatus(id, types.StatusActive)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for _, id := range []string{"P002", "P003"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, err := f.d.Ingest(id, func(cur types.VitalsSnapshot) types.VitalsSnapshot {
					f.advance(time.Millisecond)
					cur.Timestamp = time.Time{}
					cur.HeartRate = 70 + i
					return cur
				})
				assert.NoError(t, err)
			}
		}(id)
	}
	wg.Wait()

	seen := map[uint64]bool{}
	bySeq := map[string][]events.Event{}
	for _, e := range f.snapshot() {
		require.NotZero(t, e.Seq)
		require.False(t, seen[e.Seq], "duplicate seq %d", e.Seq)
		seen[e.Seq] = true
		if e.Type == events.VitalsRecorded {
			bySeq[e.PilotID] = append(bySeq[e.PilotID], e)
		}
	}
	for id, evs := range bySeq {
		require.Len(t, evs, 20, id)
		sort.Slice(evs, func(i, j int) bool { return evs[i].Seq < evs[j].Seq })
		for i := range evs {
			v := evs[i].Data.(types.VitalsSnapshot)
			assert.Equal(t, 70+i, v.HeartRate, "%s event %d", id, i)
		}
	}
}

func TestSummarize(t *testing.T) {
	dur := int64(3_723_000)
	s := Summarize(types.MissionSession{
		MissionID:         "m-1",
		MissionDurationMs: &dur,
		ActivePilots:      []types.PilotSession{{PilotID: "P1"}, {PilotID: "P2"}},
	})
	assert.Equal(t, "01:02:03", s.Duration)
	assert.Equal(t, []string{"P1", "P2"}, s.Pilots)
}
