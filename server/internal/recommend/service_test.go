package recommend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilotwatch/pilotwatch/pkg/types"
)

// fakeProvider answers from a per-pilot script of errors; a pilot with no
// remaining scripted errors succeeds.
type fakeProvider struct {
	mu     sync.Mutex
	script map[string][]error
	calls  map[string]int
}

func newFakeProvider(script map[string][]error) *fakeProvider {
	return &fakeProvider{script: script, calls: map[string]int{}}
}

func (f *fakeProvider) Recommend(_ context.Context, r Request) (types.Recommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[r.PilotID]++
	if errs := f.script[r.PilotID]; len(errs) > 0 {
		f.script[r.PilotID] = errs[1:]
		return types.Recommendation{}, errs[0]
	}
	return types.Recommendation{
		FlightStatus:    types.FlightFitToFly,
		Recommendations: []string{"Cleared for " + r.PilotID},
	}, nil
}

func (f *fakeProvider) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func newTestService(p Provider, opts Options) *Service {
	s := NewService(p, opts)
	s.sleep = func(context.Context, time.Duration) error { return nil }
	return s
}

func reqs(ids ...string) []Request {
	out := make([]Request, len(ids))
	for i, id := range ids {
		out[i] = Request{PilotID: id, Age: 30, Gender: types.GenderMale, Vitals: types.VitalsSnapshot{HeartRate: 70 + i}}
	}
	return out
}

func TestGenerate_AllSucceed(t *testing.T) {
	p := newFakeProvider(nil)
	s := newTestService(p, Options{Concurrency: 2})

	res, err := s.Generate(context.Background(), reqs("P001", "P002", "P003"))
	require.NoError(t, err)
	require.Len(t, res.Recommendations, 3)
	assert.Empty(t, res.Failed)
	assert.False(t, res.Partial())
	for i, id := range []string{"P001", "P002", "P003"} {
		assert.Equal(t, id, res.Recommendations[i].PilotID)
	}
}

func TestGenerate_PartialFailureDoesNotBlockOthers(t *testing.T) {
	p := newFakeProvider(map[string][]error{
		"P002": {&ProviderError{PilotID: "P002", Status: 401, Err: errors.New("bad key")}},
	})
	s := newTestService(p, Options{MaxAttempts: 3})

	res, err := s.Generate(context.Background(), reqs("P001", "P002", "P003"))
	require.NoError(t, err)
	assert.True(t, res.Partial())
	require.Len(t, res.Recommendations, 2)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "P002", res.Failed[0].PilotID)
	assert.Contains(t, res.Failed[0].Reason, "401")
	assert.Equal(t, 1, p.count("P002"), "non-retryable error must not be retried")
}

func TestGenerate_RetriesTransientErrors(t *testing.T) {
	transient := &ProviderError{PilotID: "P001", Status: 503, Err: errors.New("unavailable")}
	p := newFakeProvider(map[string][]error{"P001": {transient, transient}})
	s := newTestService(p, Options{MaxAttempts: 3})

	res, err := s.Generate(context.Background(), reqs("P001"))
	require.NoError(t, err)
	require.Len(t, res.Recommendations, 1)
	assert.Equal(t, 3, p.count("P001"))
}

func TestGenerate_AllFail(t *testing.T) {
	transient := &ProviderError{Status: 500, Err: errors.New("down")}
	p := newFakeProvider(map[string][]error{
		"P001": {transient, transient},
		"P002": {transient, transient},
	})
	s := newTestService(p, Options{MaxAttempts: 2})

	res, err := s.Generate(context.Background(), reqs("P001", "P002"))
	require.ErrorIs(t, err, ErrAllFailed)
	assert.Len(t, res.Failed, 2)
	assert.Empty(t, res.Recommendations)
	assert.Equal(t, 2, p.count("P001"))
}

func TestGenerate_Empty(t *testing.T) {
	s := newTestService(newFakeProvider(nil), Options{})
	res, err := s.Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Recommendations)
}

func TestGenerate_UsesCache(t *testing.T) {
	p := newFakeProvider(nil)
	s := newTestService(p, Options{Model: "m", Cache: NewMemoryCache(time.Minute)})

	first, err := s.Generate(context.Background(), reqs("P001"))
	require.NoError(t, err)
	assert.False(t, first.Recommendations[0].Cached)

	second, err := s.Generate(context.Background(), reqs("P001"))
	require.NoError(t, err)
	assert.True(t, second.Recommendations[0].Cached)
	assert.Equal(t, 1, p.count("P001"))
}

func TestGenerate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newTestService(newFakeProvider(nil), Options{RatePerSecond: 1, Burst: 1})
	// Exhaust the single token so Wait has to block and observe ctx.
	s.limiter.Allow()

	_, err := s.Generate(ctx, reqs("P001"))
	require.ErrorIs(t, err, ErrAllFailed)
}

func TestRecords(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	res := Result{Recommendations: []PilotRecommendation{
		{PilotID: "P001", Recommendation: types.Recommendation{
			FlightStatus:    types.FlightRestrict,
			RiskFactors:     []types.RiskFactor{{Icon: "heart"}},
			Recommendations: []string{"Ground 24h", "Cardiology review"},
		}},
		{PilotID: "P002", Recommendation: types.Recommendation{
			FlightStatus:    types.FlightFitToFly,
			Recommendations: []string{"Continue schedule"},
		}},
	}}

	got := Records(res, now)
	require.Len(t, got, 3)
	assert.Equal(t, types.AIRecommendation{PilotID: "P001", Recommendation: "Ground 24h", Priority: "HIGH", Category: "HEALTH", Timestamp: now}, got[0])
	assert.Equal(t, "P002", got[2].PilotID)
	assert.Equal(t, "LOW", got[2].Priority)
	assert.Equal(t, "TRAINING", got[2].Category)
}

func TestBackoff_NeverExceedsMax(t *testing.T) {
	b := newBackoff()
	first := b.next()
	assert.LessOrEqual(t, first, backoffInitial*5/4)
	for i := 0; i < 50; i++ {
		assert.LessOrEqual(t, b.next(), backoffMax*5/4)
	}
}
