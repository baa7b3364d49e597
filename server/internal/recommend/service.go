package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pilotwatch/pilotwatch/pkg/types"
	"github.com/pilotwatch/pilotwatch/server/internal/config"
)

// ErrAllFailed is returned by Generate when no pilot got a recommendation.
var ErrAllFailed = errors.New("recommend: every provider call failed")

// PilotRecommendation is one pilot's provider response.
type PilotRecommendation struct {
	PilotID        string               `json:"pilot_id"`
	Recommendation types.Recommendation `json:"recommendation"`
	Cached         bool                 `json:"cached"`
}

// Failure is one pilot whose recommendation could not be produced.
type Failure struct {
	PilotID string `json:"pilot_id"`
	Reason  string `json:"reason"`
}

// Result is the aggregate outcome of Generate, in request order.
type Result struct {
	Recommendations []PilotRecommendation `json:"recommendations"`
	Failed          []Failure             `json:"failed,omitempty"`
}

// Partial reports whether some, but not all, pilots failed.
func (r Result) Partial() bool {
	return len(r.Failed) > 0 && len(r.Recommendations) > 0
}

// Options tunes a Service. Zero values fall back to the config defaults.
type Options struct {
	Model         string
	Cache         Cache
	RatePerSecond float64
	Burst         int
	Concurrency   int
	MaxAttempts   int
}

// OptionsFrom derives Options from the recommendations config section.
func OptionsFrom(cfg config.RecommendationsConfig, c Cache) Options {
	return Options{
		Model:         cfg.Model,
		Cache:         c,
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.Burst,
		Concurrency:   cfg.Concurrency,
		MaxAttempts:   cfg.MaxAttempts,
	}
}

// Service fans recommendation requests out to a Provider.
type Service struct {
	provider    Provider
	cache       Cache
	model       string
	limiter     *rate.Limiter
	concurrency int
	maxAttempts int

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService creates a Service around p.
func NewService(p Provider, opts Options) *Service {
	s := &Service{
		provider:    p,
		cache:       opts.Cache,
		model:       opts.Model,
		limiter:     rate.NewLimiter(rate.Inf, 0),
		concurrency: opts.Concurrency,
		maxAttempts: opts.MaxAttempts,
		sleep:       sleepCtx,
	}
	if s.cache == nil {
		s.cache = nopCache{}
	}
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	if s.concurrency <= 0 {
		s.concurrency = config.DefaultRecConcurrency
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = config.DefaultRecMaxAttempts
	}
	return s
}

// Generate requests a recommendation for every entry of reqs. Per-pilot
// failures are collected into Result.Failed; the error is non-nil only when
// reqs is non-empty and every call failed.
func (s *Service) Generate(ctx context.Context, reqs []Request) (Result, error) {
	recs := make([]*PilotRecommendation, len(reqs))
	fails := make([]*Failure, len(reqs))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, r := range reqs {
		i, r := i, r
		g.Go(func() error {
			rec, cached, err := s.one(ctx, r)
			if err != nil {
				slog.Warn("recommend: pilot failed", "pilot", r.PilotID, "err", err)
				fails[i] = &Failure{PilotID: r.PilotID, Reason: err.Error()}
				return nil
			}
			recs[i] = &PilotRecommendation{PilotID: r.PilotID, Recommendation: rec, Cached: cached}
			return nil
		})
	}
	_ = g.Wait()

	var res Result
	res.Recommendations = make([]PilotRecommendation, 0, len(reqs))
	for i := range reqs {
		if recs[i] != nil {
			res.Recommendations = append(res.Recommendations, *recs[i])
		}
		if fails[i] != nil {
			res.Failed = append(res.Failed, *fails[i])
		}
	}
	if len(reqs) > 0 && len(res.Recommendations) == 0 {
		return res, fmt.Errorf("%w (%d pilots)", ErrAllFailed, len(reqs))
	}
	return res, nil
}

func (s *Service) one(ctx context.Context, r Request) (types.Recommendation, bool, error) {
	key := cacheKey(s.model, r)
	if rec, ok := s.cache.Get(ctx, key); ok {
		return rec, true, nil
	}

	bo := newBackoff()
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return types.Recommendation{}, false, &ProviderError{PilotID: r.PilotID, Err: err}
		}
		rec, err := s.provider.Recommend(ctx, r)
		if err == nil {
			s.cache.Set(ctx, key, rec)
			return rec, false, nil
		}
		lastErr = err

		var pe *ProviderError
		if errors.As(err, &pe) && !pe.retryable() {
			break
		}
		if attempt == s.maxAttempts {
			break
		}
		wait := bo.next()
		slog.Debug("recommend: retrying", "pilot", r.PilotID, "attempt", attempt, "retry_in", wait, "err", err)
		if err := s.sleep(ctx, wait); err != nil {
			return types.Recommendation{}, false, &ProviderError{PilotID: r.PilotID, Err: err}
		}
	}
	return types.Recommendation{}, false, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Records converts res into the mission's recommendation records, one per
// recommendation line. Priority follows the flight status; category follows
// the first risk factor's icon.
func Records(res Result, now time.Time) []types.AIRecommendation {
	var out []types.AIRecommendation
	for _, pr := range res.Recommendations {
		priority := priorityFor(pr.Recommendation.FlightStatus)
		category := categoryFor(pr.Recommendation.RiskFactors)
		for _, line := range pr.Recommendation.Recommendations {
			out = append(out, types.AIRecommendation{
				PilotID:        pr.PilotID,
				Recommendation: line,
				Priority:       priority,
				Category:       category,
				Timestamp:      now,
			})
		}
	}
	return out
}

func priorityFor(status string) string {
	switch status {
	case types.FlightRestrict:
		return "HIGH"
	case types.FlightMonitor:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

func categoryFor(risks []types.RiskFactor) string {
	if len(risks) == 0 {
		return "TRAINING"
	}
	switch risks[0].Icon {
	case "heart", "brain":
		return "HEALTH"
	case "activity":
		return "PERFORMANCE"
	default:
		return "TRAINING"
	}
}
