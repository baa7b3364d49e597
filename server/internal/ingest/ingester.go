package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/pilotwatch/pilotwatch/pkg/types"
)

// ErrRateLimited is returned when a pilot's samples arrive faster than the
// configured rate.
var ErrRateLimited = errors.New("ingest: rate limited")

// Recorder merges a sample into a pilot's vitals and records the result.
// *dashboard.Dashboard implements it.
type Recorder interface {
	Ingest(pilotID string, merge func(current types.VitalsSnapshot) types.VitalsSnapshot) (types.VitalsSnapshot, error)
}

// Ingester validates, rate-limits and records samples.
type Ingester struct {
	rec   Recorder
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New returns an ingester. A limit of rate.Inf disables limiting.
func New(rec Recorder, limit rate.Limit, burst int) *Ingester {
	if burst < 1 {
		burst = 1
	}
	return &Ingester{rec: rec, limit: limit, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

func (in *Ingester) limiter(pilotID string) *rate.Limiter {
	in.mu.Lock()
	defer in.mu.Unlock()
	l, ok := in.limiters[pilotID]
	if !ok {
		l = rate.NewLimiter(in.limit, in.burst)
		in.limiters[pilotID] = l
	}
	return l
}

// Record validates s and records it.
func (in *Ingester) Record(s Sample) (types.VitalsSnapshot, error) {
	if err := s.Validate(); err != nil {
		return types.VitalsSnapshot{}, err
	}
	if !in.limiter(s.PilotID).Allow() {
		return types.VitalsSnapshot{}, fmt.Errorf("%w: %s", ErrRateLimited, s.PilotID)
	}
	return in.rec.Ingest(s.PilotID, s.Apply)
}

// HandleMessage decodes one JSON sample and records it.
func (in *Ingester) HandleMessage(data []byte) error {
	var s Sample
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("ingest: decode sample: %w", err)
	}
	_, err := in.Record(s)
	return err
}

// Subscribe consumes samples from subject until the subscription is drained.
// Rejected samples are logged; NATS has no reply path for them.
func (in *Ingester) Subscribe(nc *nats.Conn, subject string) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		if err := in.HandleMessage(msg.Data); err != nil {
			slog.Warn("ingest: sample rejected", "subject", msg.Subject, "err", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: subscribe %s: %w", subject, err)
	}
	slog.Info("ingest: subscribed", "subject", subject)
	return sub, nil
}
