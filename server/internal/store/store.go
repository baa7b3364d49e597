package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pilotwatch/pilotwatch/pkg/types"
)

// Entry is a finalized mission together with the time it was last written.
type Entry struct {
	Mission   types.MissionSession `json:"mission"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Store is a thread-safe in-memory store of ended missions, keyed by
// mission_id. Entries not rewritten within the TTL are evicted by Run. A zero
// TTL keeps entries for the life of the process.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Put stores or replaces a mission. The store keeps its own deep copy.
func (s *Store) Put(m types.MissionSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[m.MissionID] = &Entry{
		Mission:   m.Clone(),
		UpdatedAt: s.now(),
	}
}

// Get returns a copy of the mission with the given id.
func (s *Store) Get(missionID string) (types.MissionSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[missionID]
	if !ok {
		return types.MissionSession{}, false
	}
	return e.Mission.Clone(), true
}

// List returns copies of all live missions, most recently started first.
func (s *Store) List() []types.MissionSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.MissionSession, 0, len(s.data))
	for _, e := range s.data {
		if s.live(e, s.now()) {
			out = append(out, e.Mission.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}

// Count returns the total number of entries currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *Store) live(e *Entry, now time.Time) bool {
	return s.ttl <= 0 || e.UpdatedAt.After(now.Add(-s.ttl))
}

// Evict removes entries whose UpdatedAt is older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.data {
		if !s.live(e, now) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop, ticking at half the TTL
// (minimum 1 second, at most 10 minutes). Run blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	if s.ttl <= 0 {
		<-ctx.Done()
		return
	}
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	if interval > 10*time.Minute {
		interval = 10 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted expired missions", "count", n)
			}
		}
	}
}
