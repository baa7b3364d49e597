package roster

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pilotwatch/pilotwatch/pkg/types"
	"github.com/pilotwatch/pilotwatch/server/internal/compute"
)

// ErrNotFound is returned when a pilot id is not on the roster.
var ErrNotFound = errors.New("roster: pilot not found")

// FilterByStatus returns the pilots with the given status, preserving order.
func FilterByStatus(pilots []types.Pilot, status types.PilotStatus) []types.Pilot {
	out := make([]types.Pilot, 0, len(pilots))
	for _, p := range pilots {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out
}

// WithStatus returns a copy of pilots with the matching pilot's status
// replaced. found is false, and the copy equal to the input, when id is
// unknown.
func WithStatus(pilots []types.Pilot, id string, status types.PilotStatus) (updated []types.Pilot, found bool) {
	updated = append([]types.Pilot(nil), pilots...)
	for i := range updated {
		if updated[i].ID == id {
			updated[i].Status = status
			return updated, true
		}
	}
	return updated, false
}

// Recompute feeds the pilot's current vitals into the scoring engine and
// returns the pilot with refreshed metrics. When debrief is non-nil the
// success score is derived from it; otherwise the previous success score is
// kept.
func Recompute(p types.Pilot, debrief *types.DebriefValues) types.Pilot {
	p.Vitals = compute.Score(p.Vitals)
	p.Metrics.Readiness = p.Vitals.ReadinessScore
	p.Metrics.Performance = p.Vitals.PerformanceScore
	if debrief != nil {
		p.Metrics.Success = compute.Success(debrief.AvgResponseTimeMs, debrief.TimeInHighGsMs, debrief.CriticalSituations)
	}
	return p
}

// Roster is a concurrency-safe, ordered pilot list.
type Roster struct {
	mu     sync.RWMutex
	pilots []types.Pilot
}

// New returns a roster seeded with pilots in the given order. Duplicate ids
// are rejected.
func New(pilots []types.Pilot) (*Roster, error) {
	seen := make(map[string]bool, len(pilots))
	for _, p := range pilots {
		if p.ID == "" {
			return nil, errors.New("roster: pilot id is required")
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("roster: duplicate pilot id %q", p.ID)
		}
		if !p.Status.Valid() {
			return nil, fmt.Errorf("roster: pilot %q: invalid status %q", p.ID, p.Status)
		}
		seen[p.ID] = true
	}
	return &Roster{pilots: append([]types.Pilot(nil), pilots...)}, nil
}

// List returns a copy of every pilot in roster order.
func (r *Roster) List() []types.Pilot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.Pilot(nil), r.pilots...)
}

// ListByStatus returns the pilots with the given status in roster order.
func (r *Roster) ListByStatus(status types.PilotStatus) []types.Pilot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return FilterByStatus(r.pilots, status)
}

// Get returns the pilot with the given id.
func (r *Roster) Get(id string) (types.Pilot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.index(id)
	if i < 0 {
		return types.Pilot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.pilots[i], nil
}

// SetStatus changes one pilot's status and returns the updated pilot. The
// roster is unchanged when id is unknown.
func (r *Roster) SetStatus(id string, status types.PilotStatus) (types.Pilot, error) {
	if !status.Valid() {
		return types.Pilot{}, fmt.Errorf("roster: invalid status %q", status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	updated, ok := WithStatus(r.pilots, id, status)
	if !ok {
		return types.Pilot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.pilots = updated
	return r.pilots[r.index(id)], nil
}

// UpdateVitals replaces the pilot's current snapshot. Scores are not
// recomputed; call Recompute for that.
func (r *Roster) UpdateVitals(id string, v types.VitalsSnapshot) (types.Pilot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(id)
	if i < 0 {
		return types.Pilot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.pilots[i].Vitals = v
	return r.pilots[i], nil
}

// Recompute refreshes one pilot's calculated metrics in place.
func (r *Roster) Recompute(id string, debrief *types.DebriefValues) (types.Pilot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(id)
	if i < 0 {
		return types.Pilot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.pilots[i] = Recompute(r.pilots[i], debrief)
	return r.pilots[i], nil
}

// index must be called with r.mu held.
func (r *Roster) index(id string) int {
	for i := range r.pilots {
		if r.pilots[i].ID == id {
			return i
		}
	}
	return -1
}
