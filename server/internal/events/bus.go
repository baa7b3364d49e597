package events

import (
	"sync"
	"time"
)

// Type names a domain event.
type Type string

const (
	MissionStarted           Type = "mission.started"
	PilotActivated           Type = "pilot.activated"
	PilotStandby             Type = "pilot.standby"
	VitalsRecorded           Type = "vitals.recorded"
	DangerChanged            Type = "danger.changed"
	MissionEnded             Type = "mission.ended"
	DebriefAttached          Type = "debrief.attached"
	RecommendationsGenerated Type = "recommendations.generated"
)

// Event is one notification. Data is the event-specific payload and must be
// JSON-serialisable.
//
// Seq is assigned by the publisher in the order the underlying state changes
// happened. Publishers on different goroutines may deliver events out of Seq
// order; consumers that care about ordering compare Seq, not arrival.
type Event struct {
	Seq       uint64    `json:"seq,omitempty"`
	Type      Type      `json:"type"`
	MissionID string    `json:"mission_id,omitempty"`
	PilotID   string    `json:"pilot_id,omitempty"`
	Time      time.Time `json:"time"`
	Data      any       `json:"data,omitempty"`
}

// Handler receives published events. It must not block.
type Handler func(Event)

// Bus fans events out to subscribers.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers h for every subsequent event.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers e to every subscriber. A zero Time is set to now.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	b.mu.RLock()
	hs := b.handlers
	b.mu.RUnlock()
	for _, h := range hs {
		h(e)
	}
}
