// Package dashboard is the single owner of mutable mission state.
//
// Every mutation (status changes, vitals, start/end, debrief, countdown,
// annotations) runs under one mutex. Inside that critical section the danger
// monitor is re-evaluated from the newest snapshot of the most recently
// activated pilot, so it never sees a torn view. Domain events are collected
// during the critical section and published on the bus after the lock is
// released.
//
// Danger state changes caused by the countdown ticker arrive on a buffered
// channel that Run drains onto the bus. Finalized-mission hooks (store,
// archive) run after the lock is released, with a deep copy.
//
// Because publishing happens outside the lock, concurrent callers may deliver
// events in a different order than the state changed. Every event carries a
// Seq taken inside the critical section (or, for danger changes, when the
// monitor reports them); subscribers that need a total order use it.
package dashboard
