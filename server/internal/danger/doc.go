// Package danger watches the newest vitals of the most recently activated
// pilot and drives the autopilot hand-off countdown.
//
// A heart rate above 180 or below 40 bpm puts the monitor into the alerting
// state. While alerting, the operator may begin a 15-second countdown; a
// background ticker decrements it once per interval until it reaches 0, at
// which point HandoffDue is set. Performing the hand-off is the caller's
// business.
//
// The countdown is cancelled the moment an observation is no longer
// dangerous, and Stop (called when the mission ends) resets everything. Each
// countdown owns its ticker goroutine, so a cancelled ticker can never
// decrement a newer countdown.
//
// A zero tick interval disables the background ticker; tests drive the
// countdown with Tick.
package danger
