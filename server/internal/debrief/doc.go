// Package debrief validates and attaches post-mission metrics.
//
// Operators enter three numbers per pilot: critical situations, average
// response time (ms) and time spent in high G (ms). They are kept verbatim as
// strings on the pilot session; Parse is the typed boundary that turns them
// into numbers for scoring and the recommendation request. Empty fields read
// as 0. Anything that is not a plain non-negative decimal is a FieldError.
package debrief
