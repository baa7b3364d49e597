// Package events carries domain events out of the dashboard.
//
// Bus is a synchronous in-process fan-out: Publish calls every subscriber in
// registration order on the caller's goroutine, so handlers must return
// quickly (the WebSocket hub only enqueues). The dashboard publishes after
// releasing its lock.
//
// Forwarder is a Bus subscriber that republishes each event as JSON on the
// NATS subject "<prefix>.<type>", e.g. "pilotwatch.vitals.recorded".
// Connect dials NATS with reconnect handling; a broken connection is logged
// and never blocks the dashboard.
package events
