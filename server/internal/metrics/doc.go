// Package metrics exposes PilotWatch's Prometheus instrumentation.
//
// Metrics subscribes to the event bus and turns domain events into counters
// and per-pilot gauges; Middleware records HTTP request counts and latency
// labelled by chi route pattern. All collectors are registered on the
// Registerer passed to New so tests can use an isolated registry.
package metrics
