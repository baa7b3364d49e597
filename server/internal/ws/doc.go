// Package ws implements the WebSocket hub for the pilotwatch server.
//
// Hub manages a set of connected clients and pushes the full dashboard state
// to all of them on a configurable interval (default 2s) and shortly after
// every domain event. Events themselves are forwarded as they happen.
//
// New(source, interval) creates a Hub.
// Hub.Run(ctx) starts the broadcast loop and blocks until ctx is cancelled,
// then closes all active connections.
// Hub.Handle is an events.Handler; subscribe it to the bus.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket and sends the
// current state immediately on connect.
//
// Message format sent to clients:
//
//	{"event": "snapshot", "data": { /* same schema as GET /api/v1/state */ }}
//	{"event": "vitals.recorded", "data": { /* events.Event */ }}
//
// The upgrader accepts all origins. The endpoint is mounted at /ws/stream
// behind the API key middleware.
package ws
