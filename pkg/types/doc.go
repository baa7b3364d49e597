// Package types defines the shared Go types used across the pilotwatch server.
// These are the canonical in-memory representations of pilots, vitals samples
// and mission sessions, and their JSON tags are the external representation
// served by the API, streamed over WebSocket and persisted by the archive.
package types
