// Package ingest accepts pushed biometric samples and records them.
//
// A Sample carries a pilot id and any subset of readings; fields left out
// keep the pilot's current value. Samples arrive over HTTP (see api) or on
// the NATS subject "<prefix>.ingest". Each pilot has its own token-bucket
// limiter so one noisy sensor cannot flood the session history.
package ingest
