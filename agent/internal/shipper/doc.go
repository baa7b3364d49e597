// Package shipper posts relayed vitals samples to pilotwatch-server over
// HTTP (POST /api/v1/pilots/{id}/vitals).
//
// Shipper.Ship() is non-blocking: samples are placed in an in-memory channel
// (default capacity 1000). When the buffer is full the oldest entry is
// evicted so the latest readings are always preserved.
//
// Shipper.Run() drains the buffer one sample at a time. Network errors, 429
// and 5xx responses are retried with truncated exponential backoff (1s→60s,
// ±25% jitter) before the next sample is sent. Any other 4xx (bad sample,
// unknown or inactive pilot, out-of-order timestamp, bad API key) discards
// the sample immediately.
//
// Auth: mTLS client certificates, an API key header, or none. A CA file may
// be given in any mode to trust a private server certificate.
package shipper
