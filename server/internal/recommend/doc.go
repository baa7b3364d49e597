// Package recommend produces post-mission recommendations for each pilot of a
// finalized mission by calling an external OpenAI-compatible chat completion
// provider.
//
// Requests are built from a pilot's last vitals snapshot, its debrief metrics
// and its age/gender-adjusted baselines. Service fans the calls out per pilot
// with bounded concurrency, a shared rate limit, retries with exponential
// backoff and a response cache (in-memory or Redis). One pilot's failure never
// blocks the others: Generate reports partial success with the failed pilots
// and their reasons.
//
// Responses are consumed verbatim. Only existence checks are applied: the
// provider must return content and a flight_status.
package recommend
