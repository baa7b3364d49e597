// Package store keeps ended missions in memory so the API can serve recent
// debriefs without a database. Entries are deep copies and expire after a
// configurable TTL; long-term history belongs to the archive package.
package store
