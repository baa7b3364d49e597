// Package archive persists ended missions to a SQL database through GORM.
//
// Each mission is one row keyed by mission_id. A few columns are lifted out
// for listing; the full session is kept as its JSON encoding so the archived
// copy round-trips exactly.
package archive
