// Package roster holds the known pilots and their active/standby status.
//
// The roster is an explicit object owned by the hosting application; nothing
// mutates it except SetStatus, UpdateVitals and Recompute. Each pilot has
// exactly one current vitals snapshot here. History lives in the mission
// session, not the roster.
//
// FilterByStatus, WithStatus and Recompute are pure helpers over values and
// slices; Roster wraps them with a mutex for use by the dashboard.
package roster
