// Package session implements the mission session state machine.
//
// A Machine moves one-way through not_started → in_progress → ended. While
// in progress, pilots are activated (appending a PilotSession seeded with a
// scored snapshot of their current vitals) or put on standby (removing it and
// its history). RecordVitals is the only path that grows a vitals history and
// it rejects any sample that is not strictly newer than the last one.
//
// End stamps end_time, mission_duration_ms and each pilot's final
// performance exactly once. After that the only mutations are annotations:
// the write-once debrief per pilot, commander feedback and notes, and
// recommendation records.
//
// A failed transition never changes state. Errors wrap the package
// sentinels so callers can branch with errors.Is.
package session
