// Package source reads vitals samples for the relay agent.
//
// A source is a stream of JSON lines, one sample object per line, in the
// same shape the server accepts on POST /api/v1/pilots/{id}/vitals plus a
// pilot_id field. Lines are forwarded verbatim; only pilot_id is decoded so
// the agent does not need to track the server's sample schema.
//
// Blank lines and lines starting with '#' are skipped. Lines that are not
// JSON objects or lack a pilot_id are logged and dropped.
//
// With Follow set, a file source keeps polling for appended lines after EOF
// (tail -f). A trailing line without a newline is held until it is
// completed.
package source
