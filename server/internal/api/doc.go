// Package api implements the HTTP REST API for the pilotwatch server.
//
// New(deps) returns a chi router meant to be mounted at /api/v1. It serves:
//
//	GET  /health                         : liveness plus mission/danger summary
//	GET  /state                          : mission, roster and danger in one payload
//	GET  /pilots?status=active|standby   : roster with diagnostics
//	GET  /pilots/{id}                    : one pilot; 404 if unknown
//	PUT  /pilots/{id}/status             : {"status": "active"|"standby"}
//	POST /pilots/{id}/recompute          : refresh calculated metrics
//	POST /pilots/{id}/vitals             : push a partial vitals sample
//	GET  /mission                        : current mission, duration as HH:MM:SS
//	POST /mission/start                  : open a mission
//	POST /mission/end                    : end the open mission
//	PUT  /mission/feedback               : {"feedback": "..."}
//	PUT  /mission/pilots/{id}/notes      : {"notes": "..."}
//	PUT  /mission/pilots/{id}/debrief    : attach debrief metrics once
//	POST /mission/recommendations        : call the recommendation provider
//	GET  /missions                       : ended missions (memory + archive)
//	GET  /missions/{id}                  : one ended mission
//	GET  /danger                         : danger monitor state
//	POST /danger/countdown               : start the autopilot countdown
//	GET  /alerts                         : firing and recently resolved alerts
//
// Every response is JSON. Domain errors map to status codes in one place
// (statusFor): not found 404, invalid transition or duplicate write 409,
// out-of-order vitals 422, malformed input 400, provider failure 502.
// /health is served without authentication; everything else goes through
// Deps.Auth when set.
package api
