// Package compute derives pilot readiness, performance and success scores
// from raw vitals.
//
// score.go provides the pure scoring functions. Readiness starts at 100 and
// subtracts fixed, accumulating penalties:
//
//	heart rate > 1.5 × resting heart rate   -10
//	HRV < 0.10                              -15
//	systolic > 140 or diastolic > 90        -10
//	oxygen < 95 %                           -20
//	body temperature > 37.5 °C              -25
//
// Performance starts from readiness and subtracts -15 for G-force above 7
// (or -5 above 5) and -10 for more than 120 minutes of activity. Both are
// clamped to 0–100. Success is an unclamped weighted sum of debrief metrics.
//
// Nothing in this package fails or has side effects; callers validate inputs.
package compute
