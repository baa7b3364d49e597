// Package alerts raises advisory alerts over recorded vitals and the
// autopilot escalation, and delivers them to webhooks.
//
// Rules are threshold expressions ("oxygen_level < 92") evaluated against
// every recorded snapshot, keyed per rule and pilot. A firing alert is
// suppressed from re-firing for its cooldown and resolves as soon as the
// condition is false. Escalation alerts mirror the danger monitor: a
// critical "danger" alert while alerting and a "handoff_due" alert once the
// autopilot countdown expires.
//
// Webhooks are delivered asynchronously to Teams, Slack, PagerDuty, or
// generic HTTP targets. Reload swaps rules and webhooks without dropping
// alerts that are already firing.
package alerts
