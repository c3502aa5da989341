// Package alerts implements the rule evaluation engine and webhook delivery
// for crashdetector alerting. Rules are evaluated against each new risk
// snapshot; webhooks are delivered to Teams, Slack, or generic HTTP targets.
package alerts
