// Package alerts implements the rule evaluation engine and webhook delivery
// for TEMS alerting. Rules are "field op value" expressions evaluated
// against every scored source result; firing and resolved alerts are
// delivered to Teams, Slack, or generic HTTP webhooks.
package alerts
