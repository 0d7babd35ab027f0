// Package metrics defines Prometheus metrics for mail delivery: send outcomes
// and latency, SMTP configuration resolution, deprecated parameter usage and
// audit sink health.
package metrics
