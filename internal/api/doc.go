// Package api serves a read-only HTTP view of the orchestrator: the
// operation journal, aggregate stats, cooldown gates, chain metadata and
// Prometheus metrics.
package api
