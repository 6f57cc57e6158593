// Package prometheus exposes authcore engine metrics through
// client_golang.
//
// [Collector] reads [authcore.Engine.MetricsSnapshot] on every scrape and
// turns it into const metrics, so the engine keeps its lock-free counters
// and nothing is double counted. Register it with any registry, or use
// [Collector.Handler] for a private one.
package prometheus
