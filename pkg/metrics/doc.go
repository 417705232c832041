// Package metrics exposes Prometheus instrumentation for the rollout
// coordinator and deploy agent: per-host and whole-fleet deployment
// duration/outcome, bytes transferred, preflight reachability, balancer
// drain/ready results, and chunk-session lifecycle counts.
//
// Every metric is registered at package init against the default
// Prometheus registry; Handler() exposes them over HTTP for scraping, and
// Timer gives callers a lightweight way to observe a histogram without
// manually tracking a start time.
package metrics
