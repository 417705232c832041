package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Deployment metrics
	DeploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollout_deployments_total",
			Help: "Total number of rollouts by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	DeploymentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rollout_deployment_duration_seconds",
			Help:    "Whole-fleet rollout duration in seconds by strategy",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"strategy"},
	)

	HostDeploymentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rollout_host_deployment_duration_seconds",
			Help:    "Per-host deployment duration in seconds by outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	HostOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollout_host_outcomes_total",
			Help: "Total per-host deployment outcomes",
		},
		[]string{"outcome"},
	)

	BytesTransferred = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollout_bytes_transferred_total",
			Help: "Total archive bytes uploaded to hosts, by upload mode",
		},
		[]string{"mode"}, // inline | chunked | full
	)

	FilesChangedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollout_files_changed_total",
			Help: "Total entries pushed to hosts across all deployments",
		},
	)

	FilesDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollout_files_deleted_total",
			Help: "Total entries removed from hosts across all deployments",
		},
	)

	BatchesAbortedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollout_batches_aborted_total",
			Help: "Total canary rollouts that aborted remaining batches after a failure",
		},
	)

	// Preflight metrics
	PreflightDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rollout_preflight_duration_seconds",
			Help:    "Time taken to probe and analyze the whole fleet before a rollout",
			Buckets: prometheus.DefBuckets,
		},
	)

	HostsUnreachableTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollout_hosts_unreachable_total",
			Help: "Total hosts that failed the reachability probe during preflight",
		},
	)

	// Balancer metrics
	BalancerOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollout_balancer_operations_total",
			Help: "Total drain/ready operations issued against load balancers, by state and result",
		},
		[]string{"state", "result"},
	)

	// Chunk session metrics
	ActiveChunkSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollout_chunk_sessions_active",
			Help: "Number of chunked-upload sessions currently open on this agent",
		},
	)

	SessionsEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollout_chunk_sessions_evicted_total",
			Help: "Total chunk sessions evicted to stay under the concurrent-session limit",
		},
	)

	SessionsReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollout_chunk_sessions_reaped_total",
			Help: "Total chunk sessions reaped for sitting idle past their TTL",
		},
	)

	// Agent-side HTTP metrics
	AgentRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollout_agent_requests_total",
			Help: "Total requests served by the deploy agent, by route and status",
		},
		[]string{"route", "status"},
	)

	AgentRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rollout_agent_request_duration_seconds",
			Help:    "Deploy agent request duration in seconds by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(
		DeploymentsTotal,
		DeploymentDuration,
		HostDeploymentDuration,
		HostOutcomesTotal,
		BytesTransferred,
		FilesChangedTotal,
		FilesDeletedTotal,
		BatchesAbortedTotal,
		PreflightDuration,
		HostsUnreachableTotal,
		BalancerOperationsTotal,
		ActiveChunkSessions,
		SessionsEvictedTotal,
		SessionsReapedTotal,
		AgentRequestsTotal,
		AgentRequestDuration,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
