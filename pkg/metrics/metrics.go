package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Process metrics
	ProcessesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_processes_total",
			Help: "Number of supervised processes by role and status",
		},
		[]string{"role", "status"},
	)

	ForksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_forks_total",
			Help: "Total number of child processes forked by role",
		},
		[]string{"role"},
	)

	RespawnsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_worker_respawns_total",
			Help: "Total number of workers replaced after an unexpected exit",
		},
	)

	StartupFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_startup_failures_total",
			Help: "Total number of children whose create hook failed, by role",
		},
		[]string{"role"},
	)

	// Protocol metrics
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_messages_total",
			Help: "Total number of protocol messages received by the supervisor, by action",
		},
		[]string{"action"},
	)

	StickyConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_sticky_connections_total",
			Help: "Total number of connections accepted by the sticky listener, by result",
		},
		[]string{"result"},
	)

	// Lifecycle metrics
	BarrierWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_barrier_wait_seconds",
			Help:    "Time spent waiting for a startup barrier, by role",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"role"},
	)

	ShutdownDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_shutdown_duration_seconds",
			Help:    "Time taken by the ordered kill sequence",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ProcessesTotal)
	prometheus.MustRegister(ForksTotal)
	prometheus.MustRegister(RespawnsTotal)
	prometheus.MustRegister(StartupFailuresTotal)
	prometheus.MustRegister(MessagesTotal)
	prometheus.MustRegister(StickyConnectionsTotal)
	prometheus.MustRegister(BarrierWaitDuration)
	prometheus.MustRegister(ShutdownDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
