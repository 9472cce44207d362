/*
Package metrics exposes Prometheus metrics and health endpoints for the
burrow supervisor.

All metrics live in the default Prometheus registry and are registered at
init time:

	burrow_processes_total{role,status}        gauge, refreshed by Collector
	burrow_forks_total{role}                   counter
	burrow_worker_respawns_total               counter
	burrow_startup_failures_total{role}        counter
	burrow_messages_total{action}              counter
	burrow_sticky_connections_total{result}    counter (routed, dropped)
	burrow_barrier_wait_seconds{role}          histogram
	burrow_shutdown_duration_seconds           histogram

# Health

The supervisor reports component health with UpdateComponent. /health is
unhealthy while any component is unhealthy. /ready additionally requires the
critical components (agents and workers by default) to be registered and
healthy, which happens when the cluster:ready broadcast goes out. /live
answers 200 for as long as the process runs.

	srv, err := metrics.Serve(":9090")
	if err != nil {
		return err
	}
	defer srv.Shutdown(ctx)

	timer := metrics.NewTimer()
	// ... wait for workers
	timer.ObserveDurationVec(metrics.BarrierWaitDuration, "worker")
*/
package metrics
