/*
Package events provides the in-memory lifecycle event bus of the supervisor.

The master publishes one event per observable transition of a child or of the
cluster. Subscribers (the journal writer, the metrics collector, tests) each
get a buffered channel; a slow subscriber misses events rather than stalling
the supervisor.

# Event Types

	process.forked      a child was started
	process.created     a child reported a successful create hook
	process.failed      a child reported a failed create hook
	process.killing     the supervisor issued process:kill
	process.dead        a child reported its destroy hook settled
	process.exited      the OS process is gone
	process.respawned   a crashed worker was replaced
	cluster.ready       every agent and worker started
	cluster.shutdown    the ordered kill sequence began
	cluster.stopped     every child is dead

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	go func() {
		for ev := range sub {
			fmt.Println(ev.Type, ev.Role, ev.Process)
		}
	}()

	broker.Publish(events.NewEvent(events.EventClusterReady, "2 workers"))

Publish never blocks. Events queued before Stop are still delivered.
*/
package events
