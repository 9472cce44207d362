/*
Package master implements the burrow supervisor: it forks agents and workers,
tracks their lifecycle and drives the ordered shutdown.

# Startup

CreateServer forks every configured agent and waits, by polling, until each
one has reported created or failed. Any failure rejects with ErrAgentsFailed
and no worker is forked. The workers follow under the same barrier, and once
they settle cluster:ready is broadcast to every child.

# Status codes

	 0  starting     forked, nothing reported yet
	 1  created      create hook resolved (or no hook)
	-1  failed       create hook rejected, or exited before reporting
	-2  kill-acked   the child began its own shutdown
	-3  kill-issued  process:kill sent by the supervisor
	-4  dead         destroy hook settled, or the process is gone

Transitions never lower the rank of a status (see types.Status.Rank);
-2 and -3 share a rank so a late kill notification can be answered again.

# Shutdown

Kill is idempotent. It signals every worker with SIGTERM and then polls: each
worker that is created, failed or kill-acked is sent process:kill, and only
once every worker is dead are the agents signalled and driven the same way.
When the last agent is dead, Done is closed and Options.Exit runs with 0.

A child that exits while the cluster is shutting down is treated as dead.
Outside of shutdown an exiting worker is replaced with a fresh fork, while an
agent is never respawned.

# Sticky mode

With UseSocketServer the master listens on the configured port itself and
workers bind a private free port. Each accepted connection is hashed on its
remote host and handed to a worker as a sticky:balance message carrying the
socket.

# Spawner

The Spawner creates children and owns their channels. Callbacks it is given
must run on goroutines of their own, never from inside Spawn, Signal or Send,
since the master holds its lock while calling those.
*/
package master
