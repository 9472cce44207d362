/*
Package types defines the core data structures shared by the burrow supervisor
and its child runtimes.

# Core Types

Topology:
  - Role: agent (named shared service) or worker (replaceable request handler)
  - ProcessRecord: one supervised child as seen by the master
  - Handle: the master's ownership of a child's OS process and channel

Lifecycle:
  - Status: the master's view of a child (starting, created, failed,
    kill-acked, kill-issued, dead)
  - KillPhase: the child's own shutdown progress (none, queued,
    begin-shutdown, running-destroy-hook, dead)

Configuration:
  - ClusterConfig: socket mode, port, working directory, environment name,
    debug mode, framework, agent names and worker pool size

# Status Codes

Status values keep the signed codes used on the wire and in the journal:

	 0  starting     forked, no report yet
	 1  created      create hook resolved
	-1  failed       create hook rejected
	-2  kill-acked   child reported it began shutting down
	-3  kill-issued  master sent process:kill
	-4  dead         child finished its destroy hook

Status.Rank orders these codes. The registry refuses transitions that lower
the rank, which makes duplicate or late acknowledgments harmless. Ranks:

	starting(0) < created, failed(1) < kill-acked, kill-issued(2) < dead(3)

The -3 to -2 move shares a rank on purpose: a late kill notification re-arms
the record and the master sends process:kill once more, which the child
ignores because its own phase guard has already advanced.
*/
package types
