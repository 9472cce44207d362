/*
Package registry holds the supervisor's view of every child it forked.

Records are keyed by role and identity (the pid for workers, the configured
name for agents) and kept in fork order, which is the order workers occupy in
the sticky routing table. Status updates go through SetStatus, which refuses
any transition that lowers the status rank:

	starting(0) < created(1) = failed(-1) < kill-acked(-2) = kill-issued(-3) < dead(-4)

A duplicate or late acknowledgment is therefore a no-op instead of a
regression. A record is removed by the supervisor once it is both dead and
its process has exited.
*/
package registry
