/*
Package ipc implements the message channel between the burrow master and each
of its children.

Every child gets one end of an AF_UNIX SOCK_SEQPACKET socketpair as file
descriptor 3. Each envelope travels as a single packet, so message boundaries
are preserved without framing and delivery is ordered per direction. A socket
(an accepted TCP connection, for example) can ride along with an envelope as
SCM_RIGHTS ancillary data; the sender closes its copy once the write succeeds
and the receiver owns the duplicate.

# Envelope

	{action: string, body: map<string,any> | null, target?: string}

The envelope is encoded as a google.protobuf.Struct. Body values must be
JSON-like; anything else is normalised through encoding/json first, so numbers
come back as float64.

# Actions

	worker:created  agent:created   child -> master   create hook resolved
	worker:failed   agent:failed    child -> master   create hook rejected
	worker:kill     agent:kill      child -> master   shutdown queued
	worker:dead     agent:dead      child -> master   destroy hook settled
	shutdown                        child -> master   request cluster shutdown
	start:info                      child -> master   startup report row
	process:created                 master -> child   ack of created
	process:failed                  master -> child   ack of failed
	process:kill                    master -> child   run the destroy hook
	process:dead                    master -> child   reserved
	cluster:ready                   master -> all     every member started
	sticky:balance                  master -> worker  connection attached

Targets "workers" and "agents" address a whole group; "master" (or no target)
addresses the supervisor itself.

# Exit races

The channel does not guarantee that a packet is read before the sending
process exits. Packets already written stay readable after the peer closes,
so the last notification of a dying child is normally observed, but receivers
must tolerate its absence.
*/
package ipc
