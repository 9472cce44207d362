/*
Package child runs one supervised role inside a child process.

The supervisor re-executes the burrow binary with the hidden child command.
The command looks up the configured framework, builds a Runtime around the
inherited channel and calls Run, which blocks until the process may exit.

# Roles

A framework supplies one constructor per role. The value it returns may
implement any of the optional hooks:

	Creator         ProcessCreate(ctx) error      startup, awaited before "created"
	Destroyer       ProcessDestroy(ctx) error     teardown, run once during shutdown
	MessageHandler  ProcessMessage(msg, conn)     protocol messages and attached sockets
	LoggerProvider  Logger() *zerolog.Logger      logger for hook failures and faults

Hooks have no timeout imposed by the runtime. A hook that never returns stalls
startup or shutdown of the whole cluster, so roles enforce their own limits.

# Kill phases

	0 none            running
	1 queued          first termination signal; {role}:kill sent, waiting for process:kill
	2 begin-shutdown  process:kill received
	3 destroy-hook    ProcessDestroy running
	4 dead            {role}:dead sent, Run returns 0

Only the first signal acts. Phase 2 is observed by a 10ms ticker, which starts
the destroy hook; a failing hook is logged and still leads to phase 4. When the
channel to the supervisor closes, the runtime skips the acknowledgment and
tears down at once.

# Faults

Panics in hooks and message handlers are recovered. Errors raised elsewhere
are reported with App.Fault. Before the create hook settled a fault asks the
supervisor for a cluster shutdown; afterwards it is logged and the process
keeps serving.
*/
package child
