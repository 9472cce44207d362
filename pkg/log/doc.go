/*
Package log provides structured logging for burrow using zerolog.

A single package-level Logger is initialised once by the command (master or
child) through Init. Components derive child loggers with WithComponent, and
per-process fields with WithProcess:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: !log.IsTerminal(os.Stdout)})

	logger := log.WithComponent("master")
	logger.Info().Int("workers", 4).Msg("Forking workers")

	child := log.WithProcess("agent", "cache")
	child.Error().Err(err).Msg("Create hook failed")

Children inherit the master's stdout and stderr, so every line carries the
role and name fields to keep interleaved output attributable.
*/
package log
