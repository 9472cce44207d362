package main

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/child"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/master"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the cluster",
	Long: `Start the master process, fork the agents and then the workers.

Flags override values read from the configuration file. YAML (.yaml, .yml)
and TOML (.toml) files are supported.

Examples:
  # Four workers of the demo framework on port 8080
  burrow start --max 4

  # Agents from a config file, sticky sessions, metrics on :9090
  burrow start -c burrow.yaml --socket --metrics-addr :9090`,
	RunE: runStart,
}

func init() {
	f := startCmd.Flags()
	f.StringP("config", "c", "", "Configuration file (YAML or TOML)")
	f.IntP("port", "p", config.DefaultPort, "Port the workers serve on")
	f.String("cwd", "", "Working directory of the children (default: current directory)")
	f.String("env", "", "Environment name passed to the children (default: $"+config.EnvVar+" or "+config.DefaultEnv+")")
	f.String("framework", config.DefaultFramework, "Framework the children run ("+strings.Join(child.Frameworks(), ", ")+")")
	f.StringSlice("agents", nil, "Agent names to start before the workers")
	f.Int("max", 0, "Number of workers (default: number of CPUs)")
	f.Bool("socket", false, "Own the listening socket and route connections to workers by client address")
	f.String("debug", "", "Child debug mode: true, false or a log level")
	f.String("data-dir", "", "Directory of the lifecycle journal (disabled when empty)")
	f.String("metrics-addr", "", "Address of the metrics and health endpoint (disabled when empty)")
	f.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	f.Bool("log-json", false, "Output logs in JSON format")
}

func runStart(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)

	if err := config.ApplyDefaults(cfg); err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.LogLevel),
		JSONOutput: cfg.LogJSON || !log.IsTerminal(os.Stdout),
	})
	logger := log.WithComponent("cli")

	broker := events.NewBroker()
	broker.Start()

	var recorder sync.WaitGroup
	var journal *storage.BoltJournal
	var sub events.Subscriber
	if cfg.DataDir != "" {
		journal, err = storage.NewBoltJournal(cfg.DataDir)
		if err != nil {
			broker.Stop()
			return err
		}
		sub = broker.Subscribe()
		recorder.Add(1)
		go func() {
			defer recorder.Done()
			record(journal, sub)
		}()
	}

	m := master.New(*cfg, master.Options{
		Broker: broker,
		// the process exits once cleanup below has run
		Exit: func(int) {},
	})

	var server *metrics.Server
	var collector *metrics.Collector
	if cfg.MetricsAddr != "" {
		metrics.SetVersion(Version)
		server, err = metrics.Serve(cfg.MetricsAddr)
		if err != nil {
			logger.Error().Err(err).Msg("Metrics endpoint disabled")
		}
		collector = metrics.NewCollector(m, 0)
		collector.Start()
	}

	logger.Info().
		Str("cluster_id", m.ClusterID()).
		Str("framework", cfg.Framework).
		Int("port", cfg.Port).
		Int("workers", cfg.Workers()).
		Strs("agents", cfg.Agents).
		Msg("Starting cluster")

	startErr := m.CreateServer(cmd.Context())
	if startErr != nil && !errors.Is(startErr, master.ErrKilling) {
		logger.Error().Err(startErr).Msg("Cluster failed to start, shutting down")
		m.Kill()
	}
	<-m.Done()

	if collector != nil {
		collector.Stop()
	}
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		server.Shutdown(ctx)
		cancel()
	}
	broker.Stop()
	if journal != nil {
		broker.Unsubscribe(sub)
		recorder.Wait()
		if err := journal.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close journal")
		}
	}

	if startErr != nil && !errors.Is(startErr, master.ErrKilling) {
		return startErr
	}
	return nil
}

// applyFlags copies explicitly set flags over the file configuration
func applyFlags(cmd *cobra.Command, cfg *types.ClusterConfig) {
	f := cmd.Flags()
	if f.Changed("port") {
		cfg.Port, _ = f.GetInt("port")
	}
	if f.Changed("cwd") {
		cfg.Cwd, _ = f.GetString("cwd")
	}
	if f.Changed("env") {
		cfg.Env, _ = f.GetString("env")
	}
	if f.Changed("framework") {
		cfg.Framework, _ = f.GetString("framework")
	}
	if f.Changed("agents") {
		cfg.Agents, _ = f.GetStringSlice("agents")
	}
	if f.Changed("max") {
		cfg.MaxWorkers, _ = f.GetInt("max")
	}
	if f.Changed("socket") {
		cfg.UseSocketServer, _ = f.GetBool("socket")
	}
	if f.Changed("debug") {
		cfg.Debug, _ = f.GetString("debug")
	}
	if f.Changed("data-dir") {
		cfg.DataDir, _ = f.GetString("data-dir")
	}
	if f.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = f.GetString("metrics-addr")
	}
	if f.Changed("log-level") || cfg.LogLevel == "" {
		cfg.LogLevel, _ = f.GetString("log-level")
	}
	if f.Changed("log-json") {
		cfg.LogJSON, _ = f.GetBool("log-json")
	}
}

// record appends every event to the journal until sub is closed
func record(journal storage.Journal, sub events.Subscriber) {
	logger := log.WithComponent("journal")
	for ev := range sub {
		if err := journal.Append(ev); err != nil {
			logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("Failed to journal event")
		}
	}
}
