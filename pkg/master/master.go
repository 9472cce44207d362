package master

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cuemby/burrow/pkg/barrier"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/ipc"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/registry"
	"github.com/cuemby/burrow/pkg/sticky"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrAgentsFailed is returned by CreateServer when an agent failed to start
	ErrAgentsFailed = errors.New("one or more agents failed to start")
	// ErrWorkersFailed is returned by CreateServer when a worker failed to start
	ErrWorkersFailed = errors.New("one or more workers failed to start")
	// ErrKilling is returned by CreateServer once the kill sequence has begun
	ErrKilling = errors.New("cluster is shutting down")
)

// HandlerFunc handles an action outside the lifecycle protocol. Socket
// ownership passes to the handler when msg.Conn is set.
type HandlerFunc func(msg *ipc.Message)

// Options configure a Master. Zero values select the production behaviour.
type Options struct {
	// Spawner starts children. Defaults to an ExecSpawner on the running binary.
	Spawner Spawner

	// Signals triggers Kill. When nil, SIGTERM, SIGINT and SIGQUIT are watched.
	Signals <-chan os.Signal

	// Exit terminates the process once every child is dead. Defaults to os.Exit.
	Exit func(code int)

	// Broker receives lifecycle events. Optional.
	Broker *events.Broker

	// Interval is the poll period of barriers and the kill loop
	Interval time.Duration

	// Output receives the start-info table. Defaults to os.Stdout.
	Output io.Writer
}

// Master is the process supervisor. All state transitions run under mu, so
// message handling, exit detection and kill ticks never interleave.
type Master struct {
	cfg       types.ClusterConfig
	clusterID string
	spawner   Spawner
	registry  *registry.Registry
	broker    *events.Broker
	exit      func(int)
	interval  time.Duration
	output    io.Writer
	logger    zerolog.Logger

	mu         sync.Mutex
	killing    bool
	stage      killStage
	killTimer  *metrics.Timer
	workerPort int
	balancer   *sticky.Balancer
	handlers   map[string]HandlerFunc
	startInfo  []map[string]any

	done        chan struct{}
	doneOnce    sync.Once
	stopSignals func()
}

// New creates a supervisor for cfg and starts watching termination signals
func New(cfg types.ClusterConfig, opts Options) *Master {
	m := &Master{
		cfg:       cfg,
		clusterID: uuid.NewString(),
		spawner:   opts.Spawner,
		registry:  registry.New(),
		broker:    opts.Broker,
		exit:      opts.Exit,
		interval:  opts.Interval,
		output:    opts.Output,
		handlers:  make(map[string]HandlerFunc),
		done:      make(chan struct{}),
	}
	if m.spawner == nil {
		m.spawner = &ExecSpawner{}
	}
	if m.exit == nil {
		m.exit = os.Exit
	}
	if m.interval <= 0 {
		m.interval = barrier.DefaultInterval
	}
	if m.output == nil {
		m.output = os.Stdout
	}
	m.logger = log.WithComponent("master").With().Str("cluster_id", m.clusterID).Logger()
	m.workerPort = cfg.Port

	signals := opts.Signals
	m.stopSignals = func() {}
	if signals == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
		m.stopSignals = func() { signal.Stop(ch) }
		signals = ch
	}
	go m.watchSignals(signals)

	return m
}

// ClusterID identifies this run; children receive it at launch
func (m *Master) ClusterID() string {
	return m.clusterID
}

// Done is closed when the kill sequence has completed, before Exit is called
func (m *Master) Done() <-chan struct{} {
	return m.done
}

// Records returns a snapshot of the supervised processes of role
func (m *Master) Records(role types.Role) []types.ProcessRecord {
	return m.registry.Records(role)
}

// Handle registers fn for an action outside the lifecycle protocol
func (m *Master) Handle(action string, fn HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[action] = fn
}

// Killing reports whether the kill sequence has begun
func (m *Master) Killing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.killing
}

// CreateServer starts the cluster: the sticky listener if configured, then
// the agents, then the workers, waiting for each group to start before
// moving on. Once every child reported created, cluster:ready is broadcast.
// On error the caller is expected to call Kill.
func (m *Master) CreateServer(ctx context.Context) error {
	m.mu.Lock()
	if m.killing {
		m.mu.Unlock()
		return ErrKilling
	}
	if m.cfg.UseSocketServer && m.balancer == nil {
		if err := m.startSticky(); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	metrics.UpdateComponent(metrics.ComponentAgents, len(m.cfg.Agents) == 0, "starting")
	metrics.UpdateComponent(metrics.ComponentWorkers, false, "waiting for agents")

	for _, name := range m.cfg.Agents {
		if err := m.forkAgent(name); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	m.mu.Unlock()

	if len(m.cfg.Agents) > 0 {
		if err := m.await(ctx, types.RoleAgent); err != nil {
			metrics.UpdateComponent(metrics.ComponentAgents, false, err.Error())
			if errors.Is(err, barrier.ErrFailed) {
				return fmt.Errorf("%w: %w", ErrAgentsFailed, err)
			}
			return err
		}
		metrics.UpdateComponent(metrics.ComponentAgents, true, "")
	}

	m.mu.Lock()
	if m.killing {
		m.mu.Unlock()
		return ErrKilling
	}
	n := m.cfg.Workers()
	m.logger.Info().Int("workers", n).Msg("Forking workers")
	metrics.UpdateComponent(metrics.ComponentWorkers, false, "starting")
	for range n {
		if err := m.forkWorker(); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	m.mu.Unlock()

	if err := m.await(ctx, types.RoleWorker); err != nil {
		metrics.UpdateComponent(metrics.ComponentWorkers, false, err.Error())
		if errors.Is(err, barrier.ErrFailed) {
			return fmt.Errorf("%w: %w", ErrWorkersFailed, err)
		}
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.killing {
		return ErrKilling
	}
	metrics.UpdateComponent(metrics.ComponentWorkers, true, "")

	ready := ipc.NewMessage(ipc.ActionClusterReady, nil)
	recipients := m.broadcast(types.RoleWorker, ready) + m.broadcast(types.RoleAgent, ready)
	m.logger.Info().
		Int("agents", m.registry.Len(types.RoleAgent)).
		Int("workers", m.registry.Len(types.RoleWorker)).
		Msg("Cluster ready")
	m.publish(&events.Event{
		Type:    events.EventClusterReady,
		Message: fmt.Sprintf("%d processes notified", recipients),
	})
	return nil
}

// await blocks on the startup barrier of role
func (m *Master) await(ctx context.Context, role types.Role) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.BarrierWaitDuration, string(role))

	return barrier.Wait(ctx, m.interval,
		func() []types.ProcessRecord { return m.registry.Records(role) },
		classifyStartup,
	)
}

// classifyStartup treats every settled status other than failed as started
func classifyStartup(rec types.ProcessRecord) barrier.Class {
	switch rec.Status {
	case types.StatusStarting:
		return barrier.Pending
	case types.StatusFailed:
		return barrier.Failure
	default:
		return barrier.Success
	}
}

func (m *Master) watchSignals(signals <-chan os.Signal) {
	for {
		select {
		case sig := <-signals:
			m.logger.Info().Str("signal", sig.String()).Msg("Received signal")
			m.Kill()
		case <-m.done:
			return
		}
	}
}

func (m *Master) publish(ev *events.Event) {
	if m.broker == nil {
		return
	}
	if ev.Metadata == nil {
		ev.Metadata = map[string]string{}
	}
	ev.Metadata["run"] = m.clusterID
	m.broker.Publish(ev)
}

func (m *Master) publishRecord(typ events.EventType, rec types.ProcessRecord, message string) {
	m.publish(&events.Event{
		Type:    typ,
		Role:    string(rec.Role),
		Process: rec.ID,
		Pid:     rec.Pid,
		Status:  int(rec.Status),
		Message: message,
	})
}
