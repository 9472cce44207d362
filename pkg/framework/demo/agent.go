package demo

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/child"
	"github.com/cuemby/burrow/pkg/ipc"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/rs/zerolog"
)

// TickInterval is how often the agent broadcasts its counter
var TickInterval = time.Second

// Agent counts ticks and broadcasts them to the workers once the cluster is
// ready
type Agent struct {
	app    child.App
	logger zerolog.Logger

	mu     sync.Mutex
	count  int64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAgent builds the agent role
func NewAgent(app child.App) (any, error) {
	p := app.Params()
	return &Agent{
		app:    app,
		logger: log.WithProcess(string(p.Role), p.Name),
	}, nil
}

func (a *Agent) Logger() *zerolog.Logger {
	return &a.logger
}

func (a *Agent) ProcessMessage(msg *ipc.Message, conn net.Conn) {
	if conn != nil {
		conn.Close()
	}
	if msg.Action == ipc.ActionClusterReady {
		a.start()
	}
}

// ProcessDestroy stops the ticker and waits for it
func (a *Agent) ProcessDestroy(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.wg.Wait()
	a.logger.Info().Int64("ticks", a.Count()).Msg("Agent stopped")
	return nil
}

// Count returns the ticks broadcast so far
func (a *Agent) Count() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

func (a *Agent) start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.wg.Add(1)
	go a.run(ctx)
}

func (a *Agent) run(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick()
		}
	}
}

func (a *Agent) tick() {
	a.mu.Lock()
	a.count++
	n := a.count
	a.mu.Unlock()

	if err := a.app.SendTo(ipc.TargetWorkers, ActionTick, map[string]any{"count": n}); err != nil {
		a.logger.Debug().Err(err).Msg("Failed to broadcast tick")
	}
}
