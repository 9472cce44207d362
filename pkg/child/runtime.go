package child

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/cuemby/burrow/pkg/ipc"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// TickInterval is the period of the kill state machine check
const TickInterval = 10 * time.Millisecond

// Channel is the runtime's connection to the supervisor
type Channel interface {
	Send(msg *ipc.Message) error
	ReadLoop(handler func(*ipc.Message)) error
	Close() error
}

// Options configure a Runtime
type Options struct {
	// Channel to the supervisor. Required.
	Channel Channel

	// Signals delivers termination signals. When nil, Run subscribes to
	// SIGTERM, SIGINT and SIGQUIT.
	Signals <-chan os.Signal
}

// Runtime hosts one role inside a child process and drives its lifecycle
type Runtime struct {
	params  Params
	role    any
	channel Channel
	signals <-chan os.Signal
	logger  zerolog.Logger

	mu        sync.Mutex
	phase     types.KillPhase
	installed bool
	ticking   bool
	pending   map[string]func(*ipc.Message)

	done     chan struct{}
	doneOnce sync.Once
}

// New builds the role from the framework. When the constructor fails, the
// supervisor is told the child failed to start and the error is returned.
func New(params Params, fw Framework, opts Options) (*Runtime, error) {
	if opts.Channel == nil {
		return nil, errors.New("child runtime requires a channel")
	}
	if !params.Role.Valid() {
		return nil, fmt.Errorf("unknown role %q", params.Role)
	}
	if params.Name == "" {
		params.Name = strconv.Itoa(os.Getpid())
	}

	r := &Runtime{
		params:  params,
		channel: opts.Channel,
		signals: opts.Signals,
		logger:  log.WithProcess(string(params.Role), params.Name),
		pending: make(map[string]func(*ipc.Message)),
		done:    make(chan struct{}),
	}

	construct, err := fw.Constructor(params.Role)
	if err == nil {
		r.role, err = construct(r)
	}
	if err != nil {
		r.send(ipc.RoleAction(string(params.Role), ipc.VerbFailed), r.nameBody())
		return nil, fmt.Errorf("failed to construct %s %s: %w", params.Role, params.Name, err)
	}
	return r, nil
}

// Params returns the launch parameters
func (r *Runtime) Params() Params {
	return r.params
}

// Phase returns the current kill phase
func (r *Runtime) Phase() types.KillPhase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Installed reports whether the create hook has settled
func (r *Runtime) Installed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.installed
}

// Run starts the role and blocks until the kill state machine reaches dead.
// Cancelling ctx acts like a termination signal. The returned value is the
// process exit code.
func (r *Runtime) Run(ctx context.Context) int {
	signals := r.signals
	if signals == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
		defer signal.Stop(ch)
		signals = ch
	}

	go func() {
		if err := r.channel.ReadLoop(r.dispatch); err != nil {
			r.logger.Error().Err(err).Msg("Channel read failed")
		}
		r.orphaned()
	}()

	go r.install(ctx)

	ctxDone := ctx.Done()
	for {
		select {
		case sig := <-signals:
			r.terminate(sig.String())
		case <-ctxDone:
			ctxDone = nil
			r.terminate("context cancelled")
		case <-r.done:
			r.channel.Close()
			return 0
		}
	}
}

// Send delivers an action to the supervisor
func (r *Runtime) Send(action string, body map[string]any) error {
	return r.SendTo(ipc.TargetMaster, action, body)
}

// SendTo delivers an action to target through the supervisor
func (r *Runtime) SendTo(target, action string, body map[string]any) error {
	return r.channel.Send(&ipc.Message{Action: action, Body: body, Target: target})
}

// Kill asks the supervisor to run the cluster shutdown sequence
func (r *Runtime) Kill() {
	r.send(ipc.ActionShutdown, nil)
}

// Fault reports an error raised outside a hook. Before installation it is
// fatal and asks for a shutdown; afterwards it is only logged.
func (r *Runtime) Fault(err error) {
	r.mu.Lock()
	installed := r.installed
	r.mu.Unlock()

	if installed {
		logger := r.roleLogger()
		logger.Error().Err(err).Msg("Unhandled fault")
		return
	}
	r.logger.Error().Err(err).Msg("Fault before startup completed, requesting shutdown")
	r.Kill()
}

func (r *Runtime) install(ctx context.Context) {
	role := string(r.params.Role)

	creator, ok := r.role.(Creator)
	if !ok {
		r.mu.Lock()
		r.installed = true
		r.pending[ipc.ActionProcessCreated] = func(*ipc.Message) {}
		r.send(ipc.RoleAction(role, ipc.VerbCreated), r.nameBody())
		r.mu.Unlock()
		return
	}

	err := r.guard("create hook", func() error {
		return creator.ProcessCreate(ctx)
	})

	r.mu.Lock()
	defer r.mu.Unlock()

	r.installed = true
	if err != nil {
		logger := r.roleLogger()
		logger.Error().Err(err).Msg("Create hook failed")
		r.pending[ipc.ActionProcessFailed] = func(*ipc.Message) {}
		r.send(ipc.RoleAction(role, ipc.VerbFailed), r.nameBody())
		return
	}
	r.pending[ipc.ActionProcessCreated] = func(*ipc.Message) {}
	r.send(ipc.RoleAction(role, ipc.VerbCreated), r.nameBody())
}

// terminate handles the first termination request; later ones are ignored
func (r *Runtime) terminate(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != types.PhaseNone {
		r.logger.Debug().Str("reason", reason).Stringer("phase", r.phase).Msg("Shutdown already in progress")
		return
	}
	r.phase = types.PhaseQueued
	r.logger.Info().Str("reason", reason).Msg("Shutdown queued")

	r.pending[ipc.ActionProcessKill] = func(*ipc.Message) {
		if r.phase < types.PhaseBeginShutdown {
			r.phase = types.PhaseBeginShutdown
		}
	}
	r.startTicker()
	r.send(ipc.RoleAction(string(r.params.Role), ipc.VerbKill), r.nameBody())
}

// orphaned runs when the channel to the supervisor is gone. Nobody is left
// to acknowledge a kill, so teardown starts at once.
func (r *Runtime) orphaned() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase >= types.PhaseBeginShutdown {
		return
	}
	r.logger.Warn().Msg("Supervisor channel closed, shutting down")
	r.phase = types.PhaseBeginShutdown
	r.startTicker()
}

// startTicker must be called with mu held
func (r *Runtime) startTicker() {
	if r.ticking {
		return
	}
	r.ticking = true

	go func() {
		ticker := time.NewTicker(TickInterval)
		defer ticker.Stop()
		for range ticker.C {
			if r.tick() {
				return
			}
		}
	}()
}

func (r *Runtime) tick() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.phase {
	case types.PhaseBeginShutdown:
		r.phase = types.PhaseRunningDestroyHook
		go r.destroy()
	case types.PhaseDead:
		r.send(ipc.RoleAction(string(r.params.Role), ipc.VerbDead), r.nameBody())
		r.doneOnce.Do(func() { close(r.done) })
		return true
	}
	return false
}

func (r *Runtime) destroy() {
	if destroyer, ok := r.role.(Destroyer); ok {
		err := r.guard("destroy hook", func() error {
			return destroyer.ProcessDestroy(context.Background())
		})
		if err != nil {
			logger := r.roleLogger()
			logger.Error().Err(err).Msg("Destroy hook failed")
		}
	}

	r.mu.Lock()
	r.phase = types.PhaseDead
	r.mu.Unlock()
}

func (r *Runtime) dispatch(msg *ipc.Message) {
	r.mu.Lock()
	resolve, ok := r.pending[msg.Action]
	if ok {
		delete(r.pending, msg.Action)
		resolve(msg)
	}
	r.mu.Unlock()

	if ok {
		if msg.Conn != nil {
			msg.Conn.Close()
		}
		return
	}

	handler, ok := r.role.(MessageHandler)
	if !ok {
		if msg.Conn != nil {
			msg.Conn.Close()
		}
		return
	}

	if err := r.guard("message handler", func() error {
		handler.ProcessMessage(msg, msg.Conn)
		return nil
	}); err != nil {
		r.Fault(err)
	}
}

// guard runs fn, converting a panic into an error
func (r *Runtime) guard(what string, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s panicked: %v", what, p)
		}
	}()
	return fn()
}

func (r *Runtime) roleLogger() *zerolog.Logger {
	if lp, ok := r.role.(LoggerProvider); ok {
		if l := lp.Logger(); l != nil {
			return l
		}
	}
	return &r.logger
}

func (r *Runtime) send(action string, body map[string]any) {
	err := r.channel.Send(&ipc.Message{Action: action, Body: body, Target: ipc.TargetMaster})
	if err != nil {
		r.logger.Debug().Err(err).Str("action", action).Msg("Send to supervisor failed")
	}
}

func (r *Runtime) nameBody() map[string]any {
	return map[string]any{"name": r.params.Name}
}
