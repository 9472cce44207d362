package demo

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cuemby/burrow/pkg/child"
	"github.com/cuemby/burrow/pkg/ipc"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/rs/zerolog"
)

// ActionTick is broadcast by the agent to every worker
const ActionTick = "demo:tick"

// Worker serves HTTP on the cluster port. Connections come either from its
// own listener or, in sticky mode, from the supervisor.
type Worker struct {
	app    child.App
	params child.Params
	logger zerolog.Logger

	server  *http.Server
	handoff *handoffListener
	ticks   atomic.Int64
	served  atomic.Int64
	started time.Time
}

// NewWorker builds the worker role
func NewWorker(app child.App) (any, error) {
	p := app.Params()
	return &Worker{
		app:    app,
		params: p,
		logger: log.WithProcess(string(p.Role), p.Name),
	}, nil
}

func (w *Worker) Logger() *zerolog.Logger {
	return &w.logger
}

// ProcessCreate starts the HTTP server and reports the worker to the
// supervisor's startup table
func (w *Worker) ProcessCreate(ctx context.Context) error {
	ln, err := listenShared(ctx, w.params.Port)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", w.handleIndex)
	mux.HandleFunc("/shutdown", w.handleShutdown)

	w.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	w.handoff = newHandoffListener(ln.Addr())
	w.started = time.Now()

	for _, l := range []net.Listener{ln, w.handoff} {
		go func(l net.Listener) {
			if err := w.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				w.app.Fault(err)
			}
		}(l)
	}

	w.logger.Info().Str("addr", ln.Addr().String()).Msg("Worker listening")
	return w.app.Send(ipc.ActionStartInfo, map[string]any{
		"data": map[string]any{
			"name": w.params.Name,
			"pid":  os.Getpid(),
			"port": ln.Addr().(*net.TCPAddr).Port,
			"env":  w.params.Env,
		},
	})
}

// ProcessDestroy drains in-flight requests
func (w *Worker) ProcessDestroy(ctx context.Context) error {
	if w.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return w.server.Shutdown(ctx)
}

func (w *Worker) ProcessMessage(msg *ipc.Message, conn net.Conn) {
	switch msg.Action {
	case ipc.ActionStickyBalance:
		if conn == nil {
			return
		}
		if w.handoff == nil {
			conn.Close()
			return
		}
		w.handoff.push(conn)
	case ipc.ActionClusterReady:
		w.logger.Info().Msg("Cluster ready")
	case ActionTick:
		n, _ := strconv.ParseInt(msg.String("count"), 10, 64)
		w.ticks.Store(n)
	default:
		if conn != nil {
			conn.Close()
		}
	}
}

func (w *Worker) handleIndex(rw http.ResponseWriter, r *http.Request) {
	served := w.served.Add(1)
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(map[string]any{
		"name":   w.params.Name,
		"pid":    os.Getpid(),
		"env":    w.params.Env,
		"ticks":  w.ticks.Load(),
		"served": served,
		"uptime": time.Since(w.started).Round(time.Second).String(),
		"remote": r.RemoteAddr,
	})
}

func (w *Worker) handleShutdown(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.logger.Warn().Str("remote", r.RemoteAddr).Msg("Cluster shutdown requested over HTTP")
	rw.WriteHeader(http.StatusAccepted)
	w.app.Kill()
}
