package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cuemby/burrow/pkg/log"
)

// Server exposes /metrics, /health, /ready and /live
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// NewMux returns the handler tree served by Server
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", HealthHandler())
	mux.HandleFunc("/ready", ReadyHandler())
	mux.HandleFunc("/live", LivenessHandler())
	return mux
}

// Serve starts the endpoint on addr in the background
func Serve(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		srv: &http.Server{
			Handler:           NewMux(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln: ln,
	}

	logger := log.WithComponent("metrics")
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
	logger.Info().Str("addr", ln.Addr().String()).Msg("Metrics endpoint listening")
	return s, nil
}

// Addr returns the bound address
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Shutdown stops the endpoint
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
