package master

import (
	"fmt"
	"net"

	"github.com/cuemby/burrow/pkg/ipc"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/sticky"
	"github.com/cuemby/burrow/pkg/types"
)

// startSticky opens the shared listener on the configured port and moves
// workers to a private free port. Must be called with mu held.
func (m *Master) startSticky() error {
	b, err := sticky.Listen(m.cfg.Port,
		func() int { return m.registry.Len(types.RoleWorker) },
		m.routeConn,
	)
	if err != nil {
		return err
	}

	port, err := freePort()
	if err != nil {
		b.Stop()
		return err
	}

	m.balancer = b
	m.workerPort = port
	b.Start()
	metrics.UpdateComponent(metrics.ComponentSticky, true, "")
	m.logger.Info().Int("port", m.cfg.Port).Int("worker_port", port).Msg("Sticky mode enabled")
	return nil
}

// routeConn hands an accepted connection to the worker at index
func (m *Master) routeConn(index int, conn net.Conn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	workers := m.registry.Records(types.RoleWorker)
	if m.killing || index >= len(workers) || workers[index].Exited {
		conn.Close()
		metrics.StickyConnectionsTotal.WithLabelValues("dropped").Inc()
		return fmt.Errorf("no worker at index %d", index)
	}

	rec := workers[index]
	if err := rec.Handle.Send(&ipc.Message{Action: ipc.ActionStickyBalance, Conn: conn}); err != nil {
		conn.Close()
		metrics.StickyConnectionsTotal.WithLabelValues("dropped").Inc()
		return fmt.Errorf("hand connection to worker %s: %w", rec.ID, err)
	}
	metrics.StickyConnectionsTotal.WithLabelValues("routed").Inc()
	return nil
}

// freePort asks the kernel for an unused TCP port
func freePort() (int, error) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, fmt.Errorf("failed to find a free port: %w", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
