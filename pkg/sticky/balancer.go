package sticky

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/rs/zerolog"
)

// Router hands an accepted connection to the worker at index. It returns an
// error when no worker occupies the slot; ownership of conn passes to the
// router either way.
type Router func(index int, conn net.Conn) error

// Balancer accepts connections on a listener it owns and routes each one to
// a worker chosen by Assign
type Balancer struct {
	listener net.Listener
	size     func() int
	route    Router
	logger   zerolog.Logger

	routed  atomic.Uint64
	dropped atomic.Uint64

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewBalancer creates a balancer. size reports the current worker count.
func NewBalancer(listener net.Listener, size func() int, route Router) *Balancer {
	return &Balancer{
		listener: listener,
		size:     size,
		route:    route,
		logger:   log.WithComponent("sticky"),
	}
}

// Listen opens a TCP listener on port and wraps it in a balancer
func Listen(port int, size func() int, route Router) (*Balancer, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	return NewBalancer(ln, size, route), nil
}

// Addr returns the listening address
func (b *Balancer) Addr() net.Addr {
	return b.listener.Addr()
}

// Start runs the accept loop in the background
func (b *Balancer) Start() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.acceptLoop()
	}()
	b.logger.Info().Str("addr", b.listener.Addr().String()).Msg("Sticky listener started")
}

func (b *Balancer) acceptLoop() {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		b.dispatch(conn)
	}
}

func (b *Balancer) dispatch(conn net.Conn) {
	remote := conn.RemoteAddr().String()

	index, ok := Assign(remote, b.size())
	if !ok {
		b.drop(conn, remote, "no workers")
		return
	}
	if err := b.route(index, conn); err != nil {
		b.dropped.Add(1)
		b.logger.Debug().Err(err).Str("remote", remote).Int("index", index).Msg("Connection dropped")
		return
	}
	b.routed.Add(1)
}

func (b *Balancer) drop(conn net.Conn, remote, reason string) {
	conn.Close()
	b.dropped.Add(1)
	b.logger.Debug().Str("remote", remote).Str("reason", reason).Msg("Connection dropped")
}

// Stats returns the number of routed and dropped connections
func (b *Balancer) Stats() (routed, dropped uint64) {
	return b.routed.Load(), b.dropped.Load()
}

// Stop closes the listener and waits for the accept loop to exit
func (b *Balancer) Stop() error {
	var err error
	b.stopOnce.Do(func() {
		err = b.listener.Close()
		b.wg.Wait()
	})
	return err
}
