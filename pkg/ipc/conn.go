package ipc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/cuemby/burrow/pkg/log"
	"golang.org/x/sys/unix"
)

// MaxPacket is the largest encoded envelope a channel accepts
const MaxPacket = 64 << 10

// ChildFD is the descriptor number a child inherits its channel on
const ChildFD = 3

// ErrClosed is returned once the peer has gone away or the channel was closed
var ErrClosed = errors.New("ipc: channel closed")

// Conn is one end of a master/child channel. Each Send is delivered as a
// single packet; packets are ordered per direction.
type Conn struct {
	uc  *net.UnixConn
	wmu sync.Mutex
}

// Pair creates a connected channel. The returned file is the child's end and
// is meant to be inherited through exec.Cmd.ExtraFiles; the caller closes it
// once the child has started.
func Pair() (*Conn, *os.File, error) {
	fds, err := socketpair()
	if err != nil {
		return nil, nil, fmt.Errorf("socketpair: %w", err)
	}

	parent := os.NewFile(uintptr(fds[0]), "burrow-ipc-parent")
	child := os.NewFile(uintptr(fds[1]), "burrow-ipc-child")

	conn, err := FromFile(parent)
	parent.Close()
	if err != nil {
		child.Close()
		return nil, nil, err
	}
	return conn, child, nil
}

// FromFile wraps an inherited descriptor. The file may be closed afterwards.
func FromFile(f *os.File) (*Conn, error) {
	nc, err := net.FileConn(f)
	if err != nil {
		return nil, fmt.Errorf("wrap channel descriptor: %w", err)
	}
	uc, ok := nc.(*net.UnixConn)
	if !ok {
		nc.Close()
		return nil, fmt.Errorf("channel descriptor is %T, want unix socket", nc)
	}
	return &Conn{uc: uc}, nil
}

// Inherited opens the channel a child received from its master
func Inherited() (*Conn, error) {
	f := os.NewFile(ChildFD, "burrow-ipc")
	if f == nil {
		return nil, fmt.Errorf("descriptor %d is not open", ChildFD)
	}
	defer f.Close()
	return FromFile(f)
}

// Send writes one envelope. When msg.Conn is set the socket is attached and
// closed locally after a successful write.
func (c *Conn) Send(msg *Message) error {
	data, err := Marshal(msg)
	if err != nil {
		return err
	}
	if len(data) > MaxPacket {
		return fmt.Errorf("envelope %s is %d bytes, limit %d", msg.Action, len(data), MaxPacket)
	}

	var oob []byte
	if msg.Conn != nil {
		fc, ok := msg.Conn.(interface{ File() (*os.File, error) })
		if !ok {
			return fmt.Errorf("cannot attach %T to %s", msg.Conn, msg.Action)
		}
		f, err := fc.File()
		if err != nil {
			return fmt.Errorf("duplicate socket for %s: %w", msg.Action, err)
		}
		defer f.Close()
		oob = unix.UnixRights(int(f.Fd()))
	}

	c.wmu.Lock()
	_, _, err = c.uc.WriteMsgUnix(data, oob, nil)
	c.wmu.Unlock()
	if err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ECONNRESET) {
			return ErrClosed
		}
		return fmt.Errorf("send %s: %w", msg.Action, err)
	}

	if msg.Conn != nil {
		msg.Conn.Close()
	}
	return nil
}

// Receive blocks for the next envelope
func (c *Conn) Receive() (*Message, error) {
	buf := make([]byte, MaxPacket)
	oob := make([]byte, unix.CmsgSpace(4))

	n, oobn, flags, _, err := c.uc.ReadMsgUnix(buf, oob)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, unix.ECONNRESET) {
			return nil, ErrClosed
		}
		return nil, &readError{err: err}
	}
	if n == 0 && oobn == 0 {
		return nil, ErrClosed
	}

	conn, ferr := attachedConn(oob[:oobn])
	if flags&(unix.MSG_TRUNC|unix.MSG_CTRUNC) != 0 {
		if conn != nil {
			conn.Close()
		}
		return nil, fmt.Errorf("receive: truncated packet (flags %#x)", flags)
	}

	msg, err := Unmarshal(buf[:n])
	if err != nil {
		if conn != nil {
			conn.Close()
		}
		return nil, err
	}
	if ferr != nil {
		return nil, fmt.Errorf("receive socket for %s: %w", msg.Action, ferr)
	}
	msg.Conn = conn
	return msg, nil
}

// ReadLoop delivers envelopes to handler until the channel closes.
// Undecodable envelopes are logged and skipped.
func (c *Conn) ReadLoop(handler func(*Message)) error {
	logger := log.WithComponent("ipc")
	for {
		msg, err := c.Receive()
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			if isFatal(err) {
				return err
			}
			logger.Warn().Err(err).Msg("Dropping envelope")
			continue
		}
		handler(msg)
	}
}

// Close closes this end of the channel
func (c *Conn) Close() error {
	return c.uc.Close()
}

func attachedConn(oob []byte) (net.Conn, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, err
	}

	var conn net.Conn
	for i := range scms {
		fds, err := unix.ParseUnixRights(&scms[i])
		if err != nil {
			continue
		}
		for _, fd := range fds {
			if conn != nil {
				unix.Close(fd)
				continue
			}
			f := os.NewFile(uintptr(fd), "burrow-ipc-socket")
			nc, err := net.FileConn(f)
			f.Close()
			if err != nil {
				return nil, err
			}
			conn = nc
		}
	}
	return conn, nil
}

// readError marks a failure of the underlying socket, after which the
// channel is unusable
type readError struct {
	err error
}

func (e *readError) Error() string { return "receive: " + e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

func isFatal(err error) bool {
	var re *readError
	return errors.As(err, &re)
}
