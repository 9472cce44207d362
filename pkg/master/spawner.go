package master

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/cuemby/burrow/pkg/child"
	"github.com/cuemby/burrow/pkg/ipc"
	"github.com/cuemby/burrow/pkg/types"
)

// ChildCommand is the hidden subcommand a re-executed binary runs as a child
const ChildCommand = "child"

// drainTimeout bounds how long exit notification waits for the channel to
// deliver the last envelopes of a dead child
const drainTimeout = time.Second

// Spawner starts child processes. Implementations must invoke handler and
// onExit from their own goroutines, never from within Spawn: the supervisor
// holds its lock while spawning. onExit is called exactly once, after the
// envelopes the child sent before exiting were delivered to handler.
type Spawner interface {
	Spawn(params child.Params, handler func(*ipc.Message), onExit func(error)) (types.Handle, error)
}

// ExecSpawner re-executes a binary with the child subcommand. The channel is
// passed as file descriptor 3; stdout and stderr are inherited.
type ExecSpawner struct {
	// Binary to execute. Empty means the running executable.
	Binary string
	// Env is appended to the inherited environment
	Env []string
}

// Spawn starts one child process
func (s *ExecSpawner) Spawn(params child.Params, handler func(*ipc.Message), onExit func(error)) (types.Handle, error) {
	binary := s.Binary
	if binary == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve executable: %w", err)
		}
		binary = exe
	}

	conn, childEnd, err := ipc.Pair()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(binary, append([]string{ChildCommand}, params.Args()...)...)
	cmd.Dir = params.Cwd
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Stdin = nil
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{childEnd}
	cmd.SysProcAttr = procAttrs()

	if err := cmd.Start(); err != nil {
		conn.Close()
		childEnd.Close()
		return nil, fmt.Errorf("failed to start %s: %w", params.Role, err)
	}
	childEnd.Close()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		_ = conn.ReadLoop(handler)
	}()

	go func() {
		err := cmd.Wait()
		select {
		case <-drained:
		case <-time.After(drainTimeout):
		}
		conn.Close()
		onExit(err)
	}()

	return &execHandle{cmd: cmd, conn: conn}, nil
}

type execHandle struct {
	cmd  *exec.Cmd
	conn *ipc.Conn
}

func (h *execHandle) Pid() int {
	return h.cmd.Process.Pid
}

func (h *execHandle) Signal(sig os.Signal) error {
	return h.cmd.Process.Signal(sig)
}

func (h *execHandle) Send(msg *ipc.Message) error {
	return h.conn.Send(msg)
}
