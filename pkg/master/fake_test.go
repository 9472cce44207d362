package master

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"syscall"

	"github.com/cuemby/burrow/pkg/child"
	"github.com/cuemby/burrow/pkg/ipc"
	"github.com/cuemby/burrow/pkg/types"
)

// startup behaviours of a fake child
const (
	startOK    = "ok"
	startFail  = "fail"
	startHang  = "hang"
	startCrash = "crash"
)

// fakeSpawner simulates children that speak the lifecycle protocol the way
// the child runtime does
type fakeSpawner struct {
	mu       sync.Mutex
	nextPid  int
	children []*fakeChild

	// behaviour by agent name or by role, default startOK
	behaviour map[string]string

	// onSignal runs synchronously when a child is signalled
	onSignal func(c *fakeChild)
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{nextPid: 1000, behaviour: map[string]string{}}
}

func (s *fakeSpawner) Spawn(params child.Params, handler func(*ipc.Message), onExit func(error)) (types.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextPid++
	c := &fakeChild{
		spawner: s,
		params:  params,
		pid:     s.nextPid,
		handler: handler,
		onExit:  onExit,
	}
	c.name = params.Name
	if c.name == "" {
		c.name = strconv.Itoa(c.pid)
	}
	s.children = append(s.children, c)

	mode := s.behaviour[params.Name]
	if mode == "" {
		mode = s.behaviour[string(params.Role)]
	}
	go c.start(mode)
	return c, nil
}

func (s *fakeSpawner) all() []*fakeChild {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeChild(nil), s.children...)
}

func (s *fakeSpawner) byRole(role types.Role) []*fakeChild {
	var out []*fakeChild
	for _, c := range s.all() {
		if c.params.Role == role {
			out = append(out, c)
		}
	}
	return out
}

type fakeChild struct {
	spawner *fakeSpawner
	params  child.Params
	pid     int
	name    string
	handler func(*ipc.Message)
	onExit  func(error)

	mu       sync.Mutex
	received []string
	phase    types.KillPhase
	exited   bool
}

func (c *fakeChild) Pid() int { return c.pid }

func (c *fakeChild) Signal(sig os.Signal) error {
	c.mu.Lock()
	if c.exited {
		c.mu.Unlock()
		return errors.New("process already finished")
	}
	c.received = append(c.received, "signal:"+sig.String())
	first := c.phase == types.PhaseNone
	if first {
		c.phase = types.PhaseQueued
	}
	c.mu.Unlock()

	if hook := c.spawner.onSignal; hook != nil {
		hook(c)
	}
	if first && sig == syscall.SIGTERM {
		go c.send(ipc.RoleAction(string(c.params.Role), ipc.VerbKill))
	}
	return nil
}

func (c *fakeChild) Send(msg *ipc.Message) error {
	c.mu.Lock()
	if c.exited {
		c.mu.Unlock()
		return ipc.ErrClosed
	}
	c.received = append(c.received, msg.Action)
	if msg.Conn != nil {
		c.received = append(c.received, "conn")
		msg.Conn.Close()
	}
	teardown := msg.Action == ipc.ActionProcessKill && c.phase < types.PhaseBeginShutdown
	if teardown {
		c.phase = types.PhaseBeginShutdown
	}
	c.mu.Unlock()

	if teardown {
		go func() {
			c.send(ipc.RoleAction(string(c.params.Role), ipc.VerbDead))
			c.exit(nil)
		}()
	}
	return nil
}

func (c *fakeChild) start(mode string) {
	role := string(c.params.Role)
	switch mode {
	case startFail:
		c.send(ipc.RoleAction(role, ipc.VerbFailed))
	case startHang:
	case startCrash:
		c.exit(errors.New("exit status 1"))
	default:
		c.send(ipc.RoleAction(role, ipc.VerbCreated))
	}
}

// send delivers an envelope from this child to the supervisor
func (c *fakeChild) send(action string) {
	c.sendMessage(&ipc.Message{Action: action, Body: map[string]any{"name": c.name}, Target: ipc.TargetMaster})
}

func (c *fakeChild) sendMessage(msg *ipc.Message) {
	c.mu.Lock()
	exited := c.exited
	c.mu.Unlock()
	if !exited {
		c.handler(msg)
	}
}

func (c *fakeChild) exit(err error) {
	c.mu.Lock()
	if c.exited {
		c.mu.Unlock()
		return
	}
	c.exited = true
	c.mu.Unlock()
	c.onExit(err)
}

func (c *fakeChild) log() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.received...)
}

func (c *fakeChild) count(entry string) int {
	n := 0
	for _, e := range c.log() {
		if e == entry {
			n++
		}
	}
	return n
}

func (c *fakeChild) String() string {
	return fmt.Sprintf("%s %s", c.params.Role, c.name)
}
