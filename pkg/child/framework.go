package child

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/cuemby/burrow/pkg/ipc"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// A role is any value; the runtime discovers its hooks through the optional
// interfaces below.

// Creator is implemented by roles with an asynchronous startup hook
type Creator interface {
	ProcessCreate(ctx context.Context) error
}

// Destroyer is implemented by roles with an asynchronous teardown hook
type Destroyer interface {
	ProcessDestroy(ctx context.Context) error
}

// MessageHandler receives protocol messages the runtime does not consume
// itself. conn is non-nil when a socket was attached; the handler owns it.
type MessageHandler interface {
	ProcessMessage(msg *ipc.Message, conn net.Conn)
}

// LoggerProvider lets a role supply the logger used for its hook failures
// and faults
type LoggerProvider interface {
	Logger() *zerolog.Logger
}

// App is the runtime as seen by a role
type App interface {
	Params() Params
	// Send delivers an action to the supervisor
	Send(action string, body map[string]any) error
	// SendTo delivers an action to another child or group through the supervisor
	SendTo(target, action string, body map[string]any) error
	// Kill asks the supervisor to shut the whole cluster down
	Kill()
	// Fault reports an error raised outside the role's hooks
	Fault(err error)
}

// Constructor builds a role for one child process
type Constructor func(app App) (any, error)

// Framework pairs the agent and worker constructors of an application
type Framework struct {
	NewAgent  Constructor
	NewWorker Constructor
}

// Constructor returns the constructor for role
func (f Framework) Constructor(role types.Role) (Constructor, error) {
	var c Constructor
	switch role {
	case types.RoleAgent:
		c = f.NewAgent
	case types.RoleWorker:
		c = f.NewWorker
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}
	if c == nil {
		return nil, fmt.Errorf("framework has no %s constructor", role)
	}
	return c, nil
}

var (
	mu         sync.RWMutex
	frameworks = make(map[string]Framework)
)

// Register adds a framework to the registry
func Register(name string, f Framework) {
	mu.Lock()
	defer mu.Unlock()
	frameworks[name] = f
}

// Lookup returns a framework by name
func Lookup(name string) (Framework, error) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := frameworks[name]
	if !ok {
		return Framework{}, fmt.Errorf("unknown framework: %s", name)
	}
	return f, nil
}

// Frameworks returns all registered framework names
func Frameworks() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(frameworks))
	for name := range frameworks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
