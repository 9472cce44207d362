package ipc

import (
	"net"
	"strconv"
	"strings"
)

// Reserved targets
const (
	TargetMaster  = "master"
	TargetWorkers = "workers"
	TargetAgents  = "agents"
)

// Actions sent by the master to children
const (
	ActionProcessCreated = "process:created"
	ActionProcessFailed  = "process:failed"
	ActionProcessKill    = "process:kill"
	ActionProcessDead    = "process:dead"
	ActionClusterReady   = "cluster:ready"
	ActionStickyBalance  = "sticky:balance"
)

// Actions sent by children to the master
const (
	ActionShutdown  = "shutdown"
	ActionStartInfo = "start:info"
)

// Role-scoped verbs, combined with a role name by RoleAction
const (
	VerbCreated = "created"
	VerbFailed  = "failed"
	VerbKill    = "kill"
	VerbDead    = "dead"
)

// RoleAction builds a role-scoped action such as "worker:created"
func RoleAction(role, verb string) string {
	return role + ":" + verb
}

// SplitAction splits "worker:created" into ("worker", "created").
// Actions without a scope return an empty scope.
func SplitAction(action string) (scope, verb string) {
	i := strings.IndexByte(action, ':')
	if i < 0 {
		return "", action
	}
	return action[:i], action[i+1:]
}

// Message is the envelope exchanged between the master and a child.
// Conn is not part of the encoded payload; it travels as an attached
// socket and ownership moves to the receiver.
type Message struct {
	Action string
	Body   map[string]any
	Target string
	Conn   net.Conn
}

// NewMessage creates a message with the given action and body
func NewMessage(action string, body map[string]any) *Message {
	return &Message{Action: action, Body: body}
}

// Name returns the "name" field of the body, which identifies the sender.
// Numeric names (worker pids) are rendered without a fraction.
func (m *Message) Name() string {
	return m.String("name")
}

// String returns a body field rendered as a string
func (m *Message) String(key string) string {
	if m == nil || m.Body == nil {
		return ""
	}
	switch v := m.Body[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}
