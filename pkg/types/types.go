package types

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/cuemby/burrow/pkg/ipc"
)

// Role defines the kind of supervised child
type Role string

const (
	RoleAgent  Role = "agent"
	RoleWorker Role = "worker"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	return r == RoleAgent || r == RoleWorker
}

// Group returns the broadcast target name for the role ("agents" or "workers")
func (r Role) Group() string {
	return string(r) + "s"
}

// Status is the lifecycle code of a child as observed by the supervisor.
// Codes are signed to stay compatible with the wire protocol and the
// journal; their ordering is given by Rank.
type Status int

const (
	StatusStarting   Status = 0
	StatusCreated    Status = 1
	StatusFailed     Status = -1
	StatusKillAcked  Status = -2 // child began its own shutdown
	StatusKillIssued Status = -3 // process:kill sent by the supervisor
	StatusDead       Status = -4
)

// Rank orders statuses along the lifecycle. A transition is legal only when
// it does not lower the rank; -2 and -3 share a rank so the kill driver can
// re-issue process:kill after a late kill notification.
func (s Status) Rank() int {
	switch s {
	case StatusStarting:
		return 0
	case StatusCreated, StatusFailed:
		return 1
	case StatusKillAcked, StatusKillIssued:
		return 2
	case StatusDead:
		return 3
	default:
		return -1
	}
}

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusCreated:
		return "created"
	case StatusFailed:
		return "failed"
	case StatusKillAcked:
		return "kill-acked"
	case StatusKillIssued:
		return "kill-issued"
	case StatusDead:
		return "dead"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// KillPhase is the local shutdown progress of a child runtime
type KillPhase int

const (
	PhaseNone KillPhase = iota
	PhaseQueued
	PhaseBeginShutdown
	PhaseRunningDestroyHook
	PhaseDead
)

func (p KillPhase) String() string {
	switch p {
	case PhaseNone:
		return "none"
	case PhaseQueued:
		return "queued"
	case PhaseBeginShutdown:
		return "begin-shutdown"
	case PhaseRunningDestroyHook:
		return "running-destroy-hook"
	case PhaseDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Handle is the supervisor's ownership of one child process and its channel
type Handle interface {
	Pid() int
	Signal(sig os.Signal) error
	Send(msg *ipc.Message) error
}

// ProcessRecord is one supervised child
type ProcessRecord struct {
	Role      Role
	ID        string // pid for workers, configured name for agents
	Pid       int
	Status    Status
	Handle    Handle
	Exited    bool
	ForkedAt  time.Time
	UpdatedAt time.Time
}

// ClusterConfig holds the supervisor configuration. It is treated as
// immutable once handed to the supervisor.
type ClusterConfig struct {
	UseSocketServer bool     `yaml:"socket" toml:"socket"`
	Port            int      `yaml:"port" toml:"port"`
	Cwd             string   `yaml:"cwd" toml:"cwd"`
	Env             string   `yaml:"env" toml:"env"`
	Debug           string   `yaml:"-" toml:"-"` // "", "false", "true" or a child log level
	Framework       string   `yaml:"framework" toml:"framework"`
	Agents          []string `yaml:"agents" toml:"agents"`
	MaxWorkers      int      `yaml:"max" toml:"max"`

	DataDir     string `yaml:"dataDir" toml:"data_dir"`
	MetricsAddr string `yaml:"metricsAddr" toml:"metrics_addr"`
	LogLevel    string `yaml:"logLevel" toml:"log_level"`
	LogJSON     bool   `yaml:"logJSON" toml:"log_json"`
}

// Workers returns the configured pool size, defaulting to the CPU count
func (c *ClusterConfig) Workers() int {
	if c.MaxWorkers > 0 {
		return c.MaxWorkers
	}
	return runtime.NumCPU()
}

// DebugEnabled reports whether children should run in debug mode
func (c *ClusterConfig) DebugEnabled() bool {
	return c.Debug != "" && c.Debug != "false"
}

// ChildLogLevel returns the log level children should use, or "" for the default
func (c *ClusterConfig) ChildLogLevel() string {
	switch c.Debug {
	case "", "false":
		return ""
	case "true":
		return "debug"
	default:
		return c.Debug
	}
}
