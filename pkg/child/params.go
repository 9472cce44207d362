package child

import (
	"strconv"

	"github.com/cuemby/burrow/pkg/types"
)

// Launch flag names shared by the supervisor and the child command
const (
	FlagCwd       = "cwd"
	FlagName      = "name"
	FlagPort      = "port"
	FlagEnv       = "env"
	FlagFramework = "framework"
	FlagType      = "type"
	FlagDebug     = "debug"
	FlagClusterID = "cluster-id"
)

// Params are the launch parameters of a child process
type Params struct {
	Role      types.Role
	Name      string // agent name; workers use their pid
	Cwd       string
	Port      int
	Env       string
	Framework string
	Debug     string
	ClusterID string
}

// Args renders the parameters as command line flags
func (p Params) Args() []string {
	args := []string{
		"--" + FlagType, string(p.Role),
		"--" + FlagCwd, p.Cwd,
		"--" + FlagPort, strconv.Itoa(p.Port),
		"--" + FlagEnv, p.Env,
		"--" + FlagFramework, p.Framework,
	}
	if p.Name != "" {
		args = append(args, "--"+FlagName, p.Name)
	}
	if p.Debug != "" {
		args = append(args, "--"+FlagDebug, p.Debug)
	}
	if p.ClusterID != "" {
		args = append(args, "--"+FlagClusterID, p.ClusterID)
	}
	return args
}
