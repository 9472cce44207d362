package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/cuemby/burrow/pkg/child"
	"github.com/cuemby/burrow/pkg/ipc"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/spf13/cobra"
)

// childCmd is the entry point of every forked process. The master passes the
// channel as descriptor 3.
var childCmd = &cobra.Command{
	Use:    "child",
	Short:  "Run a single agent or worker (started by the master)",
	Hidden: true,
	RunE:   runChild,
}

func init() {
	f := childCmd.Flags()
	f.String(child.FlagType, "", "Role of the process (agent or worker)")
	f.String(child.FlagCwd, "", "Working directory")
	f.Int(child.FlagPort, 0, "Port to serve on")
	f.String(child.FlagEnv, "", "Environment name")
	f.String(child.FlagFramework, "", "Framework name")
	f.String(child.FlagName, "", "Process name (agents only)")
	f.String(child.FlagDebug, "", "Log level override")
	f.String(child.FlagClusterID, "", "Run identifier of the master")
}

func runChild(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	role, _ := f.GetString(child.FlagType)
	params := child.Params{Role: types.Role(role)}
	params.Cwd, _ = f.GetString(child.FlagCwd)
	params.Port, _ = f.GetInt(child.FlagPort)
	params.Env, _ = f.GetString(child.FlagEnv)
	params.Framework, _ = f.GetString(child.FlagFramework)
	params.Name, _ = f.GetString(child.FlagName)
	params.Debug, _ = f.GetString(child.FlagDebug)
	params.ClusterID, _ = f.GetString(child.FlagClusterID)
	if params.Name == "" {
		params.Name = strconv.Itoa(os.Getpid())
	}

	level := log.InfoLevel
	if params.Debug != "" {
		level = log.ParseLevel(params.Debug)
	}
	log.Init(log.Config{Level: level, JSONOutput: !log.IsTerminal(os.Stdout)})
	if params.ClusterID != "" {
		log.Logger = log.WithClusterID(params.ClusterID)
	}

	conn, err := ipc.Inherited()
	if err != nil {
		return fmt.Errorf("failed to open master channel: %w", err)
	}

	fw, err := child.Lookup(params.Framework)
	if err != nil {
		// report the failure so the master does not treat the exit as a crash
		conn.Send(&ipc.Message{
			Action: ipc.RoleAction(role, ipc.VerbFailed),
			Body:   map[string]any{"name": params.Name},
			Target: ipc.TargetMaster,
		})
		conn.Close()
		return err
	}

	rt, err := child.New(params, fw, child.Options{Channel: conn})
	if err != nil {
		conn.Close()
		return err
	}
	os.Exit(rt.Run(context.Background()))
	return nil
}
