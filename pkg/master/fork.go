package master

import (
	"fmt"
	"strconv"

	"github.com/cuemby/burrow/pkg/child"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
)

// params builds the launch parameters of a child. Must be called with mu held.
func (m *Master) params(role types.Role, name string) child.Params {
	return child.Params{
		Role:      role,
		Name:      name,
		Cwd:       m.cfg.Cwd,
		Port:      m.workerPort,
		Env:       m.cfg.Env,
		Framework: m.cfg.Framework,
		Debug:     m.cfg.ChildLogLevel(),
		ClusterID: m.clusterID,
	}
}

// forkAgent starts the named agent. Must be called with mu held.
func (m *Master) forkAgent(name string) error {
	return m.fork(types.RoleAgent, name)
}

// forkWorker starts one worker. Must be called with mu held.
func (m *Master) forkWorker() error {
	return m.fork(types.RoleWorker, "")
}

func (m *Master) fork(role types.Role, name string) error {
	// id is assigned before the exit callback can take mu
	var id string
	handle, err := m.spawner.Spawn(m.params(role, name), m.onMessage, func(err error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.exited(role, id, err)
	})
	if err != nil {
		return fmt.Errorf("failed to fork %s: %w", role, err)
	}

	id = name
	if role == types.RoleWorker {
		id = strconv.Itoa(handle.Pid())
	}
	if err := m.registry.Add(role, id, handle.Pid(), handle); err != nil {
		return err
	}

	metrics.ForksTotal.WithLabelValues(string(role)).Inc()
	m.logger.Debug().Str("role", string(role)).Str("name", id).Int("pid", handle.Pid()).Msg("Forked")
	if rec, ok := m.registry.Get(role, id); ok {
		m.publishRecord(events.EventProcessForked, rec, "")
	}
	return nil
}

// exited handles the end of a child process. Must be called with mu held.
func (m *Master) exited(role types.Role, id string, err error) {
	rec, ok := m.registry.Get(role, id)
	if !ok {
		return
	}
	m.registry.MarkExited(role, id)
	rec.Exited = true

	logger := m.logger.With().Str("role", string(role)).Str("name", id).Int("pid", rec.Pid).Logger()
	msg := "exited"
	if err != nil {
		msg = err.Error()
	}
	m.publishRecord(events.EventProcessExited, rec, msg)

	if m.killing {
		// A child gone during shutdown is dead whether or not it said so
		m.markDead(rec)
		m.registry.Remove(role, id)
		logger.Debug().Msg("Exited during shutdown")
		return
	}

	switch role {
	case types.RoleWorker:
		if rec.Status == types.StatusFailed {
			// Kept so the startup barrier sees the failure
			logger.Warn().Msg("Worker exited after failing to start")
			return
		}
		m.registry.Remove(role, id)
		logger.Warn().AnErr("reason", err).Msg("Worker exited unexpectedly, respawning")
		metrics.RespawnsTotal.Inc()
		if ferr := m.forkWorker(); ferr != nil {
			logger.Error().Err(ferr).Msg("Failed to respawn worker")
			return
		}
		m.publishRecord(events.EventProcessRespawned, rec, "")

	case types.RoleAgent:
		if rec.Status == types.StatusStarting {
			m.registry.SetStatus(role, id, types.StatusFailed)
			metrics.StartupFailuresTotal.WithLabelValues(string(role)).Inc()
			logger.Error().AnErr("reason", err).Msg("Agent exited before it started")
			return
		}
		if rec.Status == types.StatusFailed {
			return
		}
		m.markDead(rec)
		m.registry.Remove(role, id)
		logger.Error().AnErr("reason", err).Msg("Agent exited unexpectedly")
	}
}

// markDead moves a record to dead. Must be called with mu held.
func (m *Master) markDead(rec types.ProcessRecord) {
	if _, changed := m.registry.SetStatus(rec.Role, rec.ID, types.StatusDead); changed && rec.Status != types.StatusDead {
		rec.Status = types.StatusDead
		m.publishRecord(events.EventProcessDead, rec, "")
	}
}
