package master

import (
	"syscall"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/ipc"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
)

type killStage int

const (
	stageWorkers killStage = iota
	stageAgents
	stageDone
)

// Kill starts the ordered shutdown: every worker is driven to dead before
// any agent is signalled, then the agents follow. Only the first call acts;
// the sequence cannot be cancelled.
func (m *Master) Kill() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kill()
}

// kill must be called with mu held
func (m *Master) kill() {
	if m.killing {
		return
	}
	m.killing = true
	m.stage = stageWorkers
	m.killTimer = metrics.NewTimer()

	m.logger.Info().
		Int("workers", m.registry.Len(types.RoleWorker)).
		Int("agents", m.registry.Len(types.RoleAgent)).
		Msg("Shutting down cluster")
	m.publish(&events.Event{Type: events.EventClusterShutdown})
	metrics.UpdateComponent(metrics.ComponentWorkers, false, "shutting down")

	if b := m.balancer; b != nil {
		// Stop waits for an in-flight dispatch, which needs mu
		go func() {
			if err := b.Stop(); err != nil {
				m.logger.Debug().Err(err).Msg("Closing sticky listener")
			}
			metrics.UpdateComponent(metrics.ComponentSticky, false, "closed")
		}()
	}

	m.terminate(types.RoleWorker)
	go m.killLoop()
}

// terminate sends SIGTERM once to every process of role still running
func (m *Master) terminate(role types.Role) {
	for _, rec := range m.registry.Records(role) {
		if rec.Status == types.StatusDead || rec.Exited {
			continue
		}
		if err := rec.Handle.Signal(syscall.SIGTERM); err != nil {
			m.logger.Debug().Err(err).Str("role", string(role)).Str("name", rec.ID).Msg("Failed to signal")
		}
	}
}

func (m *Master) killLoop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.Lock()
		finished := m.killTick()
		m.mu.Unlock()

		if finished {
			m.finish()
			return
		}
	}
}

// killTick advances the sequence by one poll. Must be called with mu held.
func (m *Master) killTick() bool {
	switch m.stage {
	case stageWorkers:
		if !m.advance(types.RoleWorker) {
			return false
		}
		m.logger.Info().Msg("All workers dead, stopping agents")
		m.stage = stageAgents
		m.terminate(types.RoleAgent)
		return false

	case stageAgents:
		if !m.advance(types.RoleAgent) {
			return false
		}
		m.stage = stageDone
		return true
	}
	return false
}

// advance issues process:kill to every process of role that has started or
// acknowledged the shutdown, and reports whether all of them are dead
func (m *Master) advance(role types.Role) bool {
	all := true
	for _, rec := range m.registry.Records(role) {
		if rec.Exited {
			m.markDead(rec)
			m.registry.Remove(role, rec.ID)
			continue
		}

		switch rec.Status {
		case types.StatusKillAcked, types.StatusFailed, types.StatusCreated:
			m.registry.SetStatus(role, rec.ID, types.StatusKillIssued)
			if err := rec.Handle.Send(ipc.NewMessage(ipc.ActionProcessKill, nil)); err != nil {
				m.logger.Debug().Err(err).Str("role", string(role)).Str("name", rec.ID).Msg("Failed to send kill")
			}
			rec.Status = types.StatusKillIssued
			m.publishRecord(events.EventProcessKilling, rec, "")
			all = false
		case types.StatusDead:
		default:
			all = false
		}
	}
	return all
}

// finish runs once every child is dead
func (m *Master) finish() {
	m.mu.Lock()
	timer := m.killTimer
	m.mu.Unlock()

	timer.ObserveDuration(metrics.ShutdownDuration)
	m.logger.Info().Dur("took", timer.Duration()).Msg("Cluster stopped")
	m.publish(&events.Event{Type: events.EventClusterStopped})

	m.stopSignals()
	m.doneOnce.Do(func() { close(m.done) })
	m.exit(0)
}
