package master

import (
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/ipc"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
)

// onMessage is the single receive callback for every child channel
func (m *Master) onMessage(msg *ipc.Message) {
	metrics.MessagesTotal.WithLabelValues(msg.Action).Inc()

	m.mu.Lock()
	handler := m.handle(msg)
	m.mu.Unlock()

	if handler != nil {
		handler(msg)
	}
}

// handle applies a message to the supervisor state. It returns the external
// handler to run once mu is released, if any. Must be called with mu held.
func (m *Master) handle(msg *ipc.Message) HandlerFunc {
	if msg.Target != "" && msg.Target != ipc.TargetMaster {
		m.route(msg)
		return nil
	}

	scope, verb := ipc.SplitAction(msg.Action)
	if role := types.Role(scope); role.Valid() {
		switch verb {
		case ipc.VerbCreated:
			m.acknowledge(role, msg, types.StatusCreated, ipc.ActionProcessCreated, events.EventProcessCreated)
			return nil
		case ipc.VerbFailed:
			metrics.StartupFailuresTotal.WithLabelValues(string(role)).Inc()
			m.acknowledge(role, msg, types.StatusFailed, ipc.ActionProcessFailed, events.EventProcessFailed)
			return nil
		case ipc.VerbKill:
			m.transition(role, msg.Name(), types.StatusKillAcked, "")
			return nil
		case ipc.VerbDead:
			m.transition(role, msg.Name(), types.StatusDead, events.EventProcessDead)
			return nil
		}
	}

	switch msg.Action {
	case ipc.ActionShutdown:
		m.logger.Info().Str("from", msg.Name()).Msg("Shutdown requested")
		m.kill()
		m.closeConn(msg)
		return nil
	case ipc.ActionStartInfo:
		m.collectStartInfo(msg)
		m.closeConn(msg)
		return nil
	}

	if fn, ok := m.handlers[msg.Action]; ok {
		return fn
	}
	m.logger.Debug().Str("action", msg.Action).Msg("Unhandled action")
	m.closeConn(msg)
	return nil
}

// acknowledge records a startup outcome and answers the child
func (m *Master) acknowledge(role types.Role, msg *ipc.Message, status types.Status, ack string, typ events.EventType) {
	id := msg.Name()
	rec, ok := m.registry.Get(role, id)
	if !ok {
		m.logger.Warn().Str("action", msg.Action).Str("name", id).Msg("Message from unknown process")
		m.closeConn(msg)
		return
	}

	m.transition(role, id, status, typ)
	if err := rec.Handle.Send(&ipc.Message{Action: ack, Conn: msg.Conn}); err != nil {
		m.logger.Debug().Err(err).Str("name", id).Str("action", ack).Msg("Failed to acknowledge")
		m.closeConn(msg)
	}
}

// transition moves a record to status, ignoring moves the rank forbids
func (m *Master) transition(role types.Role, id string, status types.Status, typ events.EventType) {
	prev, changed := m.registry.SetStatus(role, id, status)
	if !changed {
		m.logger.Debug().
			Str("role", string(role)).
			Str("name", id).
			Stringer("from", prev).
			Stringer("to", status).
			Msg("Ignoring status transition")
		return
	}
	if typ == "" || prev == status {
		return
	}
	if rec, ok := m.registry.Get(role, id); ok {
		m.publishRecord(typ, rec, "")
	}
}

// route forwards a message addressed to another child or group
func (m *Master) route(msg *ipc.Message) {
	fwd := &ipc.Message{Action: msg.Action, Body: msg.Body}

	switch msg.Target {
	case ipc.TargetWorkers, ipc.TargetAgents:
		if msg.Conn != nil {
			m.logger.Warn().Str("action", msg.Action).Msg("Cannot attach a socket to a group message, dropping it")
			m.closeConn(msg)
		}
		role := types.RoleWorker
		if msg.Target == ipc.TargetAgents {
			role = types.RoleAgent
		}
		m.broadcast(role, fwd)
		return
	}

	for _, role := range []types.Role{types.RoleAgent, types.RoleWorker} {
		rec, ok := m.registry.Get(role, msg.Target)
		if !ok {
			continue
		}
		fwd.Conn = msg.Conn
		if err := rec.Handle.Send(fwd); err != nil {
			m.logger.Debug().Err(err).Str("target", msg.Target).Str("action", msg.Action).Msg("Failed to forward message")
			m.closeConn(msg)
		}
		return
	}

	m.logger.Warn().Str("target", msg.Target).Str("action", msg.Action).Msg("Unknown message target")
	m.closeConn(msg)
}

// broadcast sends msg to every live process of role and returns the number
// of recipients. msg must not carry a socket.
func (m *Master) broadcast(role types.Role, msg *ipc.Message) int {
	sent := 0
	for _, rec := range m.registry.Records(role) {
		if rec.Exited {
			continue
		}
		if err := rec.Handle.Send(&ipc.Message{Action: msg.Action, Body: msg.Body}); err != nil {
			m.logger.Debug().Err(err).Str("name", rec.ID).Str("action", msg.Action).Msg("Broadcast failed")
			continue
		}
		sent++
	}
	return sent
}

func (m *Master) closeConn(msg *ipc.Message) {
	if msg.Conn != nil {
		msg.Conn.Close()
		msg.Conn = nil
	}
}
