package storage

import (
	"testing"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJournal(t *testing.T) *BoltJournal {
	t.Helper()
	j, err := NewBoltJournal(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func processEvent(typ events.EventType, role, name string, pid, status int) *events.Event {
	ev := events.NewEvent(typ, "")
	ev.Role = role
	ev.Process = name
	ev.Pid = pid
	ev.Status = status
	ev.Metadata = map[string]string{"run": "run-1"}
	return ev
}

func TestAppendAndListEvents(t *testing.T) {
	j := newJournal(t)

	typs := []events.EventType{events.EventProcessForked, events.EventProcessCreated, events.EventClusterReady}
	for _, typ := range typs {
		require.NoError(t, j.Append(events.NewEvent(typ, string(typ))))
	}

	all, err := j.Events(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, typ := range typs {
		assert.Equal(t, typ, all[i].Type)
	}

	recent, err := j.Events(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, events.EventProcessCreated, recent[0].Type)
	assert.Equal(t, events.EventClusterReady, recent[1].Type)
}

func TestProcessesKeepLastState(t *testing.T) {
	j := newJournal(t)

	require.NoError(t, j.Append(processEvent(events.EventProcessForked, "worker", "101", 101, 0)))
	require.NoError(t, j.Append(processEvent(events.EventProcessCreated, "worker", "101", 101, 1)))
	require.NoError(t, j.Append(processEvent(events.EventProcessForked, "agent", "cache", 100, 0)))
	require.NoError(t, j.Append(events.NewEvent(events.EventClusterReady, "")))
	require.NoError(t, j.Append(processEvent(events.EventProcessDead, "worker", "101", 101, -4)))

	procs, err := j.Processes()
	require.NoError(t, err)
	require.Len(t, procs, 2)

	assert.Equal(t, "agent", procs[0].Role)
	assert.Equal(t, "cache", procs[0].Name)
	assert.Equal(t, 0, procs[0].Status)

	assert.Equal(t, "worker", procs[1].Role)
	assert.Equal(t, -4, procs[1].Status)
	assert.Equal(t, string(events.EventProcessDead), procs[1].LastEvent)
	assert.Equal(t, "run-1", procs[1].RunID)
}

func TestJournalSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	j, err := NewBoltJournal(dir)
	require.NoError(t, err)
	require.NoError(t, j.Append(events.NewEvent(events.EventClusterStopped, "")))
	require.NoError(t, j.Close())

	j, err = NewBoltJournal(dir)
	require.NoError(t, err)
	defer j.Close()

	evs, err := j.Events(0)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, events.EventClusterStopped, evs[0].Type)
}

func TestEmptyJournal(t *testing.T) {
	j := newJournal(t)

	evs, err := j.Events(10)
	require.NoError(t, err)
	assert.Empty(t, evs)

	procs, err := j.Processes()
	require.NoError(t, err)
	assert.Empty(t, procs)
}
