package main

import (
	"path/filepath"
	"testing"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFlagsOverridesFile(t *testing.T) {
	require.NoError(t, startCmd.ParseFlags([]string{"--max", "3", "--agents", "cache,mailer", "--socket", "--debug", "warn"}))

	cfg := &types.ClusterConfig{Port: 9000, MaxWorkers: 8, Env: "staging", LogLevel: "debug"}
	applyFlags(startCmd, cfg)

	assert.Equal(t, 3, cfg.MaxWorkers)
	assert.Equal(t, []string{"cache", "mailer"}, cfg.Agents)
	assert.True(t, cfg.UseSocketServer)
	assert.Equal(t, "warn", cfg.Debug)

	// untouched flags keep file values
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "staging", cfg.Env)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestRecordJournalsEvents(t *testing.T) {
	journal, err := storage.NewBoltJournal(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	defer journal.Close()

	sub := make(events.Subscriber, 2)
	sub <- &events.Event{Type: events.EventProcessForked, Role: "worker", Process: "42", Pid: 42}
	sub <- &events.Event{Type: events.EventClusterReady}
	close(sub)
	record(journal, sub)

	evs, err := journal.Events(0)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, events.EventClusterReady, evs[1].Type)

	procs, err := journal.Processes()
	require.NoError(t, err)
	require.Len(t, procs, 1)
	assert.Equal(t, "42", procs[0].Name)
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "-4 (dead)", statusLabel(-4))
	assert.Equal(t, "1 (created)", statusLabel(1))
}
