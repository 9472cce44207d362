package storage

import (
	"time"

	"github.com/cuemby/burrow/pkg/events"
)

// Journal records supervisor lifecycle events across runs
type Journal interface {
	// Append stores an event and updates the last known state of its process
	Append(event *events.Event) error

	// Events returns up to limit most recent events, oldest first.
	// A limit of zero or less returns every event.
	Events(limit int) ([]*events.Event, error)

	// Processes returns the last known state of every process, ordered by role then name
	Processes() ([]*ProcessState, error)

	// Utility
	Close() error
}

// ProcessState is the last journaled state of one child
type ProcessState struct {
	RunID     string    `json:"runId,omitempty"`
	Role      string    `json:"role"`
	Name      string    `json:"name"`
	Pid       int       `json:"pid"`
	Status    int       `json:"status"`
	LastEvent string    `json:"lastEvent"`
	UpdatedAt time.Time `json:"updatedAt"`
}
