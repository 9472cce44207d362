package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/types"
)

// Registry maps process identity to its lifecycle record. It is shared by
// the supervisor, which mutates it, and the barriers, which poll it.
type Registry struct {
	mu      sync.RWMutex
	records map[types.Role]map[string]*types.ProcessRecord
	order   map[types.Role][]string
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		records: map[types.Role]map[string]*types.ProcessRecord{
			types.RoleAgent:  {},
			types.RoleWorker: {},
		},
		order: map[types.Role][]string{},
	}
}

// Add registers a freshly forked process in the starting state
func (r *Registry) Add(role types.Role, id string, pid int, handle types.Handle) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[role][id]; exists {
		return fmt.Errorf("%s %q already registered", role, id)
	}

	now := time.Now()
	r.records[role][id] = &types.ProcessRecord{
		Role:      role,
		ID:        id,
		Pid:       pid,
		Status:    types.StatusStarting,
		Handle:    handle,
		ForkedAt:  now,
		UpdatedAt: now,
	}
	r.order[role] = append(r.order[role], id)
	return nil
}

// SetStatus moves a record to status. Transitions that would lower the
// status rank are refused, which makes duplicate and late acknowledgments
// no-ops. It returns the previous status and whether the move happened.
func (r *Registry) SetStatus(role types.Role, id string, status types.Status) (types.Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[role][id]
	if !ok {
		return 0, false
	}
	prev := rec.Status
	if status.Rank() < prev.Rank() {
		return prev, false
	}
	rec.Status = status
	rec.UpdatedAt = time.Now()
	return prev, true
}

// MarkExited records that the OS process is gone
func (r *Registry) MarkExited(role types.Role, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[role][id]
	if !ok {
		return false
	}
	rec.Exited = true
	rec.UpdatedAt = time.Now()
	return true
}

// Get returns a copy of one record
func (r *Registry) Get(role types.Role, id string) (types.ProcessRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[role][id]
	if !ok {
		return types.ProcessRecord{}, false
	}
	return *rec, true
}

// Records returns copies of every record of a role in fork order
func (r *Registry) Records(role types.Role) []types.ProcessRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.ProcessRecord, 0, len(r.order[role]))
	for _, id := range r.order[role] {
		out = append(out, *r.records[role][id])
	}
	return out
}

// Statuses returns the status of every record of a role in fork order
func (r *Registry) Statuses(role types.Role) []types.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Status, 0, len(r.order[role]))
	for _, id := range r.order[role] {
		out = append(out, r.records[role][id].Status)
	}
	return out
}

// Len returns the number of records of a role
func (r *Registry) Len(role types.Role) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order[role])
}

// Remove drops a record and releases its slot in the fork order
func (r *Registry) Remove(role types.Role, id string) (types.ProcessRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[role][id]
	if !ok {
		return types.ProcessRecord{}, false
	}
	delete(r.records[role], id)

	ids := r.order[role]
	for i, candidate := range ids {
		if candidate == id {
			r.order[role] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return *rec, true
}
