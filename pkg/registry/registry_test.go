package registry

import (
	"testing"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsDuplicates(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(types.RoleAgent, "cache", 10, nil))

	err := r.Add(types.RoleAgent, "cache", 11, nil)
	assert.Error(t, err)

	// the same identity under the other role is a different process
	require.NoError(t, r.Add(types.RoleWorker, "cache", 12, nil))
	assert.Equal(t, 1, r.Len(types.RoleAgent))
	assert.Equal(t, 1, r.Len(types.RoleWorker))
}

func TestAddRejectsUnknownRole(t *testing.T) {
	r := New()
	assert.Error(t, r.Add(types.Role("sidecar"), "x", 1, nil))
}

func TestSetStatusIsMonotonic(t *testing.T) {
	tests := []struct {
		name    string
		path    []types.Status
		want    types.Status
		applied []bool
	}{
		{
			name:    "startup then kill",
			path:    []types.Status{types.StatusCreated, types.StatusKillAcked, types.StatusKillIssued, types.StatusDead},
			want:    types.StatusDead,
			applied: []bool{true, true, true, true},
		},
		{
			name:    "late created after kill ack",
			path:    []types.Status{types.StatusKillAcked, types.StatusCreated},
			want:    types.StatusKillAcked,
			applied: []bool{true, false},
		},
		{
			name:    "duplicate kill after dead",
			path:    []types.Status{types.StatusDead, types.StatusKillAcked},
			want:    types.StatusDead,
			applied: []bool{true, false},
		},
		{
			name:    "re-arm from kill issued to kill acked",
			path:    []types.Status{types.StatusKillIssued, types.StatusKillAcked},
			want:    types.StatusKillAcked,
			applied: []bool{true, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			require.NoError(t, r.Add(types.RoleWorker, "100", 100, nil))

			for i, status := range tt.path {
				_, ok := r.SetStatus(types.RoleWorker, "100", status)
				assert.Equal(t, tt.applied[i], ok, "step %d (%s)", i, status)
			}

			rec, ok := r.Get(types.RoleWorker, "100")
			require.True(t, ok)
			assert.Equal(t, tt.want, rec.Status)
		})
	}
}

func TestSetStatusUnknownProcess(t *testing.T) {
	r := New()
	_, ok := r.SetStatus(types.RoleWorker, "missing", types.StatusCreated)
	assert.False(t, ok)
	assert.False(t, r.MarkExited(types.RoleWorker, "missing"))
}

func TestRecordsKeepForkOrder(t *testing.T) {
	r := New()
	for i, id := range []string{"30", "10", "20"} {
		require.NoError(t, r.Add(types.RoleWorker, id, i, nil))
	}
	r.SetStatus(types.RoleWorker, "10", types.StatusCreated)

	recs := r.Records(types.RoleWorker)
	require.Len(t, recs, 3)
	assert.Equal(t, "30", recs[0].ID)
	assert.Equal(t, "10", recs[1].ID)
	assert.Equal(t, "20", recs[2].ID)
	assert.Equal(t, []types.Status{types.StatusStarting, types.StatusCreated, types.StatusStarting}, r.Statuses(types.RoleWorker))

	_, ok := r.Remove(types.RoleWorker, "10")
	require.True(t, ok)
	require.NoError(t, r.Add(types.RoleWorker, "40", 3, nil))

	ids := []string{}
	for _, rec := range r.Records(types.RoleWorker) {
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"30", "20", "40"}, ids)
}

func TestRecordsAreSnapshots(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(types.RoleAgent, "cache", 1, nil))

	recs := r.Records(types.RoleAgent)
	recs[0].Status = types.StatusDead

	rec, _ := r.Get(types.RoleAgent, "cache")
	assert.Equal(t, types.StatusStarting, rec.Status)
}

func TestMarkExited(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(types.RoleAgent, "cache", 1, nil))
	require.True(t, r.MarkExited(types.RoleAgent, "cache"))

	rec, _ := r.Get(types.RoleAgent, "cache")
	assert.True(t, rec.Exited)
	assert.Equal(t, types.StatusStarting, rec.Status)
}
