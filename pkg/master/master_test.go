package master

import (
	"bytes"
	"context"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/ipc"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

type harness struct {
	m       *Master
	spawner *fakeSpawner
	signals chan os.Signal
	output  *syncBuffer

	mu    sync.Mutex
	exits []int
}

func newHarness(t *testing.T, cfg types.ClusterConfig, spawner *fakeSpawner) *harness {
	t.Helper()

	if cfg.Cwd == "" {
		cfg.Cwd = t.TempDir()
	}
	h := &harness{
		spawner: spawner,
		signals: make(chan os.Signal, 1),
		output:  &syncBuffer{},
	}
	h.m = New(cfg, Options{
		Spawner:  spawner,
		Signals:  h.signals,
		Exit:     h.exit,
		Interval: time.Millisecond,
		Output:   h.output,
	})
	t.Cleanup(func() {
		h.m.Kill()
		select {
		case <-h.m.Done():
		case <-time.After(waitFor):
			t.Error("cluster did not stop")
		}
	})
	return h
}

func (h *harness) exit(code int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exits = append(h.exits, code)
}

func (h *harness) exitCodes() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.exits...)
}

func (h *harness) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-h.m.Done():
	case <-time.After(waitFor):
		t.Fatal("cluster did not stop")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestCreateServerNotifiesEveryChild(t *testing.T) {
	h := newHarness(t, types.ClusterConfig{MaxWorkers: 2}, newFakeSpawner())

	require.NoError(t, h.m.CreateServer(context.Background()))

	workers := h.spawner.byRole(types.RoleWorker)
	require.Len(t, workers, 2)
	assert.Empty(t, h.spawner.byRole(types.RoleAgent))

	ready := 0
	for _, c := range workers {
		assert.Equal(t, 1, c.count(ipc.ActionProcessCreated), c.String())
		ready += c.count(ipc.ActionClusterReady)
	}
	assert.Equal(t, 2, ready)

	for _, rec := range h.m.Records(types.RoleWorker) {
		assert.Equal(t, types.StatusCreated, rec.Status)
	}
}

func TestCreateServerStartsAgentsFirst(t *testing.T) {
	h := newHarness(t, types.ClusterConfig{MaxWorkers: 1, Agents: []string{"cache", "mailer"}}, newFakeSpawner())

	require.NoError(t, h.m.CreateServer(context.Background()))

	children := h.spawner.all()
	require.Len(t, children, 3)
	assert.Equal(t, types.RoleAgent, children[0].params.Role)
	assert.Equal(t, "cache", children[0].params.Name)
	assert.Equal(t, "mailer", children[1].params.Name)
	assert.Equal(t, types.RoleWorker, children[2].params.Role)

	for _, c := range children {
		assert.Equal(t, 1, c.count(ipc.ActionClusterReady), c.String())
		assert.Equal(t, h.m.ClusterID(), c.params.ClusterID)
	}
}

func TestCreateServerAgentFailure(t *testing.T) {
	tests := []struct {
		name string
		mode string
	}{
		{name: "create hook rejected", mode: startFail},
		{name: "exited before reporting", mode: startCrash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spawner := newFakeSpawner()
			spawner.behaviour["cache"] = tt.mode
			h := newHarness(t, types.ClusterConfig{MaxWorkers: 2, Agents: []string{"cache"}}, spawner)

			err := h.m.CreateServer(context.Background())
			require.ErrorIs(t, err, ErrAgentsFailed)
			assert.Empty(t, spawner.byRole(types.RoleWorker), "no worker is forked after an agent failure")

			recs := h.m.Records(types.RoleAgent)
			require.Len(t, recs, 1)
			assert.Equal(t, types.StatusFailed, recs[0].Status)
		})
	}
}

func TestCreateServerWorkerFailure(t *testing.T) {
	spawner := newFakeSpawner()
	spawner.behaviour[string(types.RoleWorker)] = startFail
	h := newHarness(t, types.ClusterConfig{MaxWorkers: 2}, spawner)

	err := h.m.CreateServer(context.Background())
	require.ErrorIs(t, err, ErrWorkersFailed)

	for _, c := range spawner.byRole(types.RoleWorker) {
		assert.Equal(t, 1, c.count(ipc.ActionProcessFailed), c.String())
		assert.Zero(t, c.count(ipc.ActionClusterReady), c.String())
	}
}

func TestCreateServerContextCancelled(t *testing.T) {
	spawner := newFakeSpawner()
	spawner.behaviour[string(types.RoleWorker)] = startHang
	h := newHarness(t, types.ClusterConfig{MaxWorkers: 1}, spawner)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := h.m.CreateServer(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCreateServerInterruptedByKill(t *testing.T) {
	spawner := newFakeSpawner()
	spawner.behaviour["cache"] = startHang
	h := newHarness(t, types.ClusterConfig{MaxWorkers: 1, Agents: []string{"cache"}}, spawner)

	errc := make(chan error, 1)
	go func() { errc <- h.m.CreateServer(context.Background()) }()

	require.Eventually(t, func() bool { return len(spawner.all()) == 1 }, waitFor, time.Millisecond)
	h.m.Kill()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrKilling)
	case <-time.After(waitFor):
		t.Fatal("CreateServer did not return")
	}
	h.waitDone(t)
	assert.Empty(t, spawner.byRole(types.RoleWorker))
	assert.Equal(t, []int{0}, h.exitCodes())
}

func TestKillStopsWorkersBeforeAgents(t *testing.T) {
	spawner := newFakeSpawner()
	h := newHarness(t, types.ClusterConfig{MaxWorkers: 3, Agents: []string{"cache"}}, spawner)

	var violations []string
	var vmu sync.Mutex
	spawner.onSignal = func(c *fakeChild) {
		if c.params.Role != types.RoleAgent {
			return
		}
		for _, rec := range h.m.registry.Records(types.RoleWorker) {
			if rec.Status != types.StatusDead {
				vmu.Lock()
				violations = append(violations, rec.ID+" is "+rec.Status.String())
				vmu.Unlock()
			}
		}
	}

	require.NoError(t, h.m.CreateServer(context.Background()))
	h.m.Kill()
	h.waitDone(t)

	assert.Empty(t, violations, "agents are signalled only once every worker is dead")
	assert.Equal(t, []int{0}, h.exitCodes())

	for _, c := range spawner.byRole(types.RoleWorker) {
		log := c.log()
		term := indexOf(log, "signal:"+syscall.SIGTERM.String())
		kill := indexOf(log, ipc.ActionProcessKill)
		require.GreaterOrEqual(t, term, 0, c.String())
		assert.Greater(t, kill, term, "%s got process:kill before SIGTERM", c)
	}

	agent := spawner.byRole(types.RoleAgent)[0]
	assert.Equal(t, 1, agent.count("signal:"+syscall.SIGTERM.String()))
	assert.Equal(t, 1, agent.count(ipc.ActionProcessKill))

	for _, role := range []types.Role{types.RoleWorker, types.RoleAgent} {
		for _, rec := range h.m.Records(role) {
			assert.Equal(t, types.StatusDead, rec.Status, rec.ID)
		}
	}
}

func TestKillIsIdempotent(t *testing.T) {
	spawner := newFakeSpawner()
	h := newHarness(t, types.ClusterConfig{MaxWorkers: 2, Agents: []string{"cache"}}, spawner)
	require.NoError(t, h.m.CreateServer(context.Background()))

	h.m.Kill()
	h.m.Kill()
	h.signals <- syscall.SIGINT
	spawner.byRole(types.RoleWorker)[0].sendMessage(&ipc.Message{Action: ipc.ActionShutdown})
	h.waitDone(t)

	// late duplicates must not restart the sequence
	h.m.Kill()
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, []int{0}, h.exitCodes())
	for _, c := range spawner.all() {
		assert.Equal(t, 1, c.count("signal:"+syscall.SIGTERM.String()), c.String())
	}
}

func TestShutdownRequestedByChild(t *testing.T) {
	spawner := newFakeSpawner()
	h := newHarness(t, types.ClusterConfig{MaxWorkers: 1}, spawner)
	require.NoError(t, h.m.CreateServer(context.Background()))

	spawner.byRole(types.RoleWorker)[0].sendMessage(&ipc.Message{Action: ipc.ActionShutdown, Body: map[string]any{"name": "x"}})
	h.waitDone(t)
	assert.True(t, h.m.Killing())
}

func TestSignalTriggersKill(t *testing.T) {
	h := newHarness(t, types.ClusterConfig{MaxWorkers: 1}, newFakeSpawner())
	require.NoError(t, h.m.CreateServer(context.Background()))

	h.signals <- syscall.SIGTERM
	h.waitDone(t)
	assert.Equal(t, []int{0}, h.exitCodes())
}

func TestWorkerCrashIsRespawned(t *testing.T) {
	spawner := newFakeSpawner()
	h := newHarness(t, types.ClusterConfig{MaxWorkers: 2}, spawner)
	require.NoError(t, h.m.CreateServer(context.Background()))

	before := testutil.ToFloat64(metrics.RespawnsTotal)
	crashed := spawner.byRole(types.RoleWorker)[0]
	crashed.exit(assert.AnError)

	require.Eventually(t, func() bool {
		return len(spawner.byRole(types.RoleWorker)) == 3
	}, waitFor, time.Millisecond)
	require.Eventually(t, func() bool {
		recs := h.m.Records(types.RoleWorker)
		if len(recs) != 2 {
			return false
		}
		for _, rec := range recs {
			if rec.Status != types.StatusCreated {
				return false
			}
		}
		return true
	}, waitFor, time.Millisecond)

	for _, rec := range h.m.Records(types.RoleWorker) {
		assert.NotEqual(t, crashed.pid, rec.Pid)
	}
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RespawnsTotal))
}

func TestWorkerCrashDuringKillIsNotRespawned(t *testing.T) {
	spawner := newFakeSpawner()
	h := newHarness(t, types.ClusterConfig{MaxWorkers: 2}, spawner)
	require.NoError(t, h.m.CreateServer(context.Background()))

	spawner.onSignal = func(c *fakeChild) {
		go c.exit(assert.AnError)
	}
	h.m.Kill()
	h.waitDone(t)

	assert.Len(t, spawner.byRole(types.RoleWorker), 2)
}

func TestAgentExitAfterStartIsNotRespawned(t *testing.T) {
	spawner := newFakeSpawner()
	h := newHarness(t, types.ClusterConfig{MaxWorkers: 1, Agents: []string{"cache"}}, spawner)
	require.NoError(t, h.m.CreateServer(context.Background()))

	spawner.byRole(types.RoleAgent)[0].exit(assert.AnError)

	require.Eventually(t, func() bool { return len(h.m.Records(types.RoleAgent)) == 0 }, waitFor, time.Millisecond)
	assert.Len(t, spawner.byRole(types.RoleAgent), 1)
}

func TestRouteByTarget(t *testing.T) {
	spawner := newFakeSpawner()
	h := newHarness(t, types.ClusterConfig{MaxWorkers: 2, Agents: []string{"cache"}}, spawner)
	require.NoError(t, h.m.CreateServer(context.Background()))

	workers := spawner.byRole(types.RoleWorker)
	agent := spawner.byRole(types.RoleAgent)[0]

	workers[0].sendMessage(&ipc.Message{Action: "cache:get", Target: "cache", Body: map[string]any{"key": "a"}})
	agent.sendMessage(&ipc.Message{Action: "cache:flush", Target: ipc.TargetWorkers})
	agent.sendMessage(&ipc.Message{Action: "cache:reply", Target: workers[1].name})
	agent.sendMessage(&ipc.Message{Action: "lost", Target: "nobody"})

	assert.Equal(t, 1, agent.count("cache:get"))
	for _, w := range workers {
		assert.Equal(t, 1, w.count("cache:flush"), w.String())
		assert.Zero(t, w.count("lost"))
	}
	assert.Zero(t, workers[0].count("cache:reply"))
	assert.Equal(t, 1, workers[1].count("cache:reply"))
}

func TestHandleCustomAction(t *testing.T) {
	spawner := newFakeSpawner()
	h := newHarness(t, types.ClusterConfig{MaxWorkers: 1}, spawner)

	got := make(chan *ipc.Message, 1)
	h.m.Handle("stats:report", func(msg *ipc.Message) {
		// mu is released while external handlers run
		assert.False(t, h.m.Killing())
		got <- msg
	})
	require.NoError(t, h.m.CreateServer(context.Background()))

	spawner.byRole(types.RoleWorker)[0].sendMessage(&ipc.Message{Action: "stats:report", Body: map[string]any{"rps": 12}})

	select {
	case msg := <-got:
		assert.Equal(t, "12", msg.String("rps"))
	case <-time.After(waitFor):
		t.Fatal("handler not invoked")
	}
}

func TestStartInfoTable(t *testing.T) {
	spawner := newFakeSpawner()
	h := newHarness(t, types.ClusterConfig{MaxWorkers: 2}, spawner)
	require.NoError(t, h.m.CreateServer(context.Background()))

	workers := spawner.byRole(types.RoleWorker)
	workers[0].sendMessage(&ipc.Message{Action: ipc.ActionStartInfo, Body: map[string]any{
		"data": map[string]any{"pid": workers[0].name, "port": 9000},
	}})
	assert.Empty(t, h.output.String(), "table waits for every worker")

	workers[1].sendMessage(&ipc.Message{Action: ipc.ActionStartInfo, Body: map[string]any{
		"pid": workers[1].name, "port": 9000, "mode": "sticky",
	}})

	out := h.output.String()
	assert.Contains(t, out, "pid")
	assert.Contains(t, out, "mode")
	assert.Contains(t, out, "sticky")
	assert.Contains(t, out, workers[0].name)
	assert.Contains(t, out, workers[1].name)
	assert.Equal(t, 1, strings.Count(out, "port"))
}

func TestRenderStartInfoUnionOfColumns(t *testing.T) {
	out := renderStartInfo([]map[string]any{
		{"b": 1},
		{"a": "x", "b": 2},
	})
	lines := strings.Split(out, "\n")
	require.Greater(t, len(lines), 3)
	header := lines[1]
	assert.Less(t, strings.Index(header, "a"), strings.Index(header, "b"))
}

func TestStickyRoutesConnections(t *testing.T) {
	spawner := newFakeSpawner()
	h := newHarness(t, types.ClusterConfig{MaxWorkers: 2, UseSocketServer: true}, spawner)
	require.NoError(t, h.m.CreateServer(context.Background()))

	for _, c := range spawner.byRole(types.RoleWorker) {
		assert.NotZero(t, c.params.Port)
	}

	conn, err := net.Dial("tcp", h.m.balancer.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		n := 0
		for _, c := range spawner.byRole(types.RoleWorker) {
			n += c.count(ipc.ActionStickyBalance)
		}
		return n == 1
	}, waitFor, time.Millisecond)
}

func TestRouteConnDropsAfterKill(t *testing.T) {
	h := newHarness(t, types.ClusterConfig{MaxWorkers: 1}, newFakeSpawner())
	require.NoError(t, h.m.CreateServer(context.Background()))
	h.m.Kill()

	a, b := net.Pipe()
	defer b.Close()
	assert.Error(t, h.m.routeConn(0, a))

	_, err := a.Write([]byte("x"))
	assert.Error(t, err, "dropped connection is closed")
}

func TestLifecycleEvents(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	spawner := newFakeSpawner()
	exited := make(chan struct{})
	m := New(types.ClusterConfig{MaxWorkers: 1, Cwd: t.TempDir()}, Options{
		Spawner:  spawner,
		Signals:  make(chan os.Signal),
		Exit:     func(int) { close(exited) },
		Broker:   broker,
		Interval: time.Millisecond,
		Output:   &syncBuffer{},
	})
	require.NoError(t, m.CreateServer(context.Background()))
	m.Kill()
	<-exited

	seen := map[events.EventType]bool{}
	timeout := time.After(waitFor)
	for !seen[events.EventClusterStopped] {
		select {
		case ev := <-sub:
			seen[ev.Type] = true
			assert.Equal(t, m.ClusterID(), ev.Metadata["run"])
		case <-timeout:
			t.Fatalf("missing cluster.stopped, saw %v", seen)
		}
	}

	for _, typ := range []events.EventType{
		events.EventProcessForked,
		events.EventProcessCreated,
		events.EventClusterReady,
		events.EventClusterShutdown,
		events.EventProcessKilling,
		events.EventProcessDead,
	} {
		assert.True(t, seen[typ], typ)
	}
}

func indexOf(log []string, entry string) int {
	for i, e := range log {
		if e == entry {
			return i
		}
	}
	return -1
}
