package daemon

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasonish/meerkat-desktop/internal/buildinfo"
	"github.com/jasonish/meerkat-desktop/pkg/core"
	"github.com/jasonish/meerkat-desktop/pkg/shutdown"
	"github.com/jasonish/meerkat-desktop/pkg/supervisor"
	"github.com/jasonish/meerkat-desktop/pkg/tailer"
	"github.com/jasonish/meerkat-desktop/pkg/transport/uds"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeTable struct {
	mu      sync.Mutex
	running map[string]bool
	killed  []string
}

func (f *fakeTable) Running(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[name], nil
}

func (f *fakeTable) KillAll(_ context.Context, name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, name)
	return 0, nil
}

type env struct {
	daemon   *Daemon
	client   *uds.Client
	table    *fakeTable
	tailPath string
}

func startDaemon(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	logger := testLogger()

	script := filepath.Join(dir, "engine")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho ready\nexec sleep 30\n"), 0o755))
	tailPath := filepath.Join(dir, "eve.json")

	ctx, cancel := context.WithCancel(context.Background())
	srv := uds.NewServer(filepath.Join(dir, "meerkat.sock"), logger)
	table := &fakeTable{running: map[string]bool{}}
	sup := supervisor.New(ctx, table, srv, logger)
	sup.Register("detection-engine", core.LaunchSpec{Executable: script, StopTimeout: time.Second})
	tl := tailer.New(tailer.Options{Path: tailPath, Interval: 20 * time.Millisecond}, srv, logger)
	reaper := shutdown.New(sup, table, tl, logger)

	d := New(ctx, srv, sup, tl, reaper, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()
	select {
	case <-srv.Ready():
	case err := <-errCh:
		t.Fatalf("daemon run: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not become ready")
	}

	client, err := uds.Dial(filepath.Join(dir, "meerkat.sock"))
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		sup.StopAll()
		tl.StopTail()
		cancel()
		d.Shutdown()
		<-errCh
		wctx, wcancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer wcancel()
		_ = tl.Wait(wctx)
	})
	return &env{daemon: d, client: client, table: table, tailPath: tailPath}
}

func reqContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestPingReportsVersion(t *testing.T) {
	e := startDaemon(t)
	var resp uds.PingResponse
	require.NoError(t, e.client.Call(reqContext(t), uds.MethodPing, nil, &resp))
	assert.True(t, resp.Pong)
	assert.Equal(t, buildinfo.Version, resp.Version)
}

func TestStartStatusStop(t *testing.T) {
	e := startDaemon(t)
	ctx := reqContext(t)
	req := uds.SlotRequest{Slot: "detection-engine"}

	var started uds.StartResponse
	require.NoError(t, e.client.Call(ctx, uds.MethodStart, req, &started))
	assert.Positive(t, started.PID)
	assert.NotEmpty(t, started.RunID)

	var status uds.StatusResponse
	require.NoError(t, e.client.Call(ctx, uds.MethodStatus, req, &status))
	assert.True(t, status.Tracked)
	assert.Equal(t, started.PID, status.PID)

	require.NoError(t, e.client.Call(ctx, uds.MethodStop, req, nil))

	status = uds.StatusResponse{}
	require.NoError(t, e.client.Call(ctx, uds.MethodStatus, req, &status))
	assert.False(t, status.Tracked)
	assert.False(t, status.Running)
}

func TestStatusFallsBackToProcessTable(t *testing.T) {
	e := startDaemon(t)
	e.table.mu.Lock()
	e.table.running["engine"] = true
	e.table.mu.Unlock()

	var status uds.StatusResponse
	require.NoError(t, e.client.Call(reqContext(t), uds.MethodStatus, uds.SlotRequest{Slot: "detection-engine"}, &status))
	assert.True(t, status.Running)
	assert.False(t, status.Tracked)
}

func TestStartUnknownSlot(t *testing.T) {
	e := startDaemon(t)
	err := e.client.Call(reqContext(t), uds.MethodStart, uds.SlotRequest{Slot: "nope"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown slot")
}

func TestStartRequiresSlot(t *testing.T) {
	e := startDaemon(t)
	err := e.client.Call(reqContext(t), uds.MethodStart, uds.SlotRequest{}, nil)
	assert.Error(t, err)
}

func TestTailOverSocket(t *testing.T) {
	e := startDaemon(t)
	ctx := reqContext(t)

	var events sync.WaitGroup
	events.Add(1)
	var once sync.Once
	e.client.OnEvent(func(msg uds.Message) {
		if msg.Method == uds.EventTail {
			once.Do(events.Done)
		}
	})

	var st uds.TailStatusResponse
	require.NoError(t, e.client.Call(ctx, uds.MethodTailStart, nil, &st))
	assert.True(t, st.Running)
	assert.Equal(t, e.tailPath, st.Path)

	require.NoError(t, os.WriteFile(e.tailPath, []byte("{\"event_type\":\"alert\"}\n"), 0o644))
	require.Eventually(t, func() bool {
		var s uds.TailStatusResponse
		return e.client.Call(ctx, uds.MethodTailStatus, nil, &s) == nil && s.Records == 1
	}, 2*time.Second, 20*time.Millisecond)
	events.Wait()

	require.NoError(t, e.client.Call(ctx, uds.MethodTailStop, nil, &st))
	assert.False(t, st.Running)
}

func TestReapKillsRegisteredBinaries(t *testing.T) {
	e := startDaemon(t)
	var resp uds.ReapResponse
	require.NoError(t, e.client.Call(reqContext(t), uds.MethodReap, nil, &resp))
	assert.Contains(t, resp.Killed, "engine")

	e.table.mu.Lock()
	defer e.table.mu.Unlock()
	assert.Equal(t, []string{"engine"}, e.table.killed)
}

func TestStartAfterReap(t *testing.T) {
	e := startDaemon(t)
	ctx := reqContext(t)
	req := uds.SlotRequest{Slot: "detection-engine"}

	var first uds.StartResponse
	require.NoError(t, e.client.Call(ctx, uds.MethodStart, req, &first))
	require.NoError(t, e.client.Call(ctx, uds.MethodReap, nil, nil))

	var status uds.StatusResponse
	require.NoError(t, e.client.Call(ctx, uds.MethodStatus, req, &status))
	assert.False(t, status.Tracked)

	var second uds.StartResponse
	require.NoError(t, e.client.Call(ctx, uds.MethodStart, req, &second))
	assert.Positive(t, second.PID)
	assert.NotEqual(t, first.RunID, second.RunID)

	e.table.mu.Lock()
	e.table.running["engine"] = true
	e.table.mu.Unlock()

	status = uds.StatusResponse{}
	require.NoError(t, e.client.Call(ctx, uds.MethodStatus, req, &status))
	assert.True(t, status.Running)
	assert.True(t, status.Tracked)
	assert.Equal(t, second.PID, status.PID)
}

func TestListItemsAndTailAction(t *testing.T) {
	e := startDaemon(t)
	ctx := reqContext(t)

	var items []core.Item
	require.NoError(t, e.client.Call(ctx, uds.MethodListItems, nil, &items))
	require.Len(t, items, 1)
	assert.Equal(t, core.KindTail, items[0].Kind)

	req := uds.ActionRequest{ItemID: items[0].ID, Action: "start"}
	require.NoError(t, e.client.Call(ctx, uds.MethodAction, req, nil))

	var st uds.TailStatusResponse
	require.NoError(t, e.client.Call(ctx, uds.MethodTailStatus, nil, &st))
	assert.True(t, st.Running)

	err := e.client.Call(ctx, uds.MethodAction, uds.ActionRequest{ItemID: "slot:nobody:x", Action: "start"}, nil)
	assert.Error(t, err)
}
