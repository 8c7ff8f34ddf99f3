package shutdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasonish/meerkat-desktop/pkg/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeSupervisor struct {
	specs   map[core.Slot]core.LaunchSpec
	stopped bool
}

func (f *fakeSupervisor) Slots() []core.Slot {
	var out []core.Slot
	for s := range f.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f *fakeSupervisor) Spec(slot core.Slot) (core.LaunchSpec, bool) {
	spec, ok := f.specs[slot]
	return spec, ok
}

func (f *fakeSupervisor) StopTracked() { f.stopped = true }

type fakeKiller struct {
	mu     sync.Mutex
	counts map[string]int
	fail   map[string]error
	calls  []string
}

func (f *fakeKiller) KillAll(_ context.Context, name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.counts[name], f.fail[name]
}

type fakeTailer struct{ stopped bool }

func (f *fakeTailer) StopTail() { f.stopped = true }

func TestReapKillsEveryBinary(t *testing.T) {
	sup := &fakeSupervisor{specs: map[core.Slot]core.LaunchSpec{
		"detection-engine": {Executable: "/opt/suricata/bin/suricata"},
		"log-viewer":       {Executable: "/opt/evebox/evebox"},
	}}
	killer := &fakeKiller{counts: map[string]int{"suricata": 2}}
	tailer := &fakeTailer{}

	report := New(sup, killer, tailer, testLogger()).Reap(context.Background())

	assert.True(t, sup.stopped)
	assert.True(t, tailer.stopped)
	sort.Strings(killer.calls)
	assert.Equal(t, []string{"evebox", "suricata"}, killer.calls)
	assert.Equal(t, map[string]int{"evebox": 0, "suricata": 2}, report.Killed)
	assert.Empty(t, report.Errors)
}

func TestReapContinuesPastFailures(t *testing.T) {
	sup := &fakeSupervisor{specs: map[core.Slot]core.LaunchSpec{
		"a": {Executable: "/bin/one"},
		"b": {Executable: "/bin/two"},
	}}
	killer := &fakeKiller{
		counts: map[string]int{"two": 1},
		fail:   map[string]error{"one": errors.New("operation not permitted")},
	}

	report := New(sup, killer, nil, testLogger()).Reap(context.Background())

	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "one")
	assert.Equal(t, 1, report.Killed["two"])
}

func TestReapDeduplicatesNames(t *testing.T) {
	sup := &fakeSupervisor{specs: map[core.Slot]core.LaunchSpec{
		"a": {Executable: "/bin/sh", ProcessName: "suricata"},
		"b": {Executable: "/usr/bin/suricata"},
		"c": {},
	}}
	killer := &fakeKiller{}

	New(sup, killer, nil, testLogger()).Reap(context.Background())

	assert.Equal(t, []string{"suricata"}, killer.calls)
}
