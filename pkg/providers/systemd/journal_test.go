package systemd

import (
	"context"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasonish/meerkat-desktop/pkg/core"
)

type lineSink struct {
	mu    sync.Mutex
	lines []core.OutputLine
}

func (s *lineSink) Emit(_ string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, payload.(core.OutputLine))
	return nil
}

func withJournalCommand(t *testing.T, script string) {
	t.Helper()
	prev := journalCommand
	journalCommand = func(ctx context.Context, _ string) *exec.Cmd {
		return exec.CommandContext(ctx, "/bin/sh", "-c", script)
	}
	t.Cleanup(func() { journalCommand = prev })
}

func TestFollowJournalForwardsLines(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	withJournalCommand(t, "echo first; echo second")

	sink := &lineSink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, FollowJournal(context.Background(), "suricata.service", "detection-engine", sink, logger))

	require.Len(t, sink.lines, 2)
	assert.Equal(t, "first", sink.lines[0].Line)
	assert.Equal(t, core.Slot("detection-engine"), sink.lines[1].Slot)
	assert.Equal(t, core.ChannelStdout, sink.lines[1].Type)
}

func TestFollowJournalStopsOnCancel(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	withJournalCommand(t, "exec sleep 30")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- FollowJournal(ctx, "suricata.service", "detection-engine", &lineSink{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("FollowJournal did not return")
	}
}

func TestFollowJournalReportsFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	withJournalCommand(t, "exit 3")
	err := FollowJournal(context.Background(), "x.service", "x", &lineSink{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
