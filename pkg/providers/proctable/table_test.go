package proctable

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// loopScript writes an echo-looping shell script whose process name is
// unique to this test binary.
func loopScript(t *testing.T, suffix string) (path, name string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not available on windows")
	}
	name = fmt.Sprintf("mkp%d%s", os.Getpid()%100000, suffix)
	path = filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nwhile :; do echo tick; sleep 0.1; done\n"), 0o755))
	return path, name
}

func startScript(t *testing.T, path string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(path)
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	return cmd
}

func TestFindByName(t *testing.T) {
	path, name := loopScript(t, "f")
	cmd := startScript(t, path)
	table := New(testLogger())
	ctx := context.Background()

	require.Eventually(t, func() bool {
		matches, err := table.Find(ctx, name)
		if err != nil {
			return false
		}
		for _, m := range matches {
			if int(m.PID) == cmd.Process.Pid {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRunningUnknownName(t *testing.T) {
	table := New(testLogger())
	running, err := table.Running(context.Background(), "no-such-binary-mk")
	require.NoError(t, err)
	assert.False(t, running)
}

func TestKillAll(t *testing.T) {
	path, name := loopScript(t, "k")
	cmd := startScript(t, path)
	table := New(testLogger())
	ctx := context.Background()

	require.Eventually(t, func() bool {
		ok, _ := table.Running(ctx, name)
		return ok
	}, 5*time.Second, 50*time.Millisecond)

	killed, err := table.KillAll(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, 1, killed)
	_ = cmd.Wait()

	running, err := table.Running(ctx, name)
	require.NoError(t, err)
	assert.False(t, running)

	// Nothing left to kill is not an error.
	killed, err = table.KillAll(ctx, name)
	require.NoError(t, err)
	assert.Zero(t, killed)
}

func TestKillExitedProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/true")
	}
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())

	table := New(testLogger())
	assert.NoError(t, table.Kill(context.Background(), int32(cmd.Process.Pid)))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "suricata", normalize("suricata.exe"))
	assert.Equal(t, "evebox", normalize("evebox"))
}
