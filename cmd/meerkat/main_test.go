package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/jasonish/meerkat-desktop/pkg/core"
	"github.com/jasonish/meerkat-desktop/pkg/transport/uds"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func fakeDaemon(t *testing.T) string {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "meerkat.sock")
	srv := uds.NewServer(sock, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv.Handle(uds.MethodPing, func(context.Context, uds.Message) (any, error) {
		return uds.PingResponse{Pong: true, Version: "test"}, nil
	})
	srv.Handle(uds.MethodListItems, func(context.Context, uds.Message) (any, error) {
		return []core.Item{{
			ID:     "slot:supervisor:detection-engine",
			Kind:   core.KindSlot,
			Name:   "detection-engine",
			Status: core.StatusRunning,
			PIDs:   []int{4242},
		}}, nil
	})
	srv.Handle(uds.MethodStatus, func(_ context.Context, msg uds.Message) (any, error) {
		var req uds.SlotRequest
		if err := msg.UnmarshalData(&req); err != nil {
			return nil, err
		}
		return uds.StatusResponse{Slot: req.Slot, Running: true, Tracked: true, PID: 4242}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()
	select {
	case <-srv.Ready():
	case err := <-errCh:
		t.Fatalf("server start: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not become ready")
	}
	t.Cleanup(func() {
		cancel()
		srv.Shutdown()
		<-errCh
	})
	return sock
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "meerkat ") {
		t.Errorf("unexpected version output: %q", out)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meerkat.yaml")

	out, err := execute(t, "--config", path, "config", "init", "suricata", "--home", dir, "-i", "eth0")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "detection-engine") || !strings.Contains(out, "log-viewer") {
		t.Errorf("init output missing slots: %q", out)
	}

	out, err = execute(t, "config", "validate", path)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "valid (2 slots)") {
		t.Errorf("unexpected validate output: %q", out)
	}

	// a second init without --force refuses to overwrite
	if _, err := execute(t, "--config", path, "config", "init", "--home", dir, "-i", "eth0"); err == nil {
		t.Error("expected init to refuse an existing file")
	}
}

func TestConfigInitUnknownPreset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meerkat.yaml")
	if _, err := execute(t, "--config", path, "config", "init", "zeek", "-i", "eth0"); err == nil {
		t.Error("expected unknown preset error")
	}
}

func TestConfigValidateInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("version: 2\nslots: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "config", "validate", path)
	if err != errInvalidConfig {
		t.Fatalf("expected errInvalidConfig, got %v", err)
	}
	if !strings.Contains(out, "error(s)") {
		t.Errorf("missing error summary: %q", out)
	}
}

func TestPingCommand(t *testing.T) {
	sock := fakeDaemon(t)
	out, err := execute(t, "--socket", sock, "ping")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "pong") || !strings.Contains(out, "test") {
		t.Errorf("unexpected ping output: %q", out)
	}
}

func TestStatusCommand(t *testing.T) {
	color.NoColor = true
	sock := fakeDaemon(t)

	out, err := execute(t, "--socket", sock, "status")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "detection-engine") || !strings.Contains(out, "4242") {
		t.Errorf("unexpected status output: %q", out)
	}

	out, err = execute(t, "--socket", sock, "status", "log-viewer")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "log-viewer: running (pid 4242)") {
		t.Errorf("unexpected slot status output: %q", out)
	}
}

func TestPingNoDaemon(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "missing.sock")
	if _, err := execute(t, "--socket", sock, "ping"); err == nil {
		t.Error("expected an error without a daemon")
	}
}

func TestFormatOutput(t *testing.T) {
	color.NoColor = true
	got := formatOutput(core.OutputLine{Slot: "log-viewer", Type: core.ChannelStderr, Line: "boom"})
	if got != "[log-viewer] boom" {
		t.Errorf("formatOutput = %q", got)
	}
}
