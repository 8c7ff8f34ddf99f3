package systemd

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/jasonish/meerkat-desktop/pkg/core"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		active string
		want   core.Status
	}{
		{"active", core.StatusRunning},
		{"reloading", core.StatusRunning},
		{"activating", core.StatusRestarting},
		{"inactive", core.StatusStopped},
		{"deactivating", core.StatusStopped},
		{"failed", core.StatusFailed},
		{"maintenance", core.StatusUnknown},
	}
	for _, tt := range tests {
		if got := mapStatus(tt.active); got != tt.want {
			t.Errorf("mapStatus(%q) = %q, want %q", tt.active, got, tt.want)
		}
	}
}

func TestNamesSorted(t *testing.T) {
	p := New(map[string]core.Slot{
		"suricata.service": "detection-engine",
		"evebox.service":   "log-viewer",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	got := p.names()
	if len(got) != 2 || got[0] != "evebox.service" || got[1] != "suricata.service" {
		t.Errorf("names() = %v", got)
	}
}

func TestActionUnconfiguredUnit(t *testing.T) {
	p := New(map[string]core.Slot{"suricata.service": "detection-engine"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := p.Action(context.Background(), "unit:systemd:sshd.service", "stop"); err == nil {
		t.Error("expected error for unit that is not configured")
	}
}
