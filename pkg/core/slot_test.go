package core

import (
	"errors"
	"os/exec"
	"testing"
)

func TestLaunchSpecBinaryName(t *testing.T) {
	tests := []struct {
		name string
		spec LaunchSpec
		want string
	}{
		{"from executable", LaunchSpec{Executable: "/opt/suricata/bin/suricata"}, "suricata"},
		{"explicit", LaunchSpec{Executable: "/bin/sh", ProcessName: "suricata"}, "suricata"},
		{"bare", LaunchSpec{Executable: "evebox"}, "evebox"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.spec.BinaryName(); got != tt.want {
				t.Errorf("BinaryName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLaunchSpecCommandLine(t *testing.T) {
	spec := LaunchSpec{
		Executable: "/usr/bin/evebox",
		Args:       []string{"server", "--no-tls", "/home/me/my logs/eve.json"},
	}
	want := "/usr/bin/evebox server --no-tls '/home/me/my logs/eve.json'"
	if got := spec.CommandLine(); got != want {
		t.Errorf("CommandLine() = %q, want %q", got, want)
	}
}

func TestSpawnErrorUnwrap(t *testing.T) {
	err := error(&SpawnError{Slot: "log-viewer", Path: "/x/evebox", Err: exec.ErrNotFound})
	if !errors.Is(err, exec.ErrNotFound) {
		t.Error("expected SpawnError to unwrap to exec.ErrNotFound")
	}
	var se *SpawnError
	if !errors.As(err, &se) || se.Slot != "log-viewer" {
		t.Errorf("errors.As failed: %v", err)
	}
}
