package core

import (
	"path/filepath"
	"strings"
	"time"
)

// Slot identifies one supervised service, e.g. "detection-engine".
type Slot string

// RestartPolicy defines how a supervised process should be restarted.
type RestartPolicy string

const (
	RestartAlways    RestartPolicy = "always"
	RestartOnFailure RestartPolicy = "on-failure"
	RestartNever     RestartPolicy = "never"
)

// LaunchSpec describes how to spawn the process for a slot.
type LaunchSpec struct {
	Executable string
	Dir        string
	Args       []string
	Env        map[string]string

	// ProcessName is the binary name used for status probes and sweeps.
	// Defaults to the base name of Executable. Set it when Executable is a
	// wrapper (a shell) that launches the real binary.
	ProcessName string

	// StripANSI removes terminal color sequences from output lines.
	StripANSI bool

	// Requires lists files that must exist before the process is spawned.
	Requires []string

	// Ensure maps file paths to default contents written when missing.
	Ensure map[string]string

	// Dirs are created before the process is spawned.
	Dirs []string

	Restart     RestartPolicy
	StopTimeout time.Duration
}

// BinaryName returns the name the process shows up under in the OS process
// table.
func (s LaunchSpec) BinaryName() string {
	if s.ProcessName != "" {
		return s.ProcessName
	}
	return filepath.Base(s.Executable)
}

// CommandLine renders the launch spec as a single shell-like line for display.
func (s LaunchSpec) CommandLine() string {
	parts := make([]string, 0, len(s.Args)+1)
	parts = append(parts, quoteArg(s.Executable))
	for _, a := range s.Args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

func quoteArg(a string) string {
	if a == "" || strings.ContainsAny(a, " \t\"'") {
		return "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return a
}
