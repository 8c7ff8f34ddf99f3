// Package proctable finds and terminates processes by binary name.
//
// Lookups go through the OS process table rather than any tracked handle:
// a binary may have been started by a previous session, by a shell
// wrapper, or by someone else entirely.
package proctable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v4/process"
)

// Table queries the process table.
type Table struct {
	logger *slog.Logger
	self   int32
}

// New creates a process table view.
func New(logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{logger: logger, self: int32(os.Getpid())}
}

// Match is a process whose name matched a lookup.
type Match struct {
	PID       int32
	Name      string
	CreatedMs int64
}

// Find returns every process whose binary name matches name.
func (t *Table) Find(ctx context.Context, name string) ([]Match, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	want := normalize(name)
	var out []Match
	for _, p := range procs {
		if p.Pid == t.self {
			continue
		}
		pname, err := p.NameWithContext(ctx)
		if err != nil {
			// exited between listing and lookup, or not ours to inspect
			continue
		}
		if normalize(pname) != want {
			continue
		}
		if zombie(ctx, p) {
			continue
		}
		created, _ := p.CreateTimeWithContext(ctx)
		out = append(out, Match{PID: p.Pid, Name: pname, CreatedMs: created})
	}
	return out, nil
}

// Running reports whether at least one process named name exists.
func (t *Table) Running(ctx context.Context, name string) (bool, error) {
	matches, err := t.Find(ctx, name)
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// KillAll force-terminates every process named name and returns how many
// were killed. Processes that are already gone do not count as failures and
// finding nothing is not an error.
func (t *Table) KillAll(ctx context.Context, name string) (int, error) {
	matches, err := t.Find(ctx, name)
	if err != nil {
		return 0, err
	}
	killed := 0
	var errs []error
	for _, m := range matches {
		if err := t.Kill(ctx, m.PID); err != nil {
			errs = append(errs, err)
			continue
		}
		killed++
	}
	return killed, errors.Join(errs...)
}

// Kill force-terminates a single process.
func (t *Table) Kill(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		if Gone(err) {
			return nil
		}
		return fmt.Errorf("find pid %d: %w", pid, err)
	}
	if err := p.KillWithContext(ctx); err != nil && !Gone(err) {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	t.logger.Debug("killed process", "pid", pid)
	return nil
}

// Gone reports whether err means the target process no longer exists.
func Gone(err error) bool {
	return errors.Is(err, os.ErrProcessDone) ||
		errors.Is(err, syscall.ESRCH) ||
		errors.Is(err, process.ErrorProcessNotRunning)
}

// zombie reports whether p has exited but not been reaped yet; such an
// entry is not a running service.
func zombie(ctx context.Context, p *process.Process) bool {
	st, err := p.StatusWithContext(ctx)
	if err != nil {
		return false
	}
	for _, s := range st {
		if s == process.Zombie {
			return true
		}
	}
	return false
}

func normalize(name string) string {
	if runtime.GOOS == "windows" {
		name = strings.ToLower(name)
	}
	return strings.TrimSuffix(name, ".exe")
}
