// Package shutdown reaps every process meerkat may have started before the
// application exits.
package shutdown

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jasonish/meerkat-desktop/pkg/core"
)

// Supervisor is the part of the process supervisor the coordinator needs.
type Supervisor interface {
	Slots() []core.Slot
	Spec(slot core.Slot) (core.LaunchSpec, bool)
	StopTracked()
}

// Killer kills processes by binary name.
type Killer interface {
	KillAll(ctx context.Context, name string) (int, error)
}

// Tailer is stopped first so no new records are produced while reaping.
type Tailer interface {
	StopTail()
}

// Report summarizes one Reap.
type Report struct {
	Killed map[string]int `json:"killed"`
	Errors []string       `json:"errors,omitempty"`
}

// Coordinator force-terminates supervised and orphaned processes.
type Coordinator struct {
	sup    Supervisor
	killer Killer
	tailer Tailer
	logger *slog.Logger
}

// New creates a coordinator. tailer may be nil.
func New(sup Supervisor, killer Killer, tailer Tailer, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{sup: sup, killer: killer, tailer: tailer, logger: logger}
}

// Reap stops the tailer and all tracked processes, then kills every process
// running under any slot's binary name, tracked or not. Kill failures are
// logged and collected in the report; Reap always returns. Slots can be
// started again afterwards.
func (c *Coordinator) Reap(ctx context.Context) Report {
	if c.tailer != nil {
		c.tailer.StopTail()
	}
	c.sup.StopTracked()

	report := Report{Killed: make(map[string]int)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range c.binaryNames() {
		g.Go(func() error {
			n, err := c.killer.KillAll(gctx, name)
			mu.Lock()
			defer mu.Unlock()
			report.Killed[name] = n
			if err != nil {
				c.logger.Warn("reap", "binary", name, "killed", n, "err", err)
				report.Errors = append(report.Errors, name+": "+err.Error())
				// keep reaping the other names
				return nil
			}
			if n > 0 {
				c.logger.Info("reaped processes", "binary", name, "count", n)
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(report.Errors)

	c.logger.Info("reap complete", "binaries", len(report.Killed), "errors", len(report.Errors))
	return report
}

// binaryNames returns the distinct binary names of all registered slots.
func (c *Coordinator) binaryNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, slot := range c.sup.Slots() {
		spec, ok := c.sup.Spec(slot)
		if !ok {
			continue
		}
		name := spec.BinaryName()
		if name == "" || name == "." || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
