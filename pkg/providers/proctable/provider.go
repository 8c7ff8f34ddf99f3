package proctable

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jasonish/meerkat-desktop/pkg/core"
)

// Provider reports every OS process running under one of the watched binary
// names, whether or not the supervisor tracks it.
type Provider struct {
	table  *Table
	names  map[string]core.Slot
	logger *slog.Logger
}

// NewProvider creates a provider watching the given binary names, keyed by
// binary name with the owning slot as value.
func NewProvider(table *Table, names map[string]core.Slot, logger *slog.Logger) *Provider {
	return &Provider{table: table, names: names, logger: logger}
}

func (p *Provider) Name() string { return "proctable" }

func (p *Provider) List(ctx context.Context) ([]core.Item, error) {
	var items []core.Item
	for name, slot := range p.names {
		matches, err := p.table.Find(ctx, name)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			item := core.Item{
				ID:     core.ItemID(core.KindProcess, "proctable", strconv.Itoa(int(m.PID))),
				Kind:   core.KindProcess,
				Name:   m.Name,
				Status: core.StatusRunning,
				PIDs:   []int{int(m.PID)},
				Source: map[string]string{"slot": string(slot)},
			}
			if m.CreatedMs > 0 {
				item.UptimeSec = uint64(time.Since(time.UnixMilli(m.CreatedMs)).Seconds())
			}
			items = append(items, item)
		}
	}
	return items, nil
}

func (p *Provider) Action(ctx context.Context, itemID string, action string) error {
	_, _, pidStr, err := core.ParseItemID(itemID)
	if err != nil {
		return err
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return fmt.Errorf("invalid PID: %s", pidStr)
	}

	switch action {
	case "kill", "stop":
		return p.table.Kill(ctx, int32(pid))
	default:
		return fmt.Errorf("unsupported action %q for process", action)
	}
}
