package exec

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jasonish/meerkat-desktop/pkg/core"
	"github.com/jasonish/meerkat-desktop/pkg/supervisor"
)

// Provider exposes supervised slots as items.
type Provider struct {
	supervisor *supervisor.Supervisor
	logger     *slog.Logger
}

// New creates a slot provider backed by the given supervisor.
func New(sup *supervisor.Supervisor, logger *slog.Logger) *Provider {
	return &Provider{supervisor: sup, logger: logger}
}

func (p *Provider) Name() string { return "supervisor" }

// List reports one item per registered slot. A slot counts as running when
// its binary is in the process table, even without a tracked handle.
func (p *Provider) List(ctx context.Context) ([]core.Item, error) {
	slots := p.supervisor.Slots()
	items := make([]core.Item, 0, len(slots))
	for _, slot := range slots {
		spec, _ := p.supervisor.Spec(slot)
		item := core.Item{
			ID:     core.ItemID(core.KindSlot, "supervisor", string(slot)),
			Kind:   core.KindSlot,
			Name:   string(slot),
			Status: core.StatusStopped,
			Source: map[string]string{
				"binary":  spec.BinaryName(),
				"command": spec.CommandLine(),
			},
		}

		if h, ok := p.supervisor.Handle(slot); ok {
			item.Tracked = true
			item.Status = core.StatusRunning
			item.PIDs = []int{h.PID}
			item.UptimeSec = uint64(time.Since(h.StartedAt).Seconds())
			item.Source["run_id"] = h.RunID
		} else {
			running, err := p.supervisor.Status(ctx, slot)
			switch {
			case err != nil:
				p.logger.Debug("slot status", "slot", slot, "err", err)
				item.Status = core.StatusUnknown
			case running:
				item.Status = core.StatusRunning
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func (p *Provider) Action(ctx context.Context, itemID string, action string) error {
	_, _, name, err := core.ParseItemID(itemID)
	if err != nil {
		return err
	}
	slot := core.Slot(name)

	switch action {
	case "start":
		_, err = p.supervisor.StartRegistered(ctx, slot)
	case "stop":
		err = p.supervisor.Stop(ctx, slot)
	case "restart":
		_, err = p.supervisor.Restart(ctx, slot)
	default:
		return fmt.Errorf("unsupported action %q for slot", action)
	}
	return err
}
