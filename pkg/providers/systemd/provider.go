package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"

	"github.com/jasonish/meerkat-desktop/pkg/core"
)

// Provider reports and controls system-wide units of the same tools, e.g. a
// packaged suricata.service that runs outside the supervisor.
type Provider struct {
	units  map[string]core.Slot // unit name -> slot it competes with
	logger *slog.Logger
}

// New creates a unit provider for the given unit names.
func New(units map[string]core.Slot, logger *slog.Logger) *Provider {
	return &Provider{units: units, logger: logger}
}

func (p *Provider) Name() string { return "systemd" }

func (p *Provider) names() []string {
	names := make([]string, 0, len(p.units))
	for u := range p.units {
		names = append(names, u)
	}
	sort.Strings(names)
	return names
}

func (p *Provider) List(ctx context.Context) ([]core.Item, error) {
	conn, err := dbus.NewWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("dbus connect: %w", err)
	}
	defer conn.Close()

	allUnits, err := conn.ListUnitsByNamesContext(ctx, p.names())
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}

	items := make([]core.Item, 0, len(allUnits))
	for _, u := range allUnits {
		if u.LoadState == "not-found" {
			continue
		}
		item := core.Item{
			ID:     core.ItemID(core.KindUnit, "systemd", u.Name),
			Kind:   core.KindUnit,
			Name:   strings.TrimSuffix(u.Name, ".service"),
			Status: mapStatus(u.ActiveState),
			Source: map[string]string{
				"unit":         u.Name,
				"slot":         string(p.units[u.Name]),
				"active_state": u.ActiveState,
				"sub_state":    u.SubState,
			},
		}
		if u.ActiveState == "active" {
			props, err := conn.GetUnitTypePropertiesContext(ctx, u.Name, "Service")
			if err != nil {
				p.logger.Debug("unit properties", "unit", u.Name, "err", err)
			} else if pid, ok := props["MainPID"].(uint32); ok && pid > 0 {
				item.PIDs = []int{int(pid)}
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func (p *Provider) Action(ctx context.Context, itemID string, action string) error {
	_, _, nativeID, err := core.ParseItemID(itemID)
	if err != nil {
		return err
	}
	if _, ok := p.units[nativeID]; !ok {
		return fmt.Errorf("unit %s is not configured", nativeID)
	}

	conn, err := dbus.NewWithContext(ctx)
	if err != nil {
		return fmt.Errorf("dbus connect: %w", err)
	}
	defer conn.Close()

	ch := make(chan string, 1)
	switch action {
	case "start":
		_, err = conn.StartUnitContext(ctx, nativeID, "replace", ch)
	case "stop":
		_, err = conn.StopUnitContext(ctx, nativeID, "replace", ch)
	case "restart":
		_, err = conn.RestartUnitContext(ctx, nativeID, "replace", ch)
	default:
		return fmt.Errorf("unsupported action %q for unit", action)
	}
	if err != nil {
		return fmt.Errorf("systemd %s %s: %w", action, nativeID, err)
	}

	var result string
	select {
	case result = <-ch:
	case <-ctx.Done():
		return ctx.Err()
	}
	if result != "done" {
		return fmt.Errorf("systemd %s %s: job result %q", action, nativeID, result)
	}
	return nil
}

func mapStatus(active string) core.Status {
	switch active {
	case "active", "reloading":
		return core.StatusRunning
	case "activating":
		return core.StatusRestarting
	case "inactive", "deactivating":
		return core.StatusStopped
	case "failed":
		return core.StatusFailed
	default:
		return core.StatusUnknown
	}
}
