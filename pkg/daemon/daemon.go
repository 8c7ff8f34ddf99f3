package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jasonish/meerkat-desktop/internal/buildinfo"
	"github.com/jasonish/meerkat-desktop/pkg/core"
	"github.com/jasonish/meerkat-desktop/pkg/shutdown"
	"github.com/jasonish/meerkat-desktop/pkg/supervisor"
	"github.com/jasonish/meerkat-desktop/pkg/tailer"
	"github.com/jasonish/meerkat-desktop/pkg/transport/uds"
)

// Daemon is the meerkatd process: it owns the supervisor, the tailer and the
// shutdown coordinator and exposes them over the control socket.
type Daemon struct {
	ctx        context.Context
	server     *uds.Server
	supervisor *supervisor.Supervisor
	tailer     *tailer.Tailer
	reaper     *shutdown.Coordinator
	providers  []core.Provider
	items      map[string]core.Item
	mu         sync.RWMutex
	logger     *slog.Logger
}

// New creates a daemon serving on srv. The tail loop started through the
// socket runs until ctx is done.
func New(ctx context.Context, srv *uds.Server, sup *supervisor.Supervisor, tl *tailer.Tailer, reaper *shutdown.Coordinator, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Daemon{
		ctx:        ctx,
		server:     srv,
		supervisor: sup,
		tailer:     tl,
		reaper:     reaper,
		items:      make(map[string]core.Item),
		logger:     logger,
	}
	if tl != nil {
		d.providers = append(d.providers, &tailProvider{ctx: ctx, tailer: tl})
	}
	d.registerHandlers()
	return d
}

// AddProvider registers a provider with the daemon.
func (d *Daemon) AddProvider(p core.Provider) {
	d.providers = append(d.providers, p)
}

// Run serves the control socket and blocks until the context is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	return d.server.Start(ctx)
}

// Shutdown closes the socket and every client connection.
func (d *Daemon) Shutdown() {
	d.server.Shutdown()
}

// Server returns the underlying UDS server.
func (d *Daemon) Server() *uds.Server {
	return d.server
}

// Items queries every provider directly and returns the merged list sorted
// by ID. Provider errors are logged and skipped.
func (d *Daemon) Items(ctx context.Context) ([]core.Item, error) {
	var items []core.Item
	for _, p := range d.providers {
		list, err := p.List(ctx)
		if err != nil {
			d.logger.Error("provider list error", "provider", p.Name(), "err", err)
			continue
		}
		items = append(items, list...)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (d *Daemon) registerHandlers() {
	d.server.Handle(uds.MethodPing, d.handlePing)
	d.server.Handle(uds.MethodListItems, d.handleListItems)
	d.server.Handle(uds.MethodAction, d.handleAction)
	d.server.Handle(uds.MethodStart, d.handleStart)
	d.server.Handle(uds.MethodStop, d.handleStop)
	d.server.Handle(uds.MethodStatus, d.handleStatus)
	d.server.Handle(uds.MethodTailStart, d.handleTailStart)
	d.server.Handle(uds.MethodTailStop, d.handleTailStop)
	d.server.Handle(uds.MethodTailStatus, d.handleTailStatus)
	d.server.Handle(uds.MethodReap, d.handleReap)
}

func (d *Daemon) handlePing(_ context.Context, _ uds.Message) (any, error) {
	return uds.PingResponse{Pong: true, Version: buildinfo.Version}, nil
}

func (d *Daemon) handleListItems(ctx context.Context, _ uds.Message) (any, error) {
	d.mu.RLock()
	items := make([]core.Item, 0, len(d.items))
	for _, item := range d.items {
		items = append(items, item)
	}
	d.mu.RUnlock()

	// before the first poll the snapshot is empty
	if len(items) == 0 {
		return d.Items(ctx)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (d *Daemon) handleAction(ctx context.Context, msg uds.Message) (any, error) {
	var req uds.ActionRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, err
	}

	_, provider, _, err := core.ParseItemID(req.ItemID)
	if err != nil {
		return nil, err
	}

	for _, p := range d.providers {
		if p.Name() == provider {
			d.logger.InfoContext(ctx, "item action", "item", req.ItemID, "action", req.Action)
			if err := p.Action(ctx, req.ItemID, req.Action); err != nil {
				return nil, err
			}
			return map[string]bool{"ok": true}, nil
		}
	}

	return nil, fmt.Errorf("no provider %q", provider)
}

func slotRequest(msg uds.Message) (core.Slot, error) {
	var req uds.SlotRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return "", err
	}
	if req.Slot == "" {
		return "", fmt.Errorf("slot is required")
	}
	return core.Slot(req.Slot), nil
}

func (d *Daemon) handleStart(ctx context.Context, msg uds.Message) (any, error) {
	slot, err := slotRequest(msg)
	if err != nil {
		return nil, err
	}
	h, err := d.supervisor.StartRegistered(ctx, slot)
	if err != nil {
		return nil, err
	}
	return uds.StartResponse{
		Slot:      string(h.Slot),
		PID:       h.PID,
		RunID:     h.RunID,
		StartedAt: h.StartedAt.UnixMilli(),
	}, nil
}

func (d *Daemon) handleStop(ctx context.Context, msg uds.Message) (any, error) {
	slot, err := slotRequest(msg)
	if err != nil {
		return nil, err
	}
	if err := d.supervisor.Stop(ctx, slot); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (d *Daemon) handleStatus(ctx context.Context, msg uds.Message) (any, error) {
	slot, err := slotRequest(msg)
	if err != nil {
		return nil, err
	}
	if _, ok := d.supervisor.Spec(slot); !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownSlot, slot)
	}
	running, err := d.supervisor.Status(ctx, slot)
	if err != nil {
		return nil, err
	}
	resp := uds.StatusResponse{Slot: string(slot), Running: running}
	if h, ok := d.supervisor.Handle(slot); ok {
		resp.Tracked = true
		resp.PID = h.PID
	}
	return resp, nil
}

func (d *Daemon) handleTailStart(_ context.Context, _ uds.Message) (any, error) {
	if d.tailer == nil {
		return nil, fmt.Errorf("tailing is not configured")
	}
	if err := d.tailer.StartTail(d.ctx); err != nil {
		return nil, err
	}
	return tailStatus(d.tailer.Status()), nil
}

func (d *Daemon) handleTailStop(_ context.Context, _ uds.Message) (any, error) {
	if d.tailer == nil {
		return nil, fmt.Errorf("tailing is not configured")
	}
	d.tailer.StopTail()
	return tailStatus(d.tailer.Status()), nil
}

func (d *Daemon) handleTailStatus(_ context.Context, _ uds.Message) (any, error) {
	if d.tailer == nil {
		return uds.TailStatusResponse{}, nil
	}
	return tailStatus(d.tailer.Status()), nil
}

func (d *Daemon) handleReap(ctx context.Context, _ uds.Message) (any, error) {
	d.logger.InfoContext(ctx, "reap requested")
	report := d.reaper.Reap(ctx)
	return uds.ReapResponse{Killed: report.Killed, Errors: report.Errors}, nil
}

func tailStatus(st tailer.Status) uds.TailStatusResponse {
	return uds.TailStatusResponse{
		Running: st.Running,
		Path:    st.Path,
		Offset:  st.Offset,
		Records: st.Records,
		Dropped: st.Dropped,
	}
}
