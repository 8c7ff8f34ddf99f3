package daemon

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/jasonish/meerkat-desktop/pkg/core"
)

// PollLoop refreshes all providers every interval and emits delta events.
type PollLoop struct {
	daemon   *Daemon
	sink     core.Sink
	interval time.Duration
	logger   *slog.Logger
}

// NewPollLoop creates a poll loop for the given daemon. Deltas go to sink.
func NewPollLoop(d *Daemon, sink core.Sink, interval time.Duration, logger *slog.Logger) *PollLoop {
	return &PollLoop{daemon: d, sink: sink, interval: interval, logger: logger}
}

// Run starts the poll loop. Blocks until ctx is cancelled.
func (pl *PollLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(pl.interval)
	defer ticker.Stop()

	pl.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pl.tick(ctx)
		}
	}
}

func (pl *PollLoop) tick(ctx context.Context) {
	list, _ := pl.daemon.Items(ctx)
	newItems := make(map[string]core.Item, len(list))
	for _, item := range list {
		newItems[item.ID] = item
	}

	pl.daemon.mu.Lock()
	oldItems := pl.daemon.items
	pl.daemon.items = newItems
	pl.daemon.mu.Unlock()

	delta := computeDelta(oldItems, newItems)
	if delta.HasChanges() && pl.sink != nil {
		if err := pl.sink.Emit(core.TopicItemsDelta, delta); err != nil {
			pl.logger.Debug("items delta dropped", "err", err)
		}
	}
}

// Delta represents changes between poll cycles.
type Delta struct {
	Added   []core.Item `json:"added,omitempty"`
	Updated []core.Item `json:"updated,omitempty"`
	Removed []string    `json:"removed,omitempty"`
}

// HasChanges returns true if the delta contains any changes.
func (d Delta) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Updated) > 0 || len(d.Removed) > 0
}

func computeDelta(old, new map[string]core.Item) Delta {
	var d Delta

	for id, item := range new {
		prev, existed := old[id]
		if !existed {
			d.Added = append(d.Added, item)
		} else if itemChanged(prev, item) {
			d.Updated = append(d.Updated, item)
		}
	}

	for id := range old {
		if _, exists := new[id]; !exists {
			d.Removed = append(d.Removed, id)
		}
	}

	slices.SortFunc(d.Added, byID)
	slices.SortFunc(d.Updated, byID)
	slices.Sort(d.Removed)
	return d
}

func byID(a, b core.Item) int {
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// itemChanged ignores uptime, which moves on every poll.
func itemChanged(a, b core.Item) bool {
	return a.Status != b.Status ||
		a.Tracked != b.Tracked ||
		!slices.Equal(a.PIDs, b.PIDs) ||
		a.Source["run_id"] != b.Source["run_id"] ||
		a.Source["records"] != b.Source["records"]
}
