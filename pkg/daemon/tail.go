package daemon

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jasonish/meerkat-desktop/pkg/core"
	"github.com/jasonish/meerkat-desktop/pkg/tailer"
)

// tailProvider reports the tailer as a single item.
type tailProvider struct {
	ctx    context.Context
	tailer *tailer.Tailer
}

func (p *tailProvider) Name() string { return "tailer" }

func (p *tailProvider) List(_ context.Context) ([]core.Item, error) {
	st := p.tailer.Status()
	item := core.Item{
		ID:     core.ItemID(core.KindTail, "tailer", p.tailer.Path()),
		Kind:   core.KindTail,
		Name:   p.tailer.Path(),
		Status: core.StatusStopped,
		Source: map[string]string{
			"offset":  strconv.FormatInt(st.Offset, 10),
			"records": strconv.FormatUint(st.Records, 10),
			"dropped": strconv.FormatUint(st.Dropped, 10),
		},
	}
	if st.Running {
		item.Status = core.StatusRunning
	}
	return []core.Item{item}, nil
}

func (p *tailProvider) Action(_ context.Context, _ string, action string) error {
	switch action {
	case "start":
		return p.tailer.StartTail(p.ctx)
	case "stop":
		p.tailer.StopTail()
		return nil
	default:
		return fmt.Errorf("unsupported action %q for tail", action)
	}
}
