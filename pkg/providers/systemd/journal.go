package systemd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/jasonish/meerkat-desktop/pkg/core"
)

// journalCommand builds the journalctl invocation for one unit.
var journalCommand = func(ctx context.Context, unit string) *exec.Cmd {
	return exec.CommandContext(ctx, "journalctl", "-f", "-u", unit, "-o", "cat", "-n", "0")
}

// FollowJournal forwards new journal lines of unit to sink as stdout output
// of slot. It blocks until ctx is done or journalctl exits.
func FollowJournal(ctx context.Context, unit string, slot core.Slot, sink core.Sink, logger *slog.Logger) error {
	cmd := journalCommand(ctx, unit)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("journalctl pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("journalctl start: %w", err)
	}
	logger.Info("following journal", "unit", unit, "slot", slot)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := core.OutputLine{
			Slot:     slot,
			Type:     core.ChannelStdout,
			Line:     scanner.Text(),
			TsUnixMs: time.Now().UnixMilli(),
		}
		if err := sink.Emit(core.TopicOutput, line); err != nil {
			logger.Debug("journal line dropped", "unit", unit, "err", err)
		}
	}

	err = cmd.Wait()
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("journalctl %s: %w", unit, err)
	}
	return nil
}
