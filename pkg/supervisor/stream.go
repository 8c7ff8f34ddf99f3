package supervisor

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jasonish/meerkat-desktop/pkg/core"
	"github.com/jasonish/meerkat-desktop/pkg/metrics"
)

const maxLineBytes = 1024 * 1024

var ansiColor = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// StripANSI removes terminal color sequences (CSI ... m) from s.
func StripANSI(s string) string {
	if !strings.Contains(s, "\x1b[") {
		return s
	}
	return ansiColor.ReplaceAllString(s, "")
}

// OutputStreamer forwards the output of one process to a sink, one tagged
// line at a time.
type OutputStreamer struct {
	Slot      core.Slot
	Sink      core.Sink
	StripANSI bool
	Logger    *slog.Logger
}

// Attach starts one reader goroutine per stream. The returned channel is
// closed once both streams reached EOF.
func (s *OutputStreamer) Attach(stdout, stderr io.Reader) <-chan struct{} {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.Drain(stdout, core.ChannelStdout)
	}()
	go func() {
		defer wg.Done()
		s.Drain(stderr, core.ChannelStderr)
	}()
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// Drain reads r line by line until EOF and forwards each line tagged with ch.
// A line longer than maxLineBytes is dropped; the lines after it still flow.
func (s *OutputStreamer) Drain(r io.Reader, ch core.Channel) {
	dropped, err := scanLines(r, func(line string) {
		if s.StripANSI {
			line = StripANSI(line)
		}
		s.Forward(ch, line)
	})
	if dropped > 0 {
		metrics.OverlongLines.WithLabelValues(string(s.Slot)).Add(float64(dropped))
		s.logger().Warn("dropped overlong output lines", "slot", s.Slot, "stream", ch, "count", dropped, "limit", maxLineBytes)
	}
	if err != nil {
		s.logger().Debug("output stream ended", "slot", s.Slot, "stream", ch, "err", err)
		// keep the pipe drained so the child never blocks on a full buffer
		_, _ = io.Copy(io.Discard, r)
	}
}

// Forward emits a single line. Sink failures are counted and dropped.
func (s *OutputStreamer) Forward(ch core.Channel, line string) {
	out := core.OutputLine{
		Slot:     s.Slot,
		Type:     ch,
		Line:     line,
		TsUnixMs: time.Now().UnixMilli(),
	}
	if err := s.Sink.Emit(core.TopicOutput, out); err != nil {
		metrics.SinkDrops.WithLabelValues(core.TopicOutput).Inc()
		s.logger().Debug("output line dropped", "slot", s.Slot, "err", err)
		return
	}
	metrics.OutputLines.WithLabelValues(string(s.Slot), string(ch)).Inc()
}

// Info emits a line produced by the supervisor rather than the process.
func (s *OutputStreamer) Info(line string) {
	s.Forward(core.ChannelInfo, line)
}

func (s *OutputStreamer) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// scanLines reads lines from an io.Reader and calls fn for each. Lines over
// maxLineBytes are skipped and counted.
func scanLines(r io.Reader, fn func(string)) (int, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	var (
		buf      []byte
		overlong bool
		dropped  int
	)
	for {
		frag, more, err := br.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			return dropped, err
		}
		if !overlong {
			if len(buf)+len(frag) > maxLineBytes {
				overlong = true
				buf = buf[:0]
			} else {
				buf = append(buf, frag...)
			}
		}
		if more {
			continue
		}
		if overlong {
			dropped++
			overlong = false
		} else {
			fn(strings.TrimRight(string(buf), "\r"))
		}
		buf = buf[:0]
	}
}
