// Package tailer follows an append-only file of newline-delimited JSON
// records and forwards every decoded record to a sink.
package tailer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jasonish/meerkat-desktop/pkg/core"
	"github.com/jasonish/meerkat-desktop/pkg/metrics"
)

// DefaultInterval is the poll interval used when Options.Interval is zero.
const DefaultInterval = 500 * time.Millisecond

// Options configures a Tailer.
type Options struct {
	Path     string
	Interval time.Duration
	// Watch adds an fsnotify wake-up on top of polling.
	Watch bool
}

// Status is a snapshot of the tailer state.
type Status struct {
	Running bool   `json:"running"`
	Path    string `json:"path"`
	Offset  int64  `json:"offset"`
	Records uint64 `json:"records"`
	Dropped uint64 `json:"dropped"`
}

// Tailer reads new lines from a single file, one session at a time.
//
// A session starts with StartTail at offset zero and ends when StopTail
// clears the running flag; the loop notices at its next cycle.
type Tailer struct {
	opts   Options
	sink   core.Sink
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	session uint64
	done    chan struct{}

	offset  atomic.Int64
	records atomic.Uint64
	dropped atomic.Uint64
}

// New creates an idle tailer.
func New(opts Options, sink core.Sink, logger *slog.Logger) *Tailer {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tailer{opts: opts, sink: sink, logger: logger}
}

// Path returns the tailed file.
func (t *Tailer) Path() string { return t.opts.Path }

// StartTail begins a new session from offset zero. A missing file is not an
// error; the loop picks it up once it appears. Calling StartTail while a
// session is running replaces that session. The loop also ends when ctx is
// cancelled.
func (t *Tailer) StartTail(ctx context.Context) error {
	if t.opts.Path == "" {
		return errors.New("tail: empty path")
	}

	t.mu.Lock()
	t.running = true
	t.session++
	id := t.session
	done := make(chan struct{})
	t.done = done
	t.mu.Unlock()

	t.offset.Store(0)
	t.records.Store(0)
	t.dropped.Store(0)

	t.logger.Info("tail started", "path", t.opts.Path, "interval", t.opts.Interval, "watch", t.opts.Watch)
	go t.loop(ctx, id, done)
	return nil
}

// StopTail clears the running flag. It does not wait for the loop; use Wait
// for that. Stopping an idle tailer is a no-op.
func (t *Tailer) StopTail() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.logger.Info("tail stopping", "path", t.opts.Path)
	}
	t.running = false
}

// Wait blocks until the current session's loop has exited or ctx is done.
func (t *Tailer) Wait(ctx context.Context) error {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of the current session.
func (t *Tailer) Status() Status {
	t.mu.Lock()
	running := t.running
	t.mu.Unlock()
	return Status{
		Running: running,
		Path:    t.opts.Path,
		Offset:  t.offset.Load(),
		Records: t.records.Load(),
		Dropped: t.dropped.Load(),
	}
}

// active reports whether session id should keep running.
func (t *Tailer) active(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running && t.session == id
}

func (t *Tailer) loop(ctx context.Context, id uint64, done chan struct{}) {
	defer close(done)

	var wake <-chan struct{}
	if t.opts.Watch {
		w, err := newWatcher(t.opts.Path, t.logger)
		if err != nil {
			t.logger.Warn("file watch unavailable, polling only", "path", t.opts.Path, "err", err)
		} else {
			defer w.Close()
			wake = w.Wake()
		}
	}

	cur := &cursor{path: t.opts.Path}
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			t.finish(id)
			return
		case <-timer.C:
		case <-wake:
			timer.Stop()
		}

		if !t.active(id) {
			t.logger.Info("tail stopped", "path", t.opts.Path, "offset", cur.offset)
			return
		}

		if err := t.poll(cur); err != nil {
			t.logger.Warn("tail poll", "path", t.opts.Path, "err", err)
		}
		if t.active(id) {
			t.offset.Store(cur.offset)
		}
		timer.Reset(t.opts.Interval)
	}
}

// finish clears the flag when the loop ends because its context did.
func (t *Tailer) finish(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == id {
		t.running = false
	}
}

// cursor is owned by one loop goroutine.
type cursor struct {
	path   string
	offset int64
}

// poll reads every complete line between the cursor and the size observed
// when the file was opened. A trailing line without its newline is left for
// the next cycle, so the offset only ever moves to a line boundary.
func (t *Tailer) poll(cur *cursor) error {
	f, err := os.Open(cur.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	size := fi.Size()
	if size < cur.offset {
		t.logger.Debug("tailed file shrank, waiting for it to grow", "path", cur.path, "size", size, "offset", cur.offset)
		return nil
	}
	if size == cur.offset {
		return nil
	}

	if _, err := f.Seek(cur.offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek: %w", err)
	}

	r := bufio.NewReader(io.LimitReader(f, size-cur.offset))
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 && line[len(line)-1] == '\n' {
			start := cur.offset
			cur.offset += int64(len(line))
			metrics.TailBytes.Add(float64(len(line)))
			t.handle(start, line)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
	}
}

func (t *Tailer) handle(offset int64, line []byte) {
	line = bytes.TrimRight(line, "\r\n")
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	rec, err := decode(line)
	if err != nil {
		t.dropped.Add(1)
		metrics.TailDecodeErrors.Inc()
		t.logger.Debug("dropping tailed line", "err", &core.DecodeError{Offset: offset, Err: err})
		return
	}
	if err := t.sink.Emit(core.TopicTail, rec); err != nil {
		metrics.SinkDrops.WithLabelValues(core.TopicTail).Inc()
		t.logger.Debug("tail record dropped", "offset", offset, "err", err)
		return
	}
	t.records.Add(1)
	metrics.TailRecords.Inc()
}

// decode parses exactly one JSON value. Numbers keep their textual form.
func decode(line []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}
