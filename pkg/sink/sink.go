// Package sink provides EventSink implementations and combinators.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jasonish/meerkat-desktop/pkg/core"
)

// Multi fans every event out to all sinks. It reports the joined errors of
// the sinks that failed; the others still receive the event.
type Multi []core.Sink

func (m Multi) Emit(topic string, payload any) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Serialized wraps a sink that is not safe for concurrent use.
type Serialized struct {
	mu   sync.Mutex
	next core.Sink
}

// Serialize returns a sink that forwards to next one event at a time.
func Serialize(next core.Sink) *Serialized {
	return &Serialized{next: next}
}

func (s *Serialized) Emit(topic string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.Emit(topic, payload)
}

// Event is a topic plus payload as delivered by Channel.
type Event struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// Channel delivers events to a buffered channel without ever blocking the
// producer. When the buffer is full the event is dropped and Emit returns
// ErrSinkUnavailable.
type Channel struct {
	ch     chan Event
	mu     sync.RWMutex
	closed bool
}

// NewChannel creates a channel sink with the given buffer size.
func NewChannel(size int) *Channel {
	return &Channel{ch: make(chan Event, size)}
}

// C returns the receive side.
func (c *Channel) C() <-chan Event { return c.ch }

func (c *Channel) Emit(topic string, payload any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return fmt.Errorf("%w: channel closed", core.ErrSinkUnavailable)
	}
	select {
	case c.ch <- Event{Topic: topic, Payload: payload}:
		return nil
	default:
		return fmt.Errorf("%w: channel full", core.ErrSinkUnavailable)
	}
}

// Close closes the receive side. Later Emits fail.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}

// Log writes events to a structured logger, one record per event.
type Log struct {
	Logger *slog.Logger
	Level  slog.Level
}

func (l Log) Emit(topic string, payload any) error {
	switch v := payload.(type) {
	case core.OutputLine:
		l.Logger.Log(context.Background(), l.Level, v.Line, "topic", topic, "slot", v.Slot, "stream", v.Type)
	default:
		l.Logger.Log(context.Background(), l.Level, topic, "payload", payload)
	}
	return nil
}
