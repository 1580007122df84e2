// Package events carries log lines and run-state changes from the
// control service to whatever host application drains them.
package events

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultBuffer is the stream capacity used by NewStream when size <= 0.
const DefaultBuffer = 256

type Kind int

const (
	KindLog Kind = iota
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindLog:
		return "log"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Event is one entry of the stream. Level and Message are set for
// KindLog; Running is set for KindStatus.
type Event struct {
	Kind    Kind
	Time    time.Time
	Level   slog.Level
	Message string
	Running bool
}

// Stream is a bounded queue of events. Publishing never blocks: when
// the buffer is full the event is dropped and counted.
type Stream struct {
	ch      chan Event
	dropped atomic.Uint64
}

func NewStream(size int) *Stream {
	if size <= 0 {
		size = DefaultBuffer
	}
	return &Stream{ch: make(chan Event, size)}
}

// Events returns the receive side of the stream.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Publish enqueues e and reports whether it was accepted.
func (s *Stream) Publish(e Event) bool {
	if s == nil {
		return false
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	select {
	case s.ch <- e:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Status publishes a run-state change.
func (s *Stream) Status(running bool) bool {
	return s.Publish(Event{Kind: KindStatus, Running: running})
}

// Dropped returns how many events were discarded on a full buffer.
func (s *Stream) Dropped() uint64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}
