package aegiswatch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ghalamif/AegisWatch/internal/domain"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("aegiswatch: channel sink closed")

// EventBatchFunc is invoked with ordered batches of journaled alarm events.
// Returning an error makes the journal retry the batch.
type EventBatchFunc func([]Event) error

// NewCallbackSink adapts an EventBatchFunc into a full EventSink so callers
// can plug arbitrary functions without defining structs.
func NewCallbackSink(name string, fn EventBatchFunc) EventSink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink exposes batches via a channel; it returns the sink, the read-only channel,
// and a close function that the caller should invoke during shutdown.
func NewChannelSink(name string, buffer int) (EventSink, <-chan []Event, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan []Event, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, func() { s.close() }
}

type callbackSink struct {
	name string
	fn   EventBatchFunc
}

func (s *callbackSink) WriteBatch(events []*domain.Event) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	if len(events) == 0 {
		return nil
	}
	return s.fn(copyBatch(events))
}

func (s *callbackSink) Name() string { return s.name }

type channelSink struct {
	name   string
	ch     chan []Event
	closed chan struct{}
	once   sync.Once
	// mu keeps ch open while a writer is sending.
	mu sync.RWMutex
}

func (s *channelSink) WriteBatch(events []*domain.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}

	if len(events) == 0 {
		return nil
	}

	batch := copyBatch(events)

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case s.ch <- batch:
		return nil
	}
}

func (s *channelSink) Name() string { return s.name }

func (s *channelSink) close() {
	s.once.Do(func() {
		close(s.closed)
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	})
}

func copyBatch(events []*domain.Event) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev != nil {
			out = append(out, *ev)
		}
	}
	return out
}
