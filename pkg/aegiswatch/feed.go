package aegiswatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ghalamif/AegisWatch/internal/domain"
)

var (
	// ErrFeedStopped is returned by Push once the feed has been stopped.
	ErrFeedStopped = errors.New("aegiswatch: feed stopped")
	// ErrFeedStarted is returned when a feed is attached to a second pipeline.
	ErrFeedStarted = errors.New("aegiswatch: feed already started")
)

// Feed is a collector driven by the caller: packets pushed into it are
// forwarded to the engine once the runtime starts it. Use it to bridge
// transports the runtime does not ship (serial lines, MQTT, simulators).
type Feed struct {
	in   chan *domain.Packet
	done chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
	seq     map[int]uint64
}

// NewFeed creates a feed buffering up to buffer packets before Push blocks.
func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = 1
	}
	return &Feed{
		in:   make(chan *domain.Packet, buffer),
		done: make(chan struct{}),
		seq:  make(map[int]uint64),
	}
}

// Push queues a raw frame for sensorID. It blocks while the buffer is full.
func (f *Feed) Push(ctx context.Context, sensorID int, payload []byte) error {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return ErrFeedStopped
	}
	f.seq[sensorID]++
	pkt := &domain.Packet{
		SensorID:  sensorID,
		Timestamp: time.Now().UTC(),
		Seq:       f.seq[sensorID],
		Payload:   append([]byte(nil), payload...),
		Source:    "feed",
	}
	f.mu.Unlock()

	select {
	case <-f.done:
		return ErrFeedStopped
	case <-ctx.Done():
		return ctx.Err()
	case f.in <- pkt:
		return nil
	}
}

// Start implements Collector.
func (f *Feed) Start(out chan<- *domain.Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return ErrFeedStopped
	}
	if f.started {
		return ErrFeedStarted
	}
	f.started = true

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case <-f.done:
				return
			case pkt := <-f.in:
				select {
				case out <- pkt:
				case <-f.done:
					return
				}
			}
		}
	}()
	return nil
}

// Stop implements Collector. Buffered packets that were not forwarded are dropped.
func (f *Feed) Stop() error {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return nil
	}
	f.stopped = true
	close(f.done)
	f.mu.Unlock()

	f.wg.Wait()
	return nil
}

var _ Collector = (*Feed)(nil)
