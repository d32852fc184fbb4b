package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

// ErrJournalClosed is returned by Publish after Close.
var ErrJournalClosed = errors.New("journal closed")

// Journal makes alarm events durable: each event is appended to the WAL and
// queued for the sink under the configured backpressure policies.
//
// An entry the queue cannot take under the "drop" or "reject" policy stays
// pending and is queued by a later Flush. Once an entry is pending every
// newer one queues behind it, so the queue only ever holds entries older
// than all pending ones and committing a dequeued batch never skips one.
type Journal struct {
	wal ports.WAL
	q   ports.EventQueue
	pol ports.Policy
	obs ports.Observability

	mu     sync.Mutex
	done   chan struct{}
	closed bool

	// pubMu serializes Publish and Replay.
	pubMu   sync.Mutex
	pmu     sync.Mutex
	pending []ports.QueuedEvent
}

func NewJournal(wal ports.WAL, q ports.EventQueue, pol ports.Policy, obs ports.Observability) *Journal {
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &Journal{wal: wal, q: q, pol: pol, obs: obs, done: make(chan struct{})}
}

// Publish journals ev. It blocks while the WAL or queue is full under the
// "block" policies.
func (j *Journal) Publish(ev *domain.Event) error {
	if j.isClosed() {
		return ErrJournalClosed
	}
	j.pubMu.Lock()
	defer j.pubMu.Unlock()

	if !j.waitForWALCapacity() {
		return fmt.Errorf("wal full, event %s dropped", ev.ID)
	}

	id, err := j.wal.Append(ev)
	if err != nil {
		j.obs.LogCritical("wal_append_failed", err, ports.F("event_id", ev.ID))
		return err
	}
	j.obs.SetGauge(ports.GaugeWALSize, float64(j.wal.Stats().SizeBytes))

	if !j.admit(id, ev) {
		j.obs.LogInfo("event_deferred",
			ports.F("event_id", ev.ID),
			ports.F("wal_id", uint64(id)),
			ports.F("pending", j.Pending()))
	}
	j.obs.SetGauge(ports.GaugeQueueLength, float64(j.q.Len()))
	return nil
}

// Replay queues every uncommitted WAL entry, deferring those the queue has
// no room for. It runs once at startup, before the ingest loop.
func (j *Journal) Replay() (int, error) {
	j.pubMu.Lock()
	defer j.pubMu.Unlock()

	from := j.wal.Stats().OldestUncommitted
	n := 0
	err := j.wal.Iterate(from, func(id ports.WALEntryID, ev *domain.Event) error {
		j.admit(id, ev)
		n++
		return nil
	})
	if n > 0 {
		j.obs.LogInfo("journal_replayed",
			ports.F("events", n),
			ports.F("from", uint64(from)),
			ports.F("pending", j.Pending()))
	}
	return n, err
}

// Flush moves pending entries into the queue, oldest first, until the queue
// is full. It returns the number of entries moved.
func (j *Journal) Flush() int {
	j.pmu.Lock()
	defer j.pmu.Unlock()
	return j.flushLocked()
}

// Pending is the number of entries waiting for queue space.
func (j *Journal) Pending() int {
	j.pmu.Lock()
	defer j.pmu.Unlock()
	return len(j.pending)
}

func (j *Journal) flushLocked() int {
	n := 0
	for n < len(j.pending) && j.q.Enqueue(j.pending[n].ID, j.pending[n].Event) {
		n++
	}
	if n > 0 {
		j.pending = append(j.pending[:0], j.pending[n:]...)
	}
	return n
}

// admit queues an appended entry behind any pending ones and reports whether
// it reached the queue. Caller holds pubMu.
func (j *Journal) admit(id ports.WALEntryID, ev *domain.Event) bool {
	j.pmu.Lock()
	j.flushLocked()
	if len(j.pending) > 0 {
		j.pending = append(j.pending, ports.QueuedEvent{ID: id, Event: ev})
		j.pmu.Unlock()
		return false
	}
	j.pmu.Unlock()

	// Only admit adds to pending and pubMu is held, so nothing can overtake
	// this entry while enqueueWithPolicy blocks.
	if j.enqueueWithPolicy(id, ev) {
		return true
	}
	j.pmu.Lock()
	j.pending = append(j.pending, ports.QueuedEvent{ID: id, Event: ev})
	j.pmu.Unlock()
	return false
}

// Close unblocks waiting publishers and rejects further events.
func (j *Journal) Close() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.closed {
		j.closed = true
		close(j.done)
	}
}

func (j *Journal) isClosed() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closed
}

func (j *Journal) sleep() bool {
	d := j.pol.IdleSleep
	if d <= 0 {
		d = 5 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-j.done:
		return false
	case <-t.C:
		return true
	}
}

func (j *Journal) waitForWALCapacity() bool {
	if j.pol.MaxWALSizeBytes <= 0 {
		return true
	}

	for {
		stats := j.wal.Stats()
		if stats.SizeBytes < j.pol.MaxWALSizeBytes {
			return true
		}

		switch j.pol.OnWALFull {
		case "block":
			if !j.sleep() {
				return false
			}
		case "drop":
			j.obs.IncCounter(ports.MetricEventsDropped, 1)
			j.obs.LogError("wal_full_drop", fmt.Errorf("size=%d limit=%d", stats.SizeBytes, j.pol.MaxWALSizeBytes))
			return false
		default:
			j.obs.LogError("wal_policy_invalid", fmt.Errorf("policy=%s", j.pol.OnWALFull))
			return false
		}
	}
}

func (j *Journal) enqueueWithPolicy(id ports.WALEntryID, ev *domain.Event) bool {
	for {
		if ok := j.q.Enqueue(id, ev); ok {
			return true
		}

		switch j.pol.OnQueueFull {
		case "block":
			if !j.sleep() {
				return false
			}
		case "drop", "reject":
			j.obs.LogError("queue_full_deferred", fmt.Errorf("queue length exceeded capacity %d", j.pol.MaxQueueLen))
			return false
		default:
			j.obs.LogError("queue_policy_invalid", fmt.Errorf("policy=%s", j.pol.OnQueueFull))
			return false
		}
	}
}

var _ ports.EventPublisher = (*Journal)(nil)
