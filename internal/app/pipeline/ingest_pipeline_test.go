package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ghalamif/AegisWatch/internal/adapters/queue"
	"github.com/ghalamif/AegisWatch/internal/adapters/wal"
	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

type recordingSink struct {
	mu     sync.Mutex
	events []*domain.Event
	fail   error
	calls  int
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) WriteBatch(events []*domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != nil {
		return s.fail
	}
	s.events = append(s.events, events...)
	return nil
}

func (s *recordingSink) snapshot() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events), s.calls
}

func testPolicy() ports.Policy {
	return ports.Policy{
		MaxWALSizeBytes: 1 << 20,
		MaxQueueLen:     16,
		MaxBatchSize:    8,
		IdleSleep:       time.Millisecond,
		OnWALFull:       "block",
		OnQueueFull:     "block",
	}
}

func runIngest(t *testing.T, j *Journal, sink ports.EventSink) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunIngestPipeline(ctx, j, sink) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("ingest returned %v", err)
			}
		case <-time.After(time.Second):
			t.Errorf("ingest did not stop")
		}
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestJournalDeliversAndCommits(t *testing.T) {
	w, err := wal.NewFileWAL(t.TempDir())
	if err != nil {
		t.Fatalf("new wal: %v", err)
	}
	defer w.Close()
	q := queue.NewMemQueue(16)
	sink := &recordingSink{}
	j := NewJournal(w, q, testPolicy(), &mockObs{})

	for _, id := range []string{"a", "b", "c"} {
		if err := j.Publish(&domain.Event{ID: id, Kind: domain.EventRaised}); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}

	stop := runIngest(t, j, sink)
	waitUntil(t, func() bool { n, _ := sink.snapshot(); return n == 3 })
	waitUntil(t, func() bool { return w.Stats().OldestUncommitted == 4 })
	stop()

	if sink.events[0].ID != "a" || sink.events[2].ID != "c" {
		t.Fatalf("events delivered out of order")
	}
}

func TestIngestDeadLettersRejectedBatch(t *testing.T) {
	w, err := wal.NewFileWAL(t.TempDir())
	if err != nil {
		t.Fatalf("new wal: %v", err)
	}
	defer w.Close()
	q := queue.NewMemQueue(16)
	obs := &mockObs{}
	j := NewJournal(w, q, testPolicy(), obs)
	if err := j.Publish(&domain.Event{ID: "poison"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	sink := &recordingSink{fail: errors.New("constraint violation")}
	stop := runIngest(t, j, sink)
	waitUntil(t, func() bool { return w.Stats().OldestUncommitted == 2 })
	stop()

	if _, calls := sink.snapshot(); calls != sinkAttempts {
		t.Fatalf("expected %d attempts, got %d", sinkAttempts, calls)
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.dlq) != 1 || obs.dlq[0] != 1 {
		t.Fatalf("expected entry 1 in the DLQ, got %v", obs.dlq)
	}
}

func TestJournalReplaysUncommitted(t *testing.T) {
	dir := t.TempDir()
	w, err := wal.NewFileWAL(dir)
	if err != nil {
		t.Fatalf("new wal: %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if _, err := w.Append(&domain.Event{ID: id}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := w.Commit(1); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	w2, err := wal.NewFileWAL(dir)
	if err != nil {
		t.Fatalf("reopen wal: %v", err)
	}
	defer w2.Close()
	q := queue.NewMemQueue(16)
	n, err := NewJournal(w2, q, testPolicy(), &mockObs{}).Replay()
	if err != nil || n != 2 {
		t.Fatalf("expected 2 replayed events, got %d (%v)", n, err)
	}
	batch := q.DequeueBatch(10)
	if batch[0].Event.ID != "b" || batch[1].Event.ID != "c" {
		t.Fatalf("unexpected replay order %+v", batch)
	}
}

func TestJournalKeepsDeferredEntriesUntilQueued(t *testing.T) {
	dir := t.TempDir()
	w, err := wal.NewFileWAL(dir)
	if err != nil {
		t.Fatalf("new wal: %v", err)
	}
	pol := testPolicy()
	pol.OnQueueFull = "drop"
	q := queue.NewMemQueue(1)
	j := NewJournal(w, q, pol, &mockObs{})

	for _, id := range []string{"e1", "e2"} {
		if err := j.Publish(&domain.Event{ID: id}); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}
	if j.Pending() != 1 {
		t.Fatalf("expected e2 to be pending, got %d", j.Pending())
	}

	first := q.DequeueBatch(10)
	if len(first) != 1 || first[0].Event.ID != "e1" {
		t.Fatalf("unexpected first batch %+v", first)
	}
	if err := w.Commit(first[0].ID); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := j.Publish(&domain.Event{ID: "e3"}); err != nil {
		t.Fatalf("publish e3: %v", err)
	}
	second := q.DequeueBatch(10)
	if len(second) != 1 || second[0].Event.ID != "e2" {
		t.Fatalf("e2 must be queued before e3, got %+v", second)
	}
	if err := w.Commit(second[0].ID); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	w2, err := wal.NewFileWAL(dir)
	if err != nil {
		t.Fatalf("reopen wal: %v", err)
	}
	defer w2.Close()
	q2 := queue.NewMemQueue(16)
	n, err := NewJournal(w2, q2, pol, &mockObs{}).Replay()
	if err != nil || n != 1 {
		t.Fatalf("expected e3 to be replayed, got %d (%v)", n, err)
	}
	if batch := q2.DequeueBatch(10); batch[0].Event.ID != "e3" {
		t.Fatalf("unexpected replay %+v", batch)
	}
}

func TestIngestFlushesDeferredEntries(t *testing.T) {
	w, err := wal.NewFileWAL(t.TempDir())
	if err != nil {
		t.Fatalf("new wal: %v", err)
	}
	defer w.Close()
	pol := testPolicy()
	pol.OnQueueFull = "reject"
	j := NewJournal(w, queue.NewMemQueue(1), pol, &mockObs{})

	for _, id := range []string{"a", "b", "c"} {
		if err := j.Publish(&domain.Event{ID: id}); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}
	if j.Pending() != 2 {
		t.Fatalf("expected 2 pending entries, got %d", j.Pending())
	}

	sink := &recordingSink{}
	stop := runIngest(t, j, sink)
	waitUntil(t, func() bool { n, _ := sink.snapshot(); return n == 3 })
	waitUntil(t, func() bool { return w.Stats().OldestUncommitted == 4 })
	stop()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i, id := range []string{"a", "b", "c"} {
		if sink.events[i].ID != id {
			t.Fatalf("expected WAL order, got %s at %d", sink.events[i].ID, i)
		}
	}
}
