package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

func TestWaitForWALCapacityBlockThenSucceed(t *testing.T) {
	wal := &mockWAL{
		sizes: []int64{150, 50},
	}
	pol := ports.Policy{
		MaxWALSizeBytes: 100,
		OnWALFull:       "block",
		IdleSleep:       time.Millisecond,
	}
	j := NewJournal(wal, &mockQueue{}, pol, &mockObs{})

	if ok := j.waitForWALCapacity(); !ok {
		t.Fatalf("expected waitForWALCapacity to eventually succeed")
	}
	if wal.calls < 2 {
		t.Fatalf("expected multiple stats calls, got %d", wal.calls)
	}
}

func TestWaitForWALCapacityDrop(t *testing.T) {
	wal := &mockWAL{
		sizes: []int64{200, 200},
	}
	pol := ports.Policy{
		MaxWALSizeBytes: 100,
		OnWALFull:       "drop",
	}
	obs := &mockObs{}
	j := NewJournal(wal, &mockQueue{}, pol, obs)

	if ok := j.waitForWALCapacity(); ok {
		t.Fatalf("expected waitForWALCapacity to drop and return false")
	}
	if len(obs.errors) == 0 {
		t.Fatalf("expected error to be logged")
	}
}

func TestWaitForWALCapacityUnblocksOnClose(t *testing.T) {
	wal := &mockWAL{sizes: []int64{200}}
	j := NewJournal(wal, &mockQueue{}, ports.Policy{
		MaxWALSizeBytes: 100,
		OnWALFull:       "block",
		IdleSleep:       time.Millisecond,
	}, &mockObs{})

	done := make(chan bool)
	go func() { done <- j.waitForWALCapacity() }()
	time.Sleep(5 * time.Millisecond)
	j.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatalf("closed journal must not report capacity")
		}
	case <-time.After(time.Second):
		t.Fatalf("blocked publisher was not released by Close")
	}
	if err := j.Publish(&domain.Event{ID: "late"}); !errors.Is(err, ErrJournalClosed) {
		t.Fatalf("expected ErrJournalClosed, got %v", err)
	}
}

func TestEnqueueWithPolicyBlock(t *testing.T) {
	queue := &mockQueue{}
	queue.failures = 1

	pol := ports.Policy{
		OnQueueFull: "block",
		IdleSleep:   time.Millisecond,
	}
	j := NewJournal(&mockWAL{}, queue, pol, &mockObs{})

	if ok := j.enqueueWithPolicy(1, &domain.Event{}); !ok {
		t.Fatalf("expected enqueue to eventually succeed")
	}
	if queue.calls != 2 {
		t.Fatalf("expected two enqueue attempts, got %d", queue.calls)
	}
}

func TestEnqueueWithPolicyDrop(t *testing.T) {
	queue := &mockQueue{failAlways: true}
	pol := ports.Policy{
		OnQueueFull: "drop",
	}
	obs := &mockObs{}
	j := NewJournal(&mockWAL{}, queue, pol, obs)

	if ok := j.enqueueWithPolicy(1, &domain.Event{}); ok {
		t.Fatalf("expected enqueueWithPolicy to fail")
	}
	if len(obs.errors) == 0 {
		t.Fatalf("expected drop to log an error")
	}
}

func TestRunEdgePipelineFeedsHandler(t *testing.T) {
	col := &mockCollector{packets: []*domain.Packet{
		{SensorID: 1, Payload: []byte{1}},
		{SensorID: 2, Payload: []byte{2}},
		{SensorID: 1, Payload: []byte{3}},
	}}
	h := &mockHandler{reject: 2}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- RunEdgePipeline(ctx, col, h, 4, &mockObs{}) }()

	deadline := time.Now().Add(time.Second)
	for h.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("pipeline returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("pipeline did not stop")
	}
	if h.count() != 3 {
		t.Fatalf("expected 3 handled packets, got %d", h.count())
	}
	if !col.stopped.Load() {
		t.Fatalf("collector should be stopped on cancellation")
	}
}

func TestRunEdgePipelineStartFailure(t *testing.T) {
	col := &mockCollector{startErr: errors.New("no endpoint")}
	if err := RunEdgePipeline(context.Background(), col, &mockHandler{}, 1, &mockObs{}); err == nil {
		t.Fatalf("expected start error")
	}
}

type mockWAL struct {
	ports.WAL
	sizes []int64
	calls int
}

func (m *mockWAL) Stats() ports.WALStats {
	m.calls++
	if len(m.sizes) == 0 {
		return ports.WALStats{}
	}
	idx := m.calls - 1
	if idx >= len(m.sizes) {
		idx = len(m.sizes) - 1
	}
	return ports.WALStats{
		SizeBytes: m.sizes[idx],
	}
}

type mockQueue struct {
	failures   int32
	failAlways bool
	calls      int
}

func (m *mockQueue) Enqueue(id ports.WALEntryID, ev *domain.Event) bool {
	m.calls++
	if m.failAlways {
		return false
	}
	if atomic.LoadInt32(&m.failures) > 0 {
		atomic.AddInt32(&m.failures, -1)
		return false
	}
	return true
}

func (m *mockQueue) DequeueBatch(int) []ports.QueuedEvent { return nil }
func (m *mockQueue) Len() int                             { return 0 }

type mockObs struct {
	ports.NopObservability
	mu     sync.Mutex
	errors []error
	dlq    []ports.WALEntryID
}

func (m *mockObs) LogError(_ string, err error, _ ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, err)
}

func (m *mockObs) RecordDLQ(id ports.WALEntryID, _ *domain.Event, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dlq = append(m.dlq, id)
}

type mockCollector struct {
	packets  []*domain.Packet
	startErr error
	stopped  atomic.Bool
}

func (c *mockCollector) Start(out chan<- *domain.Packet) error {
	if c.startErr != nil {
		return c.startErr
	}
	go func() {
		for _, p := range c.packets {
			out <- p
		}
	}()
	return nil
}

func (c *mockCollector) Stop() error {
	c.stopped.Store(true)
	return nil
}

type mockHandler struct {
	mu     sync.Mutex
	seen   []int
	reject int
}

func (h *mockHandler) HandlePacket(_ context.Context, pkt *domain.Packet) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, pkt.SensorID)
	if pkt.SensorID == h.reject {
		return errors.New("unknown sensor")
	}
	return nil
}

func (h *mockHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}
