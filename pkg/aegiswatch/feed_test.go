package aegiswatch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFeedBuffersUntilStarted(t *testing.T) {
	f := NewFeed(4)
	ctx := context.Background()
	payload := []byte{1, 2}

	if err := f.Push(ctx, 3, payload); err != nil {
		t.Fatalf("push: %v", err)
	}
	payload[0] = 9
	if err := f.Push(ctx, 3, []byte{3}); err != nil {
		t.Fatalf("push: %v", err)
	}

	out := make(chan *Packet, 4)
	if err := f.Start(out); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer f.Stop()

	for i, want := range []string{"\x01\x02", "\x03"} {
		select {
		case pkt := <-out:
			if pkt.SensorID != 3 || pkt.Seq != uint64(i+1) || string(pkt.Payload) != want || pkt.Source != "feed" {
				t.Fatalf("unexpected packet %+v", pkt)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for packet %d", i)
		}
	}

	if err := f.Start(out); !errors.Is(err, ErrFeedStarted) {
		t.Fatalf("expected ErrFeedStarted, got %v", err)
	}
}

func TestFeedStop(t *testing.T) {
	f := NewFeed(1)
	if err := f.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := f.Stop(); err != nil {
		t.Fatalf("second stop should be a no-op: %v", err)
	}
	if err := f.Push(context.Background(), 1, nil); !errors.Is(err, ErrFeedStopped) {
		t.Fatalf("expected ErrFeedStopped, got %v", err)
	}
	if err := f.Start(make(chan *Packet)); !errors.Is(err, ErrFeedStopped) {
		t.Fatalf("expected ErrFeedStopped on start, got %v", err)
	}
}

func TestFeedPushHonoursContext(t *testing.T) {
	f := NewFeed(1)
	defer f.Stop()
	if err := f.Push(context.Background(), 1, []byte{1}); err != nil {
		t.Fatalf("push: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := f.Push(ctx, 1, []byte{2}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error on a full feed, got %v", err)
	}
}
