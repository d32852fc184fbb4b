package udp

import (
	"net"
	"testing"
	"time"

	"github.com/ghalamif/AegisWatch/internal/domain"
)

func TestCollectorEmitsDatagrams(t *testing.T) {
	c, err := NewCollector(Config{Listeners: []ListenerConfig{{Addr: "127.0.0.1:0", SensorID: 5}}}, nil)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	out := make(chan *domain.Packet, 4)
	if err := c.Start(out); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	addrs := c.Addrs()
	if len(addrs) != 1 {
		t.Fatalf("expected one bound address, got %v", addrs)
	}
	conn, err := net.Dial("udp", addrs[0].String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for _, frame := range [][]byte{{0x01, 0x02}, {0x03}} {
		if _, err := conn.Write(frame); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	for i, want := range []string{"\x01\x02", "\x03"} {
		select {
		case pkt := <-out:
			if pkt.SensorID != 5 || string(pkt.Payload) != want || pkt.Seq != uint64(i+1) {
				t.Fatalf("unexpected packet %+v", pkt)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for packet %d", i)
		}
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("second stop should be a no-op: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	bad := []Config{
		{Listeners: []ListenerConfig{{SensorID: 1}}},
		{Listeners: []ListenerConfig{{Addr: ":9000"}}},
		{Listeners: []ListenerConfig{{Addr: ":9000", SensorID: 1}, {Addr: ":9000", SensorID: 2}}},
	}
	for i, cfg := range bad {
		if err := cfg.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
	if _, err := NewCollector(Config{}, nil); err == nil {
		t.Fatalf("collector without listeners should be rejected")
	}
}
