package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

const (
	maxDatagram      = 65536
	socketBufferSize = 2 * 1024 * 1024
	readDeadline     = 100 * time.Millisecond
)

// Config lists the sockets to listen on.
type Config struct {
	Listeners []ListenerConfig `yaml:"listeners"`
}

// ListenerConfig binds one UDP address to one sensor. Every datagram is a
// complete frame.
type ListenerConfig struct {
	Addr     string `yaml:"addr"`
	SensorID int    `yaml:"sensor_id"`
}

func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Listeners))
	for _, l := range c.Listeners {
		if l.Addr == "" {
			return errors.New("listener addr is required")
		}
		if l.SensorID <= 0 {
			return fmt.Errorf("listener %s: sensor_id must be positive", l.Addr)
		}
		if _, dup := seen[l.Addr]; dup {
			return fmt.Errorf("listener %s declared twice", l.Addr)
		}
		seen[l.Addr] = struct{}{}
	}
	return nil
}

// Collector reads raw frames from UDP sockets.
type Collector struct {
	cfg   Config
	obs   ports.Observability
	conns []*net.UDPConn
	seq   map[int]uint64

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

func NewCollector(cfg Config, obs ports.Observability) (*Collector, error) {
	if len(cfg.Listeners) == 0 {
		return nil, errors.New("at least one listener must be configured")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &Collector{cfg: cfg, obs: obs, seq: make(map[int]uint64)}, nil
}

func (c *Collector) Start(out chan<- *domain.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("udp collector already started")
	}

	conns := make([]*net.UDPConn, 0, len(c.cfg.Listeners))
	closeAll := func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}
	for _, l := range c.cfg.Listeners {
		addr, err := net.ResolveUDPAddr("udp", l.Addr)
		if err != nil {
			closeAll()
			return fmt.Errorf("resolve %s: %w", l.Addr, err)
		}
		conn, err := net.ListenUDP("udp", addr)
		if err != nil {
			closeAll()
			return fmt.Errorf("listen %s: %w", l.Addr, err)
		}
		if err := conn.SetReadBuffer(socketBufferSize); err != nil {
			c.obs.LogDebug("udp_read_buffer",
				ports.F("addr", l.Addr),
				ports.F("error", err.Error()))
		}
		conns = append(conns, conn)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.conns = conns
	c.cancel = cancel
	c.started = true

	for i, conn := range conns {
		c.wg.Add(1)
		go c.readLoop(ctx, conn, c.cfg.Listeners[i].SensorID, out)
	}
	return nil
}

// Addrs returns the bound local addresses, useful when listening on port 0.
func (c *Collector) Addrs() []net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]net.Addr, 0, len(c.conns))
	for _, conn := range c.conns {
		out = append(out, conn.LocalAddr())
	}
	return out
}

func (c *Collector) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	cancel := c.cancel
	conns := c.conns
	c.cancel = nil
	c.conns = nil
	c.mu.Unlock()

	cancel()
	var err error
	for _, conn := range conns {
		if e := conn.Close(); e != nil && !errors.Is(e, net.ErrClosed) {
			err = errors.Join(err, e)
		}
	}
	c.wg.Wait()
	return err
}

func (c *Collector) readLoop(ctx context.Context, conn *net.UDPConn, sensorID int, out chan<- *domain.Packet) {
	defer c.wg.Done()
	buf := make([]byte, maxDatagram)
	source := "udp:" + conn.LocalAddr().String()

	for {
		if ctx.Err() != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			c.obs.LogError("udp_read", err, ports.F("source", source))
			continue
		}

		pkt := &domain.Packet{
			SensorID:  sensorID,
			Timestamp: time.Now(),
			Seq:       c.nextSeq(sensorID),
			Payload:   append([]byte(nil), buf[:n]...),
			Source:    source,
		}
		select {
		case <-ctx.Done():
			return
		case out <- pkt:
		}
	}
}

func (c *Collector) nextSeq(sensor int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.seq[sensor] + 1
	c.seq[sensor] = next
	return next
}

var _ ports.Collector = (*Collector)(nil)
