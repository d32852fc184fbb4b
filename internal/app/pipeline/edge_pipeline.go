package pipeline

import (
	"context"

	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

// PacketHandler evaluates one raw packet.
type PacketHandler interface {
	HandlePacket(ctx context.Context, pkt *domain.Packet) error
}

// RunEdgePipeline starts the collector and feeds every packet to h until ctx
// is cancelled, then stops the collector. Handler errors are already counted
// and logged by the engine, so they only surface at debug level here.
func RunEdgePipeline(ctx context.Context, col ports.Collector, h PacketHandler, buffer int, obs ports.Observability) error {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan *domain.Packet, buffer)

	if err := col.Start(ch); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return col.Stop()
		case pkt := <-ch:
			if pkt == nil {
				continue
			}
			if err := h.HandlePacket(ctx, pkt); err != nil {
				obs.LogDebug("packet_rejected",
					ports.F("sensor_id", pkt.SensorID),
					ports.F("source", pkt.Source),
					ports.F("error", err.Error()))
			}
		}
	}
}
