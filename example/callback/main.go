package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/AegisWatch/pkg/aegiswatch"
)

// Drives sensor 1 from a simulated feed and prints every alarm event.
func main() {
	flow, err := aegiswatch.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(batch []aegiswatch.Event) error {
		for _, ev := range batch {
			fmt.Printf("%s %-10s condition=%d (%s) sensor=%d\n",
				ev.Timestamp.Format(time.RFC3339Nano),
				ev.Kind,
				ev.ConditionID,
				ev.ConditionName,
				ev.SensorID,
			)
		}
		return nil
	}

	rt, err := flow.StreamOUT(aegiswatch.StreamOutCallback("stdout", callback))
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}
	go simulate(ctx, rt.Feed())

	if err := rt.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

func simulate(ctx context.Context, feed *aegiswatch.Feed) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		frame := make([]byte, 4)
		binary.LittleEndian.PutUint16(frame, uint16(int16(15+rand.Intn(25))))
		frame[2] = byte(20 + rand.Intn(40))
		frame[3] = byte(rand.Intn(4))
		if err := feed.Push(ctx, 1, frame); err != nil {
			return
		}
	}
}
