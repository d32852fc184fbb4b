package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/AegisWatch"
)

func main() {
	flow, err := aegiswatch.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, batches, closeBatches := aegiswatch.NewChannelSink("fanout", 32)
	defer closeBatches()

	go fanoutWorker("alarms", batches)

	if err := flow.Run(ctx, aegiswatch.StreamOutSink(sink)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

func fanoutWorker(name string, batches <-chan []aegiswatch.Event) {
	for batch := range batches {
		raised := 0
		for _, ev := range batch {
			if ev.Kind == aegiswatch.EventRaised {
				raised++
			}
		}
		fmt.Printf("[%s] %d events (%d raised) at %s\n", name, len(batch), raised, time.Now().Format(time.RFC3339))
	}
}
