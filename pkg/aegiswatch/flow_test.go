package aegiswatch

import (
	"context"
	"errors"
	"testing"
)

func TestConfFromConfigAndStreamBuilder(t *testing.T) {
	cfg := testConfig(t)

	flow, err := ConfFromConfig(cfg)
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}
	if flow.Config() != cfg {
		t.Fatalf("expected Config to be returned verbatim")
	}

	col := &stubCollector{}
	sink := &stubSink{}
	notify := &recordingAction{}

	rt, err := flow.
		StreamIN(
			StreamInCollector(col),
			StreamInObservability(&stubObservability{}),
			StreamInLogger(quietLogger()),
		).
		StreamOUT(
			StreamOutSink(sink),
			StreamOutQueue(&stubQueue{}),
			StreamOutWAL(&stubWAL{}),
			StreamOutAction("notify", notify),
		)
	if err != nil {
		t.Fatalf("StreamOUT returned error: %v", err)
	}
	defer rt.Close()

	if rt.collectors[len(rt.collectors)-1] != col {
		t.Fatalf("expected custom collector to be wired")
	}
	if rt.sink != sink {
		t.Fatalf("expected custom sink to be wired")
	}

	if err := rt.HandlePacket(context.Background(), &Packet{SensorID: 1, Payload: []byte{99}}); err != nil {
		t.Fatalf("handle packet: %v", err)
	}
	if notify.count() != 1 {
		t.Fatalf("expected the flow action to replace the configured one, fired %d", notify.count())
	}
}

func TestFlowRunUsesStreamOutOptions(t *testing.T) {
	flow, err := ConfFromConfig(testConfig(t), WithFlowOptions(WithLogger(quietLogger())))
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	// Stop immediately; the runtime still starts and tears down every component.
	cancel()

	var got []Event
	err = flow.StreamIN(
		StreamInCollector(&stubCollector{}),
		StreamInObservability(&stubObservability{}),
	).Run(ctx,
		StreamOutCallback("collect", func(batch []Event) error {
			got = append(got, batch...)
			return nil
		}),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("no events expected without packets, got %v", got)
	}
}

func TestConfRequiresConfig(t *testing.T) {
	if _, err := ConfFromConfig(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, err := Conf("does-not-exist.yaml"); err == nil {
		t.Fatalf("expected error for a missing file")
	}
	var f *Flow
	if _, err := f.StreamOUT(); err == nil {
		t.Fatalf("expected error for nil flow")
	}
}
