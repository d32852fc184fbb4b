package pipeline

import (
	"context"
	"time"

	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

// sinkAttempts bounds retries of one batch before its events are dead-lettered.
const sinkAttempts = 3

// RunIngestPipeline drains the journal's queue into the sink until ctx is
// cancelled. Pending journal entries are moved into the queue on every pass.
// The WAL is committed once a batch is written; a batch the sink keeps
// rejecting is recorded in the DLQ and committed so the journal moves on.
func RunIngestPipeline(ctx context.Context, j *Journal, sink ports.EventSink) error {
	wal, q, pol, obs := j.wal, j.q, j.pol, j.obs
	idle := pol.IdleSleep
	if idle <= 0 {
		idle = 5 * time.Millisecond
	}
	wait := func() bool {
		t := time.NewTimer(idle)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			return true
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		j.Flush()
		batch := q.DequeueBatch(pol.MaxBatchSize)
		obs.SetGauge(ports.GaugeQueueLength, float64(q.Len()))
		if len(batch) == 0 {
			if !wait() {
				return nil
			}
			continue
		}

		var (
			out   = make([]*domain.Event, 0, len(batch))
			maxID ports.WALEntryID
		)
		for _, item := range batch {
			out = append(out, item.Event)
			if item.ID > maxID {
				maxID = item.ID
			}
		}

		var err error
		for attempt := 1; attempt <= sinkAttempts; attempt++ {
			start := time.Now()
			if err = sink.WriteBatch(out); err == nil {
				obs.ObserveLatency(ports.LatencyEventSink, time.Since(start).Seconds())
				obs.IncCounter(ports.MetricEventsPersisted, float64(len(out)))
				break
			}
			obs.LogError("sink_write_failed", err,
				ports.F("sink", sink.Name()),
				ports.F("attempt", attempt),
				ports.F("events", len(out)))
			if attempt < sinkAttempts && !wait() {
				// Shutting down: the batch stays uncommitted for replay.
				return nil
			}
		}
		if err != nil {
			for _, item := range batch {
				obs.RecordDLQ(item.ID, item.Event, err)
			}
		}

		if err := wal.Commit(maxID); err != nil {
			obs.LogError("wal_commit_failed", err)
			continue
		}
		compact(wal, pol, obs)
	}
}

// compact drops the committed WAL prefix once the log passes half its limit.
func compact(wal ports.WAL, pol ports.Policy, obs ports.Observability) {
	stats := wal.Stats()
	if pol.MaxWALSizeBytes > 0 && stats.SizeBytes < pol.MaxWALSizeBytes/2 {
		obs.SetGauge(ports.GaugeWALSize, float64(stats.SizeBytes))
		return
	}
	if err := wal.TruncateCommitted(); err != nil {
		obs.LogError("wal_truncate_failed", err)
		return
	}
	obs.SetGauge(ports.GaugeWALSize, float64(wal.Stats().SizeBytes))
}
