package wal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

func event(id string, condition int) *domain.Event {
	return &domain.Event{
		ID:            id,
		Kind:          domain.EventRaised,
		ConditionID:   condition,
		ConditionName: "overheat",
		SensorID:      3,
		Timestamp:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFileWALAppendIterateAndReplay(t *testing.T) {
	dir := t.TempDir()

	w, err := NewFileWAL(dir)
	if err != nil {
		t.Fatalf("new wal: %v", err)
	}

	id1, err := w.Append(event("e-1", 1))
	if err != nil || id1 == 0 {
		t.Fatalf("append event 1: %v id=%d", err, id1)
	}
	id2, err := w.Append(event("e-2", 2))
	if err != nil || id2 == 0 {
		t.Fatalf("append event 2: %v id=%d", err, id2)
	}

	var iterated []string
	if err := w.Iterate(1, func(id ports.WALEntryID, ev *domain.Event) error {
		iterated = append(iterated, ev.ID)
		return nil
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(iterated) != 2 || iterated[0] != "e-1" || iterated[1] != "e-2" {
		t.Fatalf("unexpected replay %v", iterated)
	}

	if err := w.Commit(id2); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close wal: %v", err)
	}
	if _, err := w.Append(event("e-3", 3)); err == nil {
		t.Fatalf("append after close should fail")
	}

	// Reopen and ensure committed metadata was persisted.
	w2, err := NewFileWAL(dir)
	if err != nil {
		t.Fatalf("reopen wal: %v", err)
	}

	stats := w2.Stats()
	if stats.LatestAppended != id2 {
		t.Fatalf("expected latest appended %d, got %d", id2, stats.LatestAppended)
	}
	if stats.OldestUncommitted != id2+1 {
		t.Fatalf("expected oldest uncommitted %d, got %d", id2+1, stats.OldestUncommitted)
	}

	// Ensure truncation handles partial writes by manually corrupting the log.
	path := filepath.Join(dir, "wal.log")
	if err := appendGarbage(path); err != nil {
		t.Fatalf("append garbage: %v", err)
	}
	if err := w2.Close(); err != nil {
		t.Fatalf("close wal2: %v", err)
	}

	w3, err := NewFileWAL(dir)
	if err != nil {
		t.Fatalf("reopen after garbage: %v", err)
	}
	defer w3.Close()
	if got := w3.Stats().LatestAppended; got != id2 {
		t.Fatalf("expected torn record to be dropped, latest %d", got)
	}
}

func TestFileWALTruncateCommitted(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWAL(dir)
	if err != nil {
		t.Fatalf("new wal: %v", err)
	}
	defer w.Close()

	var last ports.WALEntryID
	for i, id := range []string{"a", "b", "c"} {
		if last, err = w.Append(event(id, i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	before := w.Stats().SizeBytes
	if err := w.Commit(last - 1); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := w.TruncateCommitted(); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	stats := w.Stats()
	if stats.SizeBytes >= before || stats.SizeBytes == 0 {
		t.Fatalf("expected log to shrink from %d, got %d", before, stats.SizeBytes)
	}
	var ids []string
	if err := w.Iterate(0, func(_ ports.WALEntryID, ev *domain.Event) error {
		ids = append(ids, ev.ID)
		return nil
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(ids) != 1 || ids[0] != "c" {
		t.Fatalf("expected only the uncommitted event, got %v", ids)
	}

	next, err := w.Append(event("d", 4))
	if err != nil {
		t.Fatalf("append after truncate: %v", err)
	}
	if next != last+1 {
		t.Fatalf("ids must keep increasing, got %d after %d", next, last)
	}
}

func appendGarbage(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write([]byte{0xFF, 0xAA})
	return err
}
