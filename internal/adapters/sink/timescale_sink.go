package sink

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// TimescaleSink writes alarm events into a Postgres/TimescaleDB table keyed
// by event_id, so replays after a crash are idempotent.
type TimescaleSink struct {
	db        *sql.DB
	tableName string
}

func NewTimescaleSink(db *sql.DB, table string) (*TimescaleSink, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &TimescaleSink{db: db, tableName: table}, nil
}

func (t *TimescaleSink) Name() string { return "timescaledb" }

// EnsureSchema creates the event table if it does not exist.
func (t *TimescaleSink) EnsureSchema(ctx context.Context) error {
	_, err := t.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+t.tableName+` (
	event_id       TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	condition_id   INTEGER NOT NULL,
	condition_name TEXT NOT NULL,
	sensor_id      INTEGER NOT NULL,
	ts             TIMESTAMPTZ NOT NULL
)`)
	return err
}

func (t *TimescaleSink) WriteBatch(events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.tableName)
	b.WriteString(" (event_id, kind, condition_id, condition_name, sensor_id, ts) VALUES ")

	args := make([]any, 0, len(events)*6)
	for i, ev := range events {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d)",
			len(args)+1, len(args)+2, len(args)+3, len(args)+4, len(args)+5, len(args)+6))

		args = append(args,
			ev.ID,
			string(ev.Kind),
			ev.ConditionID,
			ev.ConditionName,
			ev.SensorID,
			ev.Timestamp,
		)
	}

	b.WriteString(" ON CONFLICT (event_id) DO NOTHING")

	_, err := t.db.Exec(b.String(), args...)
	return err
}

var _ ports.EventSink = (*TimescaleSink)(nil)
