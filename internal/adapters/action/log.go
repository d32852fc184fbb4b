package action

import (
	"context"
	"log/slog"

	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

// Log writes one structured line per event.
type Log struct {
	name   string
	logger *slog.Logger
}

func NewLog(name string, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{name: name, logger: logger}
}

func (l *Log) Name() string { return l.name }

func (l *Log) Execute(ctx context.Context, ev *domain.Event) error {
	l.logger.LogAttrs(ctx, slog.LevelWarn, "condition_"+string(ev.Kind),
		slog.String("action", l.name),
		slog.Int("condition_id", ev.ConditionID),
		slog.String("condition", ev.ConditionName),
		slog.Int("sensor_id", ev.SensorID),
		slog.String("event_id", ev.ID),
		slog.Time("at", ev.Timestamp))
	return nil
}

var _ ports.Action = (*Log)(nil)
