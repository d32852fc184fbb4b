package ports

import "github.com/ghalamif/AegisWatch/internal/domain"

type Observability interface {
	LogDebug(msg string, fields ...Field)
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)

	RecordDLQ(id WALEntryID, ev *domain.Event, err error)
}

type Field struct {
	Key   string
	Value any
}

// F is shorthand for building a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// NopObservability discards everything. It is the fallback when no backend is wired.
type NopObservability struct{}

func (NopObservability) LogDebug(string, ...Field)                  {}
func (NopObservability) LogInfo(string, ...Field)                   {}
func (NopObservability) LogError(string, error, ...Field)           {}
func (NopObservability) LogCritical(string, error, ...Field)        {}
func (NopObservability) IncCounter(string, float64)                 {}
func (NopObservability) ObserveLatency(string, float64)             {}
func (NopObservability) SetGauge(string, float64)                   {}
func (NopObservability) RecordDLQ(WALEntryID, *domain.Event, error) {}

var _ Observability = NopObservability{}
