// Package sensor holds the per-sensor state: the latest field values, the
// leaves bound to each field and the staleness watchdog that reverts the
// sensor to its defaults when updates stop arriving.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ghalamif/AegisWatch/internal/condition"
	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

// Evaluator is the part of the condition registry a sensor drives.
type Evaluator interface {
	Update(ctx context.Context, sensorID int, leaves []condition.Ref, v domain.Value)
	RefireTrue(ctx context.Context, sensorID int)
}

// Field declares one named field of a sensor.
type Field struct {
	Name string
	Kind domain.Kind
	// Default is applied when the watchdog expires. An invalid Value means
	// the zero value of Kind.
	Default domain.Value
}

// Config describes a sensor instance.
type Config struct {
	ID      int
	Name    string
	Decoder ports.Decoder
	Fields  []Field
	// Bindings maps field names to the leaves evaluated on every update.
	Bindings map[string][]condition.Ref
	// TimeForUpdate is the number of watchdog ticks without an update before
	// the sensor is reverted. Zero disables the watchdog.
	TimeForUpdate int
	Tick          time.Duration
}

type fieldState struct {
	kind    domain.Kind
	def     domain.Value
	current domain.Value
	leaves  []condition.Ref
}

// Sensor receives frames or decoded fields and pushes field changes into the
// condition graph.
type Sensor struct {
	ID   int
	Name string

	decoder  ports.Decoder
	eval     Evaluator
	obs      ports.Observability
	watchdog *Watchdog

	mu     sync.Mutex
	fields map[string]*fieldState
	names  []string
}

// New validates cfg and returns an idle sensor. The watchdog only starts
// with the first update.
func New(cfg Config, eval Evaluator, obs ports.Observability) (*Sensor, error) {
	if eval == nil {
		return nil, errors.New("sensor: evaluator is required")
	}
	if obs == nil {
		obs = ports.NopObservability{}
	}
	s := &Sensor{
		ID:      cfg.ID,
		Name:    cfg.Name,
		decoder: cfg.Decoder,
		eval:    eval,
		obs:     obs,
		fields:  make(map[string]*fieldState, len(cfg.Fields)),
	}

	var errs []error
	for _, f := range cfg.Fields {
		if _, dup := s.fields[f.Name]; dup {
			errs = append(errs, fmt.Errorf("field %q declared twice", f.Name))
			continue
		}
		if f.Default.IsValid() && f.Default.Kind() != f.Kind {
			errs = append(errs, fmt.Errorf("field %q: default is %s, field is %s", f.Name, f.Default.Kind(), f.Kind))
		}
		s.fields[f.Name] = &fieldState{kind: f.Kind, def: f.Default}
		s.names = append(s.names, f.Name)
	}
	for name, refs := range cfg.Bindings {
		fs, ok := s.fields[name]
		if !ok {
			errs = append(errs, fmt.Errorf("binding for unknown field %q", name))
			continue
		}
		fs.leaves = append(fs.leaves, refs...)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("sensor %d: %w", cfg.ID, err)
	}
	sort.Strings(s.names)

	s.watchdog = NewWatchdog(cfg.TimeForUpdate, cfg.Tick, s.revert, s.refire)
	return s, nil
}

// HandlePacket kicks the watchdog, decodes the payload and applies every
// field that could be decoded.
func (s *Sensor) HandlePacket(ctx context.Context, payload []byte) error {
	if s.decoder == nil {
		return fmt.Errorf("sensor %d has no decoder", s.ID)
	}
	s.watchdog.Kick()

	updates, err := s.decoder.Decode(payload)
	if err != nil {
		s.obs.IncCounter(ports.MetricDecodeErrors, 1)
		s.obs.LogError("decode_failed", err,
			ports.F("sensor_id", s.ID),
			ports.F("payload_len", len(payload)),
			ports.F("decoded", len(updates)))
	}
	s.apply(ctx, updates)
	return err
}

// HandleFields kicks the watchdog and applies already decoded fields.
func (s *Sensor) HandleFields(ctx context.Context, updates []domain.FieldUpdate) {
	s.watchdog.Kick()
	s.apply(ctx, updates)
}

func (s *Sensor) apply(ctx context.Context, updates []domain.FieldUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		s.setLocked(ctx, u.Name, u.Value)
	}
}

func (s *Sensor) setLocked(ctx context.Context, name string, v domain.Value) {
	fs, ok := s.fields[name]
	if !ok {
		s.obs.LogDebug("unknown_field",
			ports.F("sensor_id", s.ID),
			ports.F("field", name))
		return
	}
	if fs.kind != domain.KindInvalid && v.Kind() != fs.kind {
		s.obs.IncCounter(ports.MetricKindMismatches, 1)
		s.obs.LogError("field_kind_mismatch", fmt.Errorf("got %s, want %s", v.Kind(), fs.kind),
			ports.F("sensor_id", s.ID),
			ports.F("field", name))
		return
	}
	fs.current = v
	s.eval.Update(ctx, s.ID, fs.leaves, v)
}

// revert runs from the watchdog when the sensor went stale. Every field is
// set to its default.
func (s *Sensor) revert(ctx context.Context) {
	s.obs.IncCounter(ports.MetricWatchdogExpirations, 1)
	s.obs.LogInfo("sensor_stale",
		ports.F("sensor_id", s.ID),
		ports.F("sensor", s.Name))

	s.mu.Lock()
	for _, name := range s.names {
		fs := s.fields[name]
		def := fs.def
		if !def.IsValid() {
			if fs.kind == domain.KindInvalid {
				continue
			}
			def = domain.Zero(fs.kind)
		}
		s.setLocked(ctx, name, def)
	}
	s.mu.Unlock()
}

// refire re-asserts every true condition after a revert. It runs outside the
// watchdog lock so packets for this sensor are not held up by slow actions.
func (s *Sensor) refire(ctx context.Context) {
	s.eval.RefireTrue(ctx, s.ID)
}

// Values snapshots the fields that have received a value.
func (s *Sensor) Values() map[string]domain.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.Value, len(s.fields))
	for name, fs := range s.fields {
		if fs.current.IsValid() {
			out[name] = fs.current
		}
	}
	return out
}

// Watchdog exposes the sensor's staleness timer.
func (s *Sensor) Watchdog() *Watchdog { return s.watchdog }

// Stop halts the watchdog. Pending expiries are abandoned.
func (s *Sensor) Stop() {
	s.watchdog.Stop()
}
