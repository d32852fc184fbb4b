// Package engine assembles decoders, the condition registry and sensors from
// a loaded configuration and routes raw packets to the right sensor.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ghalamif/AegisWatch/internal/adapters/action"
	"github.com/ghalamif/AegisWatch/internal/app/config"
	"github.com/ghalamif/AegisWatch/internal/condition"
	"github.com/ghalamif/AegisWatch/internal/decoder"
	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
	"github.com/ghalamif/AegisWatch/internal/sensor"
)

// ErrUnknownSensor is returned for packets addressed to an unconfigured sensor.
var ErrUnknownSensor = errors.New("unknown sensor")

// Options supplies the collaborators that do not come from the config file.
type Options struct {
	Observability ports.Observability
	Publisher     ports.EventPublisher
	Logger        *slog.Logger
	// Actions overrides or extends the actions declared in the config.
	Actions map[string]ports.Action
	Clock   func() time.Time
}

// Engine owns every sensor and the shared condition registry.
type Engine struct {
	registry *condition.Registry
	sensors  map[int]*sensor.Sensor
	ids      []int
	obs      ports.Observability
}

// Build validates cross references that need decoded layouts (field kinds,
// thresholds, defaults, node cycles) and wires the engine. Nothing is started.
func Build(cfg *config.Config, opts Options) (*Engine, error) {
	if opts.Observability == nil {
		opts.Observability = ports.NopObservability{}
	}

	decoders := make(map[string]*decoder.Decoder, len(cfg.Layouts))
	var errs []error
	for name, layout := range cfg.Layouts {
		dec, err := decoder.New(layout)
		if err != nil {
			errs = append(errs, fmt.Errorf("layout %q: %w", name, err))
			continue
		}
		decoders[name] = dec
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	fieldsBySensor := make(map[int]map[string]decoder.Descriptor, len(cfg.Sensors))
	for _, s := range cfg.Sensors {
		dec, ok := decoders[s.Layout]
		if !ok {
			return nil, fmt.Errorf("sensor %d: unknown layout %q", s.ID, s.Layout)
		}
		m := make(map[string]decoder.Descriptor)
		for _, d := range dec.Fields() {
			m[d.Name] = d
		}
		fieldsBySensor[s.ID] = m
	}

	actions, err := resolveActions(cfg.Actions, opts)
	if err != nil {
		return nil, err
	}

	b := condition.NewBuilder()
	refs := make(map[string]condition.Ref, len(cfg.Conditions.Leaves)+len(cfg.Conditions.Nodes))
	bindings := make(map[int]map[string][]condition.Ref)

	for _, l := range cfg.Conditions.Leaves {
		desc, ok := fieldsBySensor[l.Sensor][l.Field]
		if !ok {
			errs = append(errs, fmt.Errorf("leaf %q: sensor %d has no field %q", l.ID, l.Sensor, l.Field))
			continue
		}
		op, err := condition.ParseOperator(l.Op)
		if err != nil {
			errs = append(errs, fmt.Errorf("leaf %q: %w", l.ID, err))
			continue
		}
		threshold, err := decoder.ParseValue(desc.Type, l.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("leaf %q: threshold: %w", l.ID, err))
			continue
		}
		ref := b.Leaf(l.Field, op, threshold)
		refs[l.ID] = ref
		if bindings[l.Sensor] == nil {
			bindings[l.Sensor] = make(map[string][]condition.Ref)
		}
		bindings[l.Sensor][l.Field] = append(bindings[l.Sensor][l.Field], ref)
	}

	order, err := topoSort(cfg.Conditions.Nodes)
	if err != nil {
		errs = append(errs, err)
	}
	for _, n := range order {
		rule, err := condition.ParseRule(n.Rule, n.N)
		if err != nil {
			errs = append(errs, fmt.Errorf("node %q: %w", n.ID, err))
			continue
		}
		children := make([]condition.Ref, 0, len(n.Children))
		for _, c := range n.Children {
			ref, ok := refs[c]
			if !ok {
				errs = append(errs, fmt.Errorf("node %q: unresolved child %q", n.ID, c))
				continue
			}
			children = append(children, ref)
		}
		refs[n.ID] = b.Node(rule, children...)
	}

	for _, r := range cfg.Conditions.Roots {
		target, ok := refs[r.Node]
		if !ok {
			errs = append(errs, fmt.Errorf("root %d: unresolved node %q", r.ID, r.Node))
			continue
		}
		acts := make([]ports.Action, 0, len(r.Actions))
		for _, name := range r.Actions {
			a, ok := actions[name]
			if !ok {
				errs = append(errs, fmt.Errorf("root %d: unknown action %q", r.ID, name))
				continue
			}
			acts = append(acts, a)
		}
		b.Root(r.ID, r.Name, target, acts...)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	reg, err := b.Build(
		condition.WithObservability(opts.Observability),
		condition.WithPublisher(opts.Publisher),
		condition.WithClock(opts.Clock),
	)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		registry: reg,
		sensors:  make(map[int]*sensor.Sensor, len(cfg.Sensors)),
		obs:      opts.Observability,
	}
	for _, sc := range cfg.Sensors {
		s, err := newSensor(sc, decoders[sc.Layout], fieldsBySensor[sc.ID], bindings[sc.ID], cfg.Watchdog.Tick, reg, opts.Observability)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		e.sensors[sc.ID] = s
		e.ids = append(e.ids, sc.ID)
	}
	if err := errors.Join(errs...); err != nil {
		e.Stop()
		return nil, err
	}
	sort.Ints(e.ids)
	return e, nil
}

func newSensor(sc config.SensorConfig, dec *decoder.Decoder, descs map[string]decoder.Descriptor,
	bindings map[string][]condition.Ref, tick time.Duration, reg *condition.Registry, obs ports.Observability) (*sensor.Sensor, error) {
	var errs []error
	defaults := make(map[string]domain.Value, len(sc.Defaults))
	for name, raw := range sc.Defaults {
		desc, ok := descs[name]
		if !ok {
			errs = append(errs, fmt.Errorf("sensor %d: default for unknown field %q", sc.ID, name))
			continue
		}
		v, err := decoder.ParseValue(desc.Type, raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("sensor %d: default %q: %w", sc.ID, name, err))
			continue
		}
		defaults[name] = v
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	fields := make([]sensor.Field, 0, len(descs))
	for _, d := range dec.Fields() {
		fields = append(fields, sensor.Field{Name: d.Name, Kind: d.Kind, Default: defaults[d.Name]})
	}
	timeout := sc.TimeForUpdate
	if timeout < 0 {
		timeout = 0
	}
	return sensor.New(sensor.Config{
		ID:            sc.ID,
		Name:          sc.Name,
		Decoder:       dec,
		Fields:        fields,
		Bindings:      bindings,
		TimeForUpdate: timeout,
		Tick:          tick,
	}, reg, obs)
}

func resolveActions(cfgs []action.Config, opts Options) (map[string]ports.Action, error) {
	out := make(map[string]ports.Action, len(cfgs)+len(opts.Actions))
	for _, c := range cfgs {
		a, err := action.New(c, opts.Logger)
		if err != nil {
			return nil, err
		}
		out[c.Name] = a
	}
	for name, a := range opts.Actions {
		if a == nil {
			return nil, fmt.Errorf("action %q is nil", name)
		}
		out[name] = a
	}
	return out, nil
}

// topoSort orders nodes so every node follows the nodes it references.
func topoSort(nodes []config.NodeConfig) ([]config.NodeConfig, error) {
	byID := make(map[string]int, len(nodes))
	for i, n := range nodes {
		byID[n.ID] = i
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(nodes))
	out := make([]config.NodeConfig, 0, len(nodes))
	var path []string

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			start := 0
			for k, id := range path {
				if id == nodes[i].ID {
					start = k
				}
			}
			cycle := append(append([]string(nil), path[start:]...), nodes[i].ID)
			return fmt.Errorf("%w: cycle %s", condition.ErrInvalidGraph, strings.Join(cycle, " -> "))
		}
		state[i] = visiting
		path = append(path, nodes[i].ID)
		for _, c := range nodes[i].Children {
			if j, ok := byID[c]; ok {
				if err := visit(j); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		state[i] = done
		out = append(out, nodes[i])
		return nil
	}

	for i := range nodes {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// HandlePacket routes a raw frame to its sensor.
func (e *Engine) HandlePacket(ctx context.Context, pkt *domain.Packet) error {
	s, ok := e.sensors[pkt.SensorID]
	if !ok {
		e.obs.IncCounter(ports.MetricPacketsUnknown, 1)
		e.obs.LogDebug("unknown_sensor",
			ports.F("sensor_id", pkt.SensorID),
			ports.F("source", pkt.Source))
		return fmt.Errorf("%w %d", ErrUnknownSensor, pkt.SensorID)
	}
	e.obs.IncCounter(ports.MetricPacketsReceived, 1)
	start := time.Now()
	err := s.HandlePacket(ctx, pkt.Payload)
	e.obs.ObserveLatency(ports.LatencyPacketEval, time.Since(start).Seconds())
	return err
}

// HandleFields applies already decoded fields to a sensor.
func (e *Engine) HandleFields(ctx context.Context, sensorID int, updates []domain.FieldUpdate) error {
	s, ok := e.sensors[sensorID]
	if !ok {
		e.obs.IncCounter(ports.MetricPacketsUnknown, 1)
		return fmt.Errorf("%w %d", ErrUnknownSensor, sensorID)
	}
	s.HandleFields(ctx, updates)
	return nil
}

// Registry exposes the condition registry for queries.
func (e *Engine) Registry() *condition.Registry { return e.registry }

// Active lists the root conditions that are currently true.
func (e *Engine) Active() []condition.ActiveCondition { return e.registry.Active() }

// Sensor returns a configured sensor.
func (e *Engine) Sensor(id int) (*sensor.Sensor, bool) {
	s, ok := e.sensors[id]
	return s, ok
}

// SensorIDs lists configured sensor ids in ascending order.
func (e *Engine) SensorIDs() []int { return append([]int(nil), e.ids...) }

// Stop halts every sensor watchdog.
func (e *Engine) Stop() {
	for _, s := range e.sensors {
		s.Stop()
	}
}
