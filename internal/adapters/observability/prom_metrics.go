package observability

import (
	"context"
	"log/slog"

	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
)

// PromObs backs ports.Observability with Prometheus collectors and a
// structured slog logger.
type PromObs struct {
	logger   *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the engine metrics on the default registerer.
func NewPromObs(logger *slog.Logger) *PromObs {
	return NewPromObsWith(prometheus.DefaultRegisterer, logger)
}

// NewPromObsWith registers the engine metrics on reg.
func NewPromObsWith(reg prometheus.Registerer, logger *slog.Logger) *PromObs {
	if logger == nil {
		logger = slog.Default()
	}
	p := &PromObs{
		logger:   logger,
		counters: make(map[string]prometheus.Counter),
		gauges:   make(map[string]prometheus.Gauge),
		histos:   make(map[string]prometheus.Observer),
	}

	counter := func(name, help string) {
		p.counters[name] = prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	counter(ports.MetricPacketsReceived, "Raw sensor packets handed to the engine.")
	counter(ports.MetricPacketsUnknown, "Packets addressed to a sensor id that is not configured.")
	counter(ports.MetricPacketsDropped, "Packets discarded before evaluation.")
	counter(ports.MetricDecodeErrors, "Frames that could not be fully decoded.")
	counter(ports.MetricKindMismatches, "Field updates whose kind did not match the field or threshold.")
	counter(ports.MetricTransitions, "Root condition transitions between false and true.")
	counter(ports.MetricActionsFired, "Actions executed for raised or reasserted conditions.")
	counter(ports.MetricActionFailures, "Actions that returned an error or panicked.")
	counter(ports.MetricWatchdogExpirations, "Sensors reverted to defaults after going stale.")
	counter(ports.MetricEventsPersisted, "Alarm events written to the event sink.")
	counter(ports.MetricEventsDropped, "Alarm events lost to journal backpressure.")
	counter(ports.MetricDLQ, "Alarm events the sink rejected.")

	p.gauges[ports.GaugeActiveConditions] = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.GaugeActiveConditions,
		Help: "Root conditions currently true.",
	})
	p.gauges[ports.GaugeWALSize] = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.GaugeWALSize,
		Help: "Size of the event WAL on disk.",
	})
	p.gauges[ports.GaugeQueueLength] = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.GaugeQueueLength,
		Help: "Alarm events buffered in the in-memory queue.",
	})

	evalLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.LatencyPacketEval,
		Help:    "Time to decode a packet and propagate its fields.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16),
	})
	sinkLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.LatencyEventSink,
		Help:    "Latency of a batch write to the event sink.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	p.histos[ports.LatencyPacketEval] = evalLatency
	p.histos[ports.LatencyEventSink] = sinkLatency

	collectors := []prometheus.Collector{evalLatency, sinkLatency}
	for _, c := range p.counters {
		collectors = append(collectors, c)
	}
	for _, g := range p.gauges {
		collectors = append(collectors, g)
	}
	reg.MustRegister(collectors...)
	return p
}

func attrs(fields []ports.Field) []slog.Attr {
	out := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}

func (p *PromObs) log(level slog.Level, msg string, err error, fields []ports.Field) {
	a := attrs(fields)
	if err != nil {
		a = append(a, slog.String("error", err.Error()))
	}
	p.logger.LogAttrs(context.Background(), level, msg, a...)
}

func (p *PromObs) LogDebug(msg string, fields ...ports.Field) {
	p.log(slog.LevelDebug, msg, nil, fields)
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log(slog.LevelInfo, msg, nil, fields)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log(slog.LevelError, msg, err, fields)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.log(slog.LevelError, msg, err, append(fields, ports.F("critical", true)))
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordDLQ(id ports.WALEntryID, ev *domain.Event, err error) {
	p.IncCounter(ports.MetricDLQ, 1)
	if err == nil {
		return
	}
	fields := []ports.Field{ports.F("wal_id", uint64(id))}
	if ev != nil {
		fields = append(fields,
			ports.F("event_id", ev.ID),
			ports.F("condition_id", ev.ConditionID))
	}
	p.log(slog.LevelError, "event_dlq", err, fields)
}

var _ ports.Observability = (*PromObs)(nil)
