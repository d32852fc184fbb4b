package aegiswatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ghalamif/AegisWatch/internal/adapters/observability"
	"github.com/ghalamif/AegisWatch/internal/adapters/opcua"
	"github.com/ghalamif/AegisWatch/internal/adapters/queue"
	"github.com/ghalamif/AegisWatch/internal/adapters/sink"
	"github.com/ghalamif/AegisWatch/internal/adapters/udp"
	"github.com/ghalamif/AegisWatch/internal/adapters/wal"
	"github.com/ghalamif/AegisWatch/internal/app/engine"
	"github.com/ghalamif/AegisWatch/internal/app/pipeline"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

// ErrRuntimeStarted is returned when Run is called more than once.
var ErrRuntimeStarted = errors.New("aegiswatch: runtime already started")

const (
	packetBuffer  = 1024
	gaugeInterval = time.Second
)

// Option customizes the dependencies used by Runtime.
type Option func(*runtimeOverrides)

type runtimeOverrides struct {
	collectors    []Collector
	sink          EventSink
	wal           WAL
	queue         EventQueue
	observability Observability
	actions       map[string]Action
	logger        *slog.Logger
}

// WithCollector adds a collector next to the ones built from the config
// (MQTT, Modbus, simulators, etc.).
func WithCollector(col Collector) Option {
	return func(o *runtimeOverrides) {
		if col != nil {
			o.collectors = append(o.collectors, col)
		}
	}
}

// WithEventSink sends journaled alarm events to s instead of TimescaleDB.
// Setting a sink enables the journal even without a connection string.
func WithEventSink(s EventSink) Option {
	return func(o *runtimeOverrides) {
		o.sink = s
	}
}

// WithWAL lets callers bring their own WAL implementation or reuse an existing instance.
func WithWAL(w WAL) Option {
	return func(o *runtimeOverrides) {
		o.wal = w
	}
}

// WithEventQueue injects a custom queue implementation.
func WithEventQueue(q EventQueue) Option {
	return func(o *runtimeOverrides) {
		o.queue = q
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) Option {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithAction registers an action under name, replacing a configured action
// of the same name. Roots reference actions by name in the config.
func WithAction(name string, a Action) Option {
	return func(o *runtimeOverrides) {
		if o.actions == nil {
			o.actions = make(map[string]Action)
		}
		o.actions[name] = a
	}
}

// WithLogger replaces the logger built from the log section of the config.
func WithLogger(l *slog.Logger) Option {
	return func(o *runtimeOverrides) {
		o.logger = l
	}
}

// Runtime wires collectors → engine → journal → sink and exposes simple
// lifecycle hooks for embedding AegisWatch inside any Go service.
type Runtime struct {
	cfg        *Config
	logger     *slog.Logger
	obs        ports.Observability
	registry   *prometheus.Registry
	engine     *engine.Engine
	feed       *Feed
	collectors []ports.Collector

	// Journal; all nil when alarm events are not persisted.
	journal *pipeline.Journal
	wal     ports.WAL
	queue   ports.EventQueue
	sink    ports.EventSink
	db      *sql.DB
	schema  *sink.TimescaleSink

	mu        sync.Mutex
	started   bool
	addr      net.Addr
	ready     chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewRuntime bootstraps the default adapters (OPC UA and UDP collectors,
// file WAL, in-memory queue, Timescale sink, Prometheus observability) and
// builds the condition engine. Callers can use Option values to override any
// dependency. Nothing runs until Run.
func NewRuntime(cfg *Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	logger := overrides.logger
	if logger == nil {
		logger = cfg.Log.NewLogger(os.Stderr)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	obs := overrides.observability
	if obs == nil {
		obs = observability.NewPromObsWith(reg, logger)
	}

	rt := &Runtime{
		cfg:      cfg,
		logger:   logger,
		obs:      obs,
		registry: reg,
		feed:     NewFeed(packetBuffer),
		ready:    make(chan struct{}),
	}

	if err := rt.buildJournal(cfg, overrides); err != nil {
		_ = rt.Close()
		return nil, err
	}

	var publisher ports.EventPublisher
	if rt.journal != nil {
		publisher = rt.journal
	}
	eng, err := engine.Build(cfg, engine.Options{
		Observability: obs,
		Publisher:     publisher,
		Logger:        logger,
		Actions:       overrides.actions,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.engine = eng

	if err := rt.buildCollectors(cfg, overrides.collectors); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (r *Runtime) buildJournal(cfg *Config, o runtimeOverrides) error {
	if o.sink == nil && !cfg.JournalEnabled() {
		return nil
	}

	r.wal = o.wal
	if r.wal == nil {
		w, err := wal.NewFileWAL(cfg.WAL.Dir)
		if err != nil {
			return err
		}
		r.wal = w
	}

	r.queue = o.queue
	if r.queue == nil {
		r.queue = queue.NewMemQueue(cfg.Policy.MaxQueueLen)
	}

	r.sink = o.sink
	if r.sink == nil {
		db, err := sql.Open("postgres", cfg.Timescale.ConnString)
		if err != nil {
			return err
		}
		r.db = db
		ts, err := sink.NewTimescaleSink(db, cfg.Timescale.Table)
		if err != nil {
			return err
		}
		r.sink = ts
		r.schema = ts
	}

	r.journal = pipeline.NewJournal(r.wal, r.queue, cfg.Policy, r.obs)
	return nil
}

func (r *Runtime) buildCollectors(cfg *Config, extra []Collector) error {
	r.collectors = append(r.collectors, r.feed)
	if cfg.OPCUA.Enabled() {
		col, err := opcua.NewCollector(cfg.OPCUA, r.obs)
		if err != nil {
			return err
		}
		r.collectors = append(r.collectors, col)
	}
	if len(cfg.UDP.Listeners) > 0 {
		col, err := udp.NewCollector(cfg.UDP, r.obs)
		if err != nil {
			return err
		}
		r.collectors = append(r.collectors, col)
	}
	r.collectors = append(r.collectors, extra...)
	return nil
}

// Run starts every collector, the journal and the HTTP server, and blocks
// until ctx is cancelled or a component fails. Resources are released
// before it returns.
func (r *Runtime) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrRuntimeStarted
	}
	r.started = true
	r.mu.Unlock()

	if err := r.prepareJournal(ctx); err != nil {
		return errors.Join(err, r.Close())
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, col := range r.collectors {
		col := col
		g.Go(func() error {
			return pipeline.RunEdgePipeline(gctx, col, r.engine, packetBuffer, r.obs)
		})
	}
	if r.journal != nil {
		g.Go(func() error {
			return pipeline.RunIngestPipeline(gctx, r.journal, r.sink)
		})
	}
	g.Go(func() error {
		r.recordGauges(gctx, gaugeInterval)
		return nil
	})
	g.Go(func() error {
		return r.serveHTTP(gctx)
	})

	r.obs.LogInfo("runtime_started",
		ports.F("sensors", len(r.engine.SensorIDs())),
		ports.F("collectors", len(r.collectors)),
		ports.F("journal", r.journal != nil))

	err := g.Wait()
	r.obs.LogInfo("runtime_stopped")
	return errors.Join(err, r.Close())
}

func (r *Runtime) prepareJournal(ctx context.Context) error {
	if r.journal == nil {
		return nil
	}
	if r.schema != nil {
		if err := r.schema.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	if _, err := r.journal.Replay(); err != nil {
		return fmt.Errorf("replay journal: %w", err)
	}
	return nil
}

// Close releases the engine and journal. Run calls it on exit; call it
// directly only for a runtime that was never run.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		var errs []error
		// Unblock watchdogs publishing under the block policy before waiting on them.
		if r.journal != nil {
			r.journal.Close()
		}
		if r.engine != nil {
			r.engine.Stop()
		}
		if r.wal != nil {
			if err := r.wal.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if r.db != nil {
			if err := r.db.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}

// Feed returns the built-in collector fed by Push.
func (r *Runtime) Feed() *Feed { return r.feed }

// HandlePacket evaluates pkt synchronously, bypassing the collectors.
func (r *Runtime) HandlePacket(ctx context.Context, pkt *Packet) error {
	return r.engine.HandlePacket(ctx, pkt)
}

// Active lists the root conditions that are currently true.
func (r *Runtime) Active() []ActiveCondition { return r.engine.Active() }

// IsTrue reports whether root condition id is currently true.
func (r *Runtime) IsTrue(id int) bool { return r.engine.Registry().IsTrue(id) }

// SensorValues returns the current field values of a sensor.
func (r *Runtime) SensorValues(id int) (map[string]Value, bool) {
	s, ok := r.engine.Sensor(id)
	if !ok {
		return nil, false
	}
	return s.Values(), true
}

// Addr is the bound address of the HTTP server. It blocks until the server
// is listening or ctx is done.
func (r *Runtime) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-r.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addr, nil
}

// Handler serves /metrics, /healthz and /alarms.
func (r *Runtime) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/alarms", r.serveAlarms)
	return mux
}

func (r *Runtime) serveAlarms(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	active := r.engine.Active()
	if active == nil {
		active = []ActiveCondition{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(active); err != nil {
		r.obs.LogError("alarms_encode_failed", err)
	}
}

func (r *Runtime) serveHTTP(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	r.mu.Lock()
	r.addr = ln.Addr()
	r.mu.Unlock()
	close(r.ready)

	srv := &http.Server{
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (r *Runtime) recordGauges(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.obs.SetGauge(ports.GaugeActiveConditions, float64(len(r.engine.Active())))
			if r.journal != nil {
				r.obs.SetGauge(ports.GaugeWALSize, float64(r.wal.Stats().SizeBytes))
				r.obs.SetGauge(ports.GaugeQueueLength, float64(r.queue.Len()))
			}
		}
	}
}
