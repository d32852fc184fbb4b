package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ghalamif/AegisWatch/internal/adapters/action"
	"github.com/ghalamif/AegisWatch/internal/adapters/opcua"
	"github.com/ghalamif/AegisWatch/internal/adapters/udp"
	"github.com/ghalamif/AegisWatch/internal/condition"
	"github.com/ghalamif/AegisWatch/internal/decoder"
	"github.com/ghalamif/AegisWatch/internal/ports"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Policy     ports.Policy              `yaml:"policy"`
	Watchdog   WatchdogConfig            `yaml:"watchdog"`
	OPCUA      opcua.Config              `yaml:"opcua"`
	UDP        udp.Config                `yaml:"udp"`
	Timescale  TimescaleConfig           `yaml:"timescale"`
	Metrics    MetricsConfig             `yaml:"metrics"`
	WAL        WALConfig                 `yaml:"wal"`
	Log        LogConfig                 `yaml:"log"`
	Layouts    map[string]decoder.Layout `yaml:"layouts"`
	Sensors    []SensorConfig            `yaml:"sensors"`
	Actions    []action.Config           `yaml:"actions"`
	Conditions ConditionsConfig          `yaml:"conditions"`
}

type WatchdogConfig struct {
	Tick          time.Duration `yaml:"tick"`
	TimeForUpdate int           `yaml:"time_for_update"`
}

type TimescaleConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type WALConfig struct {
	Dir string `yaml:"dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NewLogger builds the process logger described by the log section.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SensorConfig declares a sensor instance. A negative TimeForUpdate disables
// its watchdog; zero inherits watchdog.time_for_update.
type SensorConfig struct {
	ID            int            `yaml:"id"`
	Name          string         `yaml:"name"`
	Layout        string         `yaml:"layout"`
	TimeForUpdate int            `yaml:"time_for_update"`
	Defaults      map[string]any `yaml:"defaults"`
}

type ConditionsConfig struct {
	Leaves []LeafConfig `yaml:"leaves"`
	Nodes  []NodeConfig `yaml:"nodes"`
	Roots  []RootConfig `yaml:"roots"`
}

// LeafConfig compares one sensor field against a threshold.
type LeafConfig struct {
	ID     string `yaml:"id"`
	Sensor int    `yaml:"sensor"`
	Field  string `yaml:"field"`
	Op     string `yaml:"op"`
	Value  any    `yaml:"value"`
}

// NodeConfig aggregates leaves and other nodes by id.
type NodeConfig struct {
	ID       string   `yaml:"id"`
	Rule     string   `yaml:"rule"`
	N        int      `yaml:"n"`
	Children []string `yaml:"children"`
}

// RootConfig exposes a node as a monitored condition.
type RootConfig struct {
	ID      int      `yaml:"id"`
	Name    string   `yaml:"name"`
	Node    string   `yaml:"node"`
	Actions []string `yaml:"actions"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes, defaults and validates a YAML document.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// JournalEnabled reports whether alarm events are persisted.
func (c *Config) JournalEnabled() bool { return c.Timescale.ConnString != "" }

func (c *Config) applyDefaults() {
	if c.Policy.MaxWALSizeBytes == 0 {
		c.Policy.MaxWALSizeBytes = 1 << 30
	}
	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = 10_000
	}
	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = 500
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = 50 * time.Millisecond
	}
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = "block"
	}
	if c.Policy.OnWALFull == "" {
		c.Policy.OnWALFull = "block"
	}
	if c.Watchdog.Tick == 0 {
		c.Watchdog.Tick = time.Second
	}
	if c.Watchdog.TimeForUpdate == 0 {
		c.Watchdog.TimeForUpdate = 10
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Timescale.Table == "" {
		c.Timescale.Table = "alarm_events"
	}
	if c.WAL.Dir == "" {
		c.WAL.Dir = "./data/wal"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	for i := range c.Sensors {
		if c.Sensors[i].TimeForUpdate == 0 {
			c.Sensors[i].TimeForUpdate = c.Watchdog.TimeForUpdate
		}
		if c.Sensors[i].Name == "" {
			c.Sensors[i].Name = fmt.Sprintf("sensor-%d", c.Sensors[i].ID)
		}
	}
	for i := range c.Conditions.Leaves {
		if c.Conditions.Leaves[i].Op == "" {
			c.Conditions.Leaves[i].Op = "=="
		}
	}
	if c.OPCUA.Enabled() {
		c.OPCUA.ApplyDefaults()
	}
}

func (c *Config) validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.OPCUA.Enabled() {
		if err := c.OPCUA.Validate(); err != nil {
			add("opcua config: %w", err)
		}
	}
	if err := c.UDP.Validate(); err != nil {
		add("udp config: %w", err)
	}
	if c.Metrics.Addr == "" {
		add("metrics.addr is required")
	}
	if c.WAL.Dir == "" {
		add("wal.dir is required")
	}
	if c.Watchdog.Tick < 0 {
		add("watchdog.tick must be positive")
	}
	if !oneOf(c.Policy.OnQueueFull, "block", "drop", "reject") {
		add("policy.on_queue_full %q must be block, drop or reject", c.Policy.OnQueueFull)
	}
	if !oneOf(c.Policy.OnWALFull, "block", "drop") {
		add("policy.on_wal_full %q must be block or drop", c.Policy.OnWALFull)
	}
	if !oneOf(strings.ToLower(c.Log.Level), "debug", "info", "warn", "error") {
		add("log.level %q is not a level", c.Log.Level)
	}
	if !oneOf(c.Log.Format, "text", "json") {
		add("log.format %q must be text or json", c.Log.Format)
	}

	for name, layout := range c.Layouts {
		if err := layout.Validate(); err != nil {
			add("layout %q: %w", name, err)
		}
	}

	sensors := make(map[int]SensorConfig, len(c.Sensors))
	for _, s := range c.Sensors {
		if s.ID <= 0 {
			add("sensor %q: id must be positive", s.Name)
			continue
		}
		if _, dup := sensors[s.ID]; dup {
			add("sensor %d declared twice", s.ID)
			continue
		}
		sensors[s.ID] = s
		if _, ok := c.Layouts[s.Layout]; !ok {
			add("sensor %d: unknown layout %q", s.ID, s.Layout)
		}
	}
	for _, n := range c.OPCUA.Nodes {
		if _, ok := sensors[n.SensorID]; !ok && c.OPCUA.Enabled() {
			add("opcua node %q: unknown sensor %d", n.NodeID, n.SensorID)
		}
	}
	for _, l := range c.UDP.Listeners {
		if _, ok := sensors[l.SensorID]; !ok {
			add("udp listener %s: unknown sensor %d", l.Addr, l.SensorID)
		}
	}

	actions := make(map[string]struct{}, len(c.Actions))
	for i := range c.Actions {
		a := &c.Actions[i]
		if err := a.Validate(); err != nil {
			add("actions: %w", err)
			continue
		}
		if _, dup := actions[a.Name]; dup {
			add("action %q declared twice", a.Name)
		}
		actions[a.Name] = struct{}{}
	}

	errs = append(errs, c.validateConditions(sensors, actions)...)
	return errors.Join(errs...)
}

func (c *Config) validateConditions(sensors map[int]SensorConfig, actions map[string]struct{}) []error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	ids := make(map[string]string)
	claim := func(id, what string) bool {
		if id == "" {
			add("%s with empty id", what)
			return false
		}
		if prev, dup := ids[id]; dup {
			add("%s %q: id already used by a %s", what, id, prev)
			return false
		}
		ids[id] = what
		return true
	}

	for _, l := range c.Conditions.Leaves {
		claim(l.ID, "leaf")
		if _, err := condition.ParseOperator(l.Op); err != nil {
			add("leaf %q: %w", l.ID, err)
		}
		s, ok := sensors[l.Sensor]
		if !ok {
			add("leaf %q: unknown sensor %d", l.ID, l.Sensor)
			continue
		}
		if l.Value == nil {
			add("leaf %q: value is required", l.ID)
		}
		if layout, ok := c.Layouts[s.Layout]; ok && !layoutHasField(layout, l.Field) {
			add("leaf %q: sensor %d has no field %q", l.ID, l.Sensor, l.Field)
		}
	}
	for _, n := range c.Conditions.Nodes {
		claim(n.ID, "node")
		if _, err := condition.ParseRule(n.Rule, n.N); err != nil {
			add("node %q: %w", n.ID, err)
		}
	}
	for _, n := range c.Conditions.Nodes {
		for _, child := range n.Children {
			if _, ok := ids[child]; !ok {
				add("node %q: unknown child %q", n.ID, child)
			}
		}
	}

	roots := make(map[int]struct{}, len(c.Conditions.Roots))
	for _, r := range c.Conditions.Roots {
		if _, dup := roots[r.ID]; dup {
			add("root %d declared twice", r.ID)
		}
		roots[r.ID] = struct{}{}
		if ids[r.Node] != "node" {
			add("root %d: %q is not a node", r.ID, r.Node)
		}
		for _, a := range r.Actions {
			if _, ok := actions[a]; !ok {
				add("root %d: unknown action %q", r.ID, a)
			}
		}
	}
	return errs
}

func layoutHasField(l decoder.Layout, name string) bool {
	for _, f := range l.Fields {
		if f.Type == decoder.TypeBitField {
			for _, b := range f.Bits {
				if b.Name == name {
					return true
				}
			}
			continue
		}
		if f.Name == name {
			return true
		}
	}
	return false
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
