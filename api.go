// Package aegiswatch re-exports the public API of pkg/aegiswatch so consumers
// can import github.com/ghalamif/AegisWatch directly.
package aegiswatch

import (
	"log/slog"

	base "github.com/ghalamif/AegisWatch/pkg/aegiswatch"
)

// Re-exported errors for convenience.
var (
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
	ErrFeedStopped       = base.ErrFeedStopped
	ErrFeedStarted       = base.ErrFeedStarted
	ErrRuntimeStarted    = base.ErrRuntimeStarted
)

const (
	EventRaised     = base.EventRaised
	EventCleared    = base.EventCleared
	EventReasserted = base.EventReasserted
)

// Type aliases so consumers can import github.com/ghalamif/AegisWatch directly.
type (
	Config            = base.Config
	Policy            = base.Policy
	WatchdogConfig    = base.WatchdogConfig
	OPCUAConfig       = base.OPCUAConfig
	OPCUANodeConfig   = base.OPCUANodeConfig
	UDPConfig         = base.UDPConfig
	UDPListenerConfig = base.UDPListenerConfig
	TimescaleConfig   = base.TimescaleConfig
	MetricsConfig     = base.MetricsConfig
	WALConfig         = base.WALConfig
	LogConfig         = base.LogConfig
	Layout            = base.Layout
	SensorConfig      = base.SensorConfig
	ActionConfig      = base.ActionConfig
	ConditionsConfig  = base.ConditionsConfig
	LeafConfig        = base.LeafConfig
	NodeConfig        = base.NodeConfig
	RootConfig        = base.RootConfig
	Flow              = base.Flow
	FlowOption        = base.FlowOption
	StreamInOption    = base.StreamInOption
	StreamOutOption   = base.StreamOutOption
	Runtime           = base.Runtime
	Option            = base.Option
	Feed              = base.Feed
	Packet            = base.Packet
	Event             = base.Event
	EventKind         = base.EventKind
	EventBatchFunc    = base.EventBatchFunc
	Value             = base.Value
	ActiveCondition   = base.ActiveCondition
	Collector         = base.Collector
	Action            = base.Action
	EventSink         = base.EventSink
	EventQueue        = base.EventQueue
	QueuedEvent       = base.QueuedEvent
	WAL               = base.WAL
	WALStats          = base.WALStats
	WALEntryID        = base.WALEntryID
	Observability     = base.Observability
	Field             = base.Field
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func ParseConfig(raw []byte) (*Config, error) {
	return base.ParseConfig(raw)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...Option) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInCollector(col Collector) StreamInOption {
	return base.StreamInCollector(col)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamInLogger(l *slog.Logger) StreamInOption {
	return base.StreamInLogger(l)
}

func StreamOutAction(name string, a Action) StreamOutOption {
	return base.StreamOutAction(name, a)
}

func StreamOutSink(s EventSink) StreamOutOption {
	return base.StreamOutSink(s)
}

func StreamOutQueue(q EventQueue) StreamOutOption {
	return base.StreamOutQueue(q)
}

func StreamOutWAL(w WAL) StreamOutOption {
	return base.StreamOutWAL(w)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

func StreamOutCallback(name string, fn EventBatchFunc) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...Option) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithCollector(col Collector) Option {
	return base.WithCollector(col)
}

func WithEventSink(s EventSink) Option {
	return base.WithEventSink(s)
}

func WithWAL(w WAL) Option {
	return base.WithWAL(w)
}

func WithEventQueue(q EventQueue) Option {
	return base.WithEventQueue(q)
}

func WithObservability(obs Observability) Option {
	return base.WithObservability(obs)
}

func WithAction(name string, a Action) Option {
	return base.WithAction(name, a)
}

func WithLogger(l *slog.Logger) Option {
	return base.WithLogger(l)
}

// Collectors and sink adapters.
func NewFeed(buffer int) *Feed {
	return base.NewFeed(buffer)
}

func NewCallbackSink(name string, fn EventBatchFunc) EventSink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (EventSink, <-chan []Event, func()) {
	return base.NewChannelSink(name, buffer)
}
