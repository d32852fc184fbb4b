package aegiswatch

import (
	"github.com/ghalamif/AegisWatch/internal/adapters/action"
	"github.com/ghalamif/AegisWatch/internal/adapters/opcua"
	"github.com/ghalamif/AegisWatch/internal/adapters/udp"
	"github.com/ghalamif/AegisWatch/internal/app/config"
	"github.com/ghalamif/AegisWatch/internal/decoder"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy controls the alarm journal's WAL/queue thresholds.
	Policy = ports.Policy
	// WatchdogConfig sets the default staleness timeout and tick.
	WatchdogConfig = config.WatchdogConfig
	// OPCUAConfig holds connection + node details.
	OPCUAConfig = opcua.Config
	// OPCUANodeConfig maps a monitored tag to a sensor id.
	OPCUANodeConfig = opcua.NodeConfig
	// UDPConfig lists datagram listeners.
	UDPConfig = udp.Config
	// UDPListenerConfig binds one socket to a sensor id.
	UDPListenerConfig = udp.ListenerConfig
	// TimescaleConfig configures the event sink.
	TimescaleConfig = config.TimescaleConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// WALConfig configures on-disk durability.
	WALConfig = config.WALConfig
	// LogConfig selects the log level and format.
	LogConfig = config.LogConfig
	// Layout describes a packet's binary layout.
	Layout = decoder.Layout
	// SensorConfig declares a sensor instance.
	SensorConfig = config.SensorConfig
	// ActionConfig declares a named action.
	ActionConfig = action.Config
	// ConditionsConfig holds leaves, nodes and roots.
	ConditionsConfig = config.ConditionsConfig
	LeafConfig       = config.LeafConfig
	NodeConfig       = config.NodeConfig
	RootConfig       = config.RootConfig
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig decodes, defaults and validates an in-memory YAML document.
func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw)
}
