package aegiswatch

import (
	"github.com/ghalamif/AegisWatch/internal/condition"
	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

// Packet is one raw frame addressed to a sensor.
type Packet = domain.Packet

// Event is the alarm record emitted on every root transition.
type Event = domain.Event

// EventKind tells raised, cleared and reasserted events apart.
type EventKind = domain.EventKind

const (
	EventRaised     = domain.EventRaised
	EventCleared    = domain.EventCleared
	EventReasserted = domain.EventReasserted
)

// Value is a decoded, typed field value.
type Value = domain.Value

// ActiveCondition describes a root that is currently true.
type ActiveCondition = condition.ActiveCondition

// Collector streams packets from any transport (OPC UA, UDP, MQTT, ...) into the engine.
type Collector = ports.Collector

// Action is invoked when a root condition turns true or is reasserted.
type Action = ports.Action

// EventQueue is the bounded, in-memory queue between the journal and the sink.
type EventQueue = ports.EventQueue

// QueuedEvent represents an item buffered inside the bounded queue.
type QueuedEvent = ports.QueuedEvent

// EventSink consumes batches of alarm events and persists them downstream.
type EventSink = ports.EventSink

// Observability emits metrics/logs about evaluation, actions and the journal.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// WAL abstracts the write-ahead log used to make alarm events durable.
type WAL = ports.WAL

// WALStats exposes WAL metadata for observability.
type WALStats = ports.WALStats

// WALEntryID uniquely identifies a WAL entry.
type WALEntryID = ports.WALEntryID
