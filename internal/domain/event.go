package domain

import "time"

// EventKind describes what happened to a root condition.
type EventKind string

const (
	// EventRaised is emitted when a root condition turns true.
	EventRaised EventKind = "raised"
	// EventCleared is emitted when a root condition turns false.
	EventCleared EventKind = "cleared"
	// EventReasserted is emitted when a still-true condition is re-fired after a
	// sensor went stale and was reverted to its defaults.
	EventReasserted EventKind = "reasserted"
)

// Event is the unit written to the alarm journal.
type Event struct {
	ID            string    `json:"id"`
	Kind          EventKind `json:"kind"`
	ConditionID   int       `json:"condition_id"`
	ConditionName string    `json:"condition_name"`
	SensorID      int       `json:"sensor_id"`
	Timestamp     time.Time `json:"ts"`
}
