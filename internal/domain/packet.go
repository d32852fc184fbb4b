package domain

import "time"

// Packet is one raw telemetry frame received from a physical sensor.
type Packet struct {
	SensorID  int       `json:"sensor_id"`
	Timestamp time.Time `json:"ts"`
	Seq       uint64    `json:"seq"`
	Payload   []byte    `json:"payload"`
	Source    string    `json:"source"`
}

// FieldUpdate is a single decoded field of a packet.
type FieldUpdate struct {
	Name  string
	Value Value
}
