package srsmodels

import (
	"encoding/json"
	"time"
)

// Sensor is one environmental sensor's identity and latest reading.
// Value holds the reading exactly as it was submitted.
type Sensor struct {
	ID         int             `json:"id"`
	Name       string          `json:"name"`
	Value      json.RawMessage `json:"value"`
	Unit       string          `json:"unit"`
	Location   string          `json:"location"`
	LastUpdate time.Time       `json:"lastUpdate"`
}

// Clone returns a copy that shares no memory with s
func (s Sensor) Clone() Sensor {
	s.Value = append(json.RawMessage(nil), s.Value...)
	return s
}
