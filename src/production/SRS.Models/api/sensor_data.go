package api_models

import "encoding/json"

// SensorDataRequest is the body of POST /api/sensors/:id/data.
// Value stays raw: any JSON value is accepted, null included.
type SensorDataRequest struct {
	Value json.RawMessage `json:"value"`
}

// HasValue reports whether the payload carried a value key at all
func (r SensorDataRequest) HasValue() bool {
	return len(r.Value) > 0
}
