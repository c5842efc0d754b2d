package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	srsmodels "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Models"
)

// ErrSensorNotFound is returned when no sensor matches the requested id
var ErrSensorNotFound = errors.New("sensor not found")

type SensorRepository interface {
	// Read sensors, in insertion order. Ids resolve like JavaScript parseInt.
	ListSensors(ctx context.Context) ([]srsmodels.Sensor, error)
	GetSensor(ctx context.Context, id string) (*srsmodels.Sensor, error)

	// Overwrite the reading of one sensor and stamp it with at
	UpdateSensorValue(ctx context.Context, id string, value json.RawMessage, at time.Time) (*srsmodels.Sensor, error)

	// Number of registered sensors
	Count() int
}
