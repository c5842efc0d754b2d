package implementation

import (
	"encoding/json"
	"time"

	srsmodels "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Models"
)

// DefaultSensors returns the sensors the service starts with
func DefaultSensors(now time.Time) []srsmodels.Sensor {
	return []srsmodels.Sensor{
		{ID: 1, Name: "Temperature Sensor", Value: json.RawMessage("22.5"), Unit: "C", Location: "Living Room", LastUpdate: now},
		{ID: 2, Name: "Humidity Sensor", Value: json.RawMessage("45"), Unit: "%", Location: "Bathroom", LastUpdate: now},
		{ID: 3, Name: "CO2 Sensor", Value: json.RawMessage("415"), Unit: "ppm", Location: "Kitchen", LastUpdate: now},
	}
}
