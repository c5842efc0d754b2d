package implementation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	srsmodels "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Models"
	interfaces "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Repository/Interfaces"
)

// InMemorySensorRepository keeps the registry in process memory.
// Membership is fixed at construction; only readings change.
type InMemorySensorRepository struct {
	mu      sync.RWMutex
	sensors []srsmodels.Sensor
}

var _ interfaces.SensorRepository = (*InMemorySensorRepository)(nil)

// NewInMemorySensorRepository seeds a registry with the given sensors.
// Ids must be positive and unique.
func NewInMemorySensorRepository(seed []srsmodels.Sensor) (*InMemorySensorRepository, error) {
	seen := make(map[int]struct{}, len(seed))
	for _, s := range seed {
		if s.ID <= 0 {
			return nil, fmt.Errorf("sensor %q has non-positive id %d", s.Name, s.ID)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("duplicate sensor id %d", s.ID)
		}
		seen[s.ID] = struct{}{}
	}

	sensors := make([]srsmodels.Sensor, len(seed))
	for i, s := range seed {
		sensors[i] = s.Clone()
	}
	return &InMemorySensorRepository{sensors: sensors}, nil
}

func (r *InMemorySensorRepository) ListSensors(ctx context.Context) ([]srsmodels.Sensor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]srsmodels.Sensor, len(r.sensors))
	for i, s := range r.sensors {
		out[i] = s.Clone()
	}
	return out, nil
}

func (r *InMemorySensorRepository) GetSensor(ctx context.Context, id string) (*srsmodels.Sensor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil, interfaces.ErrSensorNotFound
	}
	sensor := r.sensors[i].Clone()
	return &sensor, nil
}

func (r *InMemorySensorRepository) UpdateSensorValue(ctx context.Context, id string, value json.RawMessage, at time.Time) (*srsmodels.Sensor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil, interfaces.ErrSensorNotFound
	}

	sensor := &r.sensors[i]
	sensor.Value = append(json.RawMessage(nil), value...)
	// lastUpdate never moves backwards, even if the caller's clock does
	if at.After(sensor.LastUpdate) {
		sensor.LastUpdate = at
	}

	updated := sensor.Clone()
	return &updated, nil
}

func (r *InMemorySensorRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sensors)
}

// indexOf does a linear scan; an id with no leading integer matches nothing.
// Callers must hold the lock.
func (r *InMemorySensorRepository) indexOf(id string) int {
	n, ok := parseLeadingInt(id)
	if !ok {
		return -1
	}
	for i := range r.sensors {
		if r.sensors[i].ID == n {
			return i
		}
	}
	return -1
}

// parseLeadingInt reads an integer the way JavaScript's parseInt does without
// a radix: leading whitespace and one sign are skipped, a 0x prefix switches
// to hexadecimal, and parsing stops at the first character that is not a digit.
// "1abc" and "1.5" both give 1.
func parseLeadingInt(s string) (int, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)

	negative := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		negative = s[0] == '-'
		s = s[1:]
	}

	base := 10
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base = 16
		s = s[2:]
	}

	end := 0
	for end < len(s) && isDigit(s[end], base) {
		end++
	}
	if end == 0 {
		return 0, false
	}

	n, err := strconv.ParseInt(s[:end], base, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		n = -n
	}
	return int(n), true
}

func isDigit(c byte, base int) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case base == 16 && c >= 'a' && c <= 'f':
		return true
	case base == 16 && c >= 'A' && c <= 'F':
		return true
	}
	return false
}
