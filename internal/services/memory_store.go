package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"airquality-platform/internal/models"
)

type measurementKey struct {
	sensorID string
	hour     int64
}

type weatherKey struct {
	locationID string
	hour       int64
}

// MemoryStore is an in-process store with the same merge semantics as the
// SQL repository. It backs the demo command and service tests.
type MemoryStore struct {
	mu           sync.RWMutex
	locations    map[string]models.Location
	sensors      map[string]models.Sensor
	measurements map[measurementKey]models.RawMeasurement
	weather      map[weatherKey]models.WeatherObservation
	segments     []models.Segment
	rows         []models.TrainingRow
	runs         []models.SegmentationRun
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locations:    make(map[string]models.Location),
		sensors:      make(map[string]models.Sensor),
		measurements: make(map[measurementKey]models.RawMeasurement),
		weather:      make(map[weatherKey]models.WeatherObservation),
	}
}

func (m *MemoryStore) UpsertLocations(_ context.Context, locations []*models.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range locations {
		m.locations[l.ID] = *l
	}
	return nil
}

func (m *MemoryStore) UpsertSensors(_ context.Context, sensors []*models.Sensor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range sensors {
		m.sensors[s.ID] = *s
	}
	return nil
}

// MergeMeasurements keeps the most recently updated row per (sensor, hour).
// On equal timestamps the stored row wins.
func (m *MemoryStore) MergeMeasurements(_ context.Context, measurements []*models.RawMeasurement) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	applied := 0
	for _, meas := range measurements {
		key := measurementKey{sensorID: meas.SensorID, hour: meas.DatetimeUTC.Unix()}
		if stored, ok := m.measurements[key]; ok && !meas.UpdatedAt.After(stored.UpdatedAt) {
			continue
		}
		m.measurements[key] = *meas
		applied++
	}
	return applied, nil
}

func (m *MemoryStore) UpsertWeather(_ context.Context, observations []*models.WeatherObservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range observations {
		m.weather[weatherKey{locationID: o.LocationID, hour: o.DatetimeUTC.Unix()}] = *o
	}
	return nil
}

func (m *MemoryStore) AllLocations(_ context.Context) ([]models.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Location, 0, len(m.locations))
	for _, l := range m.locations {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) AllSensors(_ context.Context) ([]models.Sensor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Sensor, 0, len(m.sensors))
	for _, s := range m.sensors {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MeasurementsSince returns measurements at or after since, ordered by
// sensor then hour
func (m *MemoryStore) MeasurementsSince(_ context.Context, since time.Time) ([]models.RawMeasurement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.RawMeasurement, 0, len(m.measurements))
	for _, meas := range m.measurements {
		if meas.DatetimeUTC.Before(since) {
			continue
		}
		out = append(out, meas)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SensorID != out[j].SensorID {
			return out[i].SensorID < out[j].SensorID
		}
		return out[i].DatetimeUTC.Before(out[j].DatetimeUTC)
	})
	return out, nil
}

// ReplaceSegmentation swaps in the output of one run
func (m *MemoryStore) ReplaceSegmentation(_ context.Context, segments []models.Segment, rows []models.TrainingRow, run *models.SegmentationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.segments = append([]models.Segment(nil), segments...)
	m.rows = append([]models.TrainingRow(nil), rows...)
	if run != nil {
		m.runs = append(m.runs, *run)
	}
	return nil
}

// Segments returns the stored segments
func (m *MemoryStore) Segments() []models.Segment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Segment(nil), m.segments...)
}

// TrainingRows returns the stored training rows
func (m *MemoryStore) TrainingRows() []models.TrainingRow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.TrainingRow(nil), m.rows...)
}

// Runs returns every recorded run, oldest first
func (m *MemoryStore) Runs() []models.SegmentationRun {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.SegmentationRun(nil), m.runs...)
}

// WeatherCount returns the number of stored weather observations
func (m *MemoryStore) WeatherCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.weather)
}
