package segmentation

import (
	"math"
	"time"

	"airquality-platform/internal/models"
)

// locationHour keys rows by location and unix hour start
type locationHour struct {
	locationID string
	unix       int64
}

func keyOf(locationID string, ts time.Time) locationHour {
	return locationHour{locationID: locationID, unix: ts.Unix()}
}

// Normalize cleans raw measurements and joins them to sensor and location
// metadata. Measurements from unknown sensors are kept with an empty
// location id. No deduplication happens here.
//
// Rows outside the parameter allow-list or before AnalysisStart are dropped,
// values outside [ValueMin, ValueMax) are nulled, and ConcurrentSensors counts
// the non-null values sharing each (location, hour).
func Normalize(params Params, measurements []models.RawMeasurement, sensors []models.Sensor, locations []models.Location) []models.NormalizedMeasurement {
	sensorByID := make(map[string]*models.Sensor, len(sensors))
	for i := range sensors {
		sensorByID[sensors[i].ID] = &sensors[i]
	}

	locationByID := make(map[string]*models.Location, len(locations))
	for i := range locations {
		locationByID[locations[i].ID] = &locations[i]
	}

	out := make([]models.NormalizedMeasurement, 0, len(measurements))
	concurrency := make(map[locationHour]int)

	for _, m := range measurements {
		pollutant, tracked := params.PollutantFor(m.ParameterID)
		if !tracked {
			continue
		}

		ts := m.DatetimeUTC.UTC()
		if ts.Before(params.AnalysisStart) {
			continue
		}

		n := models.NormalizedMeasurement{
			SensorID:    m.SensorID,
			ParameterID: m.ParameterID,
			Pollutant:   pollutant,
			Value:       params.clean(m.Value),
			DatetimeUTC: ts,
		}

		if sensor, ok := sensorByID[m.SensorID]; ok {
			n.Sensor = sensor
			n.LocationID = sensor.LocationID
			n.Location = locationByID[sensor.LocationID]
		}

		if n.Value != nil {
			concurrency[keyOf(n.LocationID, ts)]++
		}

		out = append(out, n)
	}

	for i := range out {
		out[i].ConcurrentSensors = concurrency[keyOf(out[i].LocationID, out[i].DatetimeUTC)]
	}

	return out
}

// clean returns a copy of value, or nil when it is outside the valid range
func (p Params) clean(value *float64) *float64 {
	if value == nil {
		return nil
	}
	if math.IsNaN(*value) || *value < p.ValueMin || *value >= p.ValueMax {
		return nil
	}
	v := *value
	return &v
}
