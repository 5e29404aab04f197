package models

import (
	"time"
)

// WeatherObservation holds hourly weather covariates for one location
// NULL values represented as pointers for empty export cells
type WeatherObservation struct {
	LocationID         string    `json:"location_id" db:"location_id"`
	DatetimeUTC        time.Time `json:"datetimeto_utc" db:"datetime_utc"`
	Temperature2m      *float64  `json:"temperature_2m,omitempty" db:"temperature_2m"`
	RelativeHumidity2m *float64  `json:"relative_humidity_2m,omitempty" db:"relative_humidity_2m"`
	DewPoint2m         *float64  `json:"dew_point_2m,omitempty" db:"dew_point_2m"`
	Precipitation      *float64  `json:"precipitation,omitempty" db:"precipitation"`
	PressureMSL        *float64  `json:"pressure_msl,omitempty" db:"pressure_msl"`
	CloudCover         *float64  `json:"cloud_cover,omitempty" db:"cloud_cover"`
	WindSpeed10m       *float64  `json:"wind_speed_10m,omitempty" db:"wind_speed_10m"`
	WindDirection10m   *float64  `json:"wind_direction_10m,omitempty" db:"wind_direction_10m"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// WeatherRecord is one row of an hourly weather export, keyed by CSV header
type WeatherRecord map[string]string

// ToObservation converts a weather export row to a WeatherObservation.
// Empty cells become NULL; unparseable numbers are rejected.
func (r WeatherRecord) ToObservation() (*WeatherObservation, error) {
	locationID, err := requiredField(r, "location_id")
	if err != nil {
		return nil, err
	}

	ts, err := parseHourTimestamp("datetimeto_utc", r["datetimeto_utc"])
	if err != nil {
		return nil, err
	}

	obs := &WeatherObservation{
		LocationID:  locationID,
		DatetimeUTC: ts,
		UpdatedAt:   time.Now().UTC(),
	}

	covariates := []struct {
		field string
		dest  **float64
	}{
		{"temperature_2m", &obs.Temperature2m},
		{"relative_humidity_2m", &obs.RelativeHumidity2m},
		{"dew_point_2m", &obs.DewPoint2m},
		{"precipitation", &obs.Precipitation},
		{"pressure_msl", &obs.PressureMSL},
		{"cloud_cover", &obs.CloudCover},
		{"wind_speed_10m", &obs.WindSpeed10m},
		{"wind_direction_10m", &obs.WindDirection10m},
	}

	for _, c := range covariates {
		v, err := parseOptionalFloat(c.field, r[c.field])
		if err != nil {
			return nil, err
		}
		*c.dest = v
	}

	return obs, nil
}
