package models

import (
	"errors"
	"testing"
	"time"
)

// TestMeasurementRecord_ToMeasurement tests export row conversion
func TestMeasurementRecord_ToMeasurement(t *testing.T) {
	tests := []struct {
		name        string
		record      MeasurementRecord
		wantErr     bool
		wantField   string
		checkValues func(*testing.T, *RawMeasurement)
	}{
		{
			name: "valid record with all values",
			record: MeasurementRecord{
				"sensor_id":               "1001",
				"value":                   "12.5",
				"parameter_id":            "2",
				"parameter_name":          "pm25",
				"parameter_units":         "µg/m³",
				"period_datetimeto_utc":   "2024-03-01T05:00:00Z",
				"period_datetimeto_local": "2024-03-01T14:00:00",
				"updated_at":              "2024-03-02T00:00:00Z",
			},
			checkValues: func(t *testing.T, m *RawMeasurement) {
				if m.SensorID != "1001" {
					t.Errorf("SensorID = %v, want %v", m.SensorID, "1001")
				}

				expected := time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC)
				if !m.DatetimeUTC.Equal(expected) {
					t.Errorf("DatetimeUTC = %v, want %v", m.DatetimeUTC, expected)
				}

				if m.Value == nil {
					t.Error("Value should not be nil")
				} else if *m.Value != 12.5 {
					t.Errorf("Value = %v, want %v", *m.Value, 12.5)
				}

				wantUpdated := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
				if !m.UpdatedAt.Equal(wantUpdated) {
					t.Errorf("UpdatedAt = %v, want %v", m.UpdatedAt, wantUpdated)
				}

				if m.DatetimeLocal == nil || *m.DatetimeLocal != "2024-03-01T14:00:00" {
					t.Errorf("DatetimeLocal = %v, want 2024-03-01T14:00:00", m.DatetimeLocal)
				}
			},
		},
		{
			name: "empty value is kept as NULL",
			record: MeasurementRecord{
				"sensor_id":             "1001",
				"value":                 "",
				"parameter_id":          "2",
				"period_datetimeto_utc": "2024-03-01 05:00:00+00:00",
			},
			checkValues: func(t *testing.T, m *RawMeasurement) {
				if m.Value != nil {
					t.Errorf("Value = %v, want nil", *m.Value)
				}
			},
		},
		{
			name: "out of range value is not filtered at parse time",
			record: MeasurementRecord{
				"sensor_id":             "1001",
				"value":                 "-999",
				"parameter_id":          "2",
				"period_datetimeto_utc": "2024-03-01T05:00:00Z",
			},
			checkValues: func(t *testing.T, m *RawMeasurement) {
				if m.Value == nil || *m.Value != -999 {
					t.Errorf("Value = %v, want -999", m.Value)
				}
			},
		},
		{
			name: "offset timestamps are converted to UTC",
			record: MeasurementRecord{
				"sensor_id":             "1001",
				"value":                 "1",
				"parameter_id":          "7",
				"period_datetimeto_utc": "2024-03-01T14:00:00+09:00",
			},
			checkValues: func(t *testing.T, m *RawMeasurement) {
				expected := time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC)
				if !m.DatetimeUTC.Equal(expected) {
					t.Errorf("DatetimeUTC = %v, want %v", m.DatetimeUTC, expected)
				}
			},
		},
		{
			name: "missing sensor id",
			record: MeasurementRecord{
				"value":                 "1",
				"parameter_id":          "7",
				"period_datetimeto_utc": "2024-03-01T05:00:00Z",
			},
			wantErr:   true,
			wantField: "sensor_id",
		},
		{
			name: "timestamp not aligned to the hour",
			record: MeasurementRecord{
				"sensor_id":             "1001",
				"value":                 "1",
				"parameter_id":          "7",
				"period_datetimeto_utc": "2024-03-01T05:30:00Z",
			},
			wantErr:   true,
			wantField: "period_datetimeto_utc",
		},
		{
			name: "invalid value",
			record: MeasurementRecord{
				"sensor_id":             "1001",
				"value":                 "abc",
				"parameter_id":          "7",
				"period_datetimeto_utc": "2024-03-01T05:00:00Z",
			},
			wantErr:   true,
			wantField: "value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.record.ToMeasurement()

			if (err != nil) != tt.wantErr {
				t.Errorf("ToMeasurement() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if tt.wantErr {
				var vErr *ValidationError
				if !errors.As(err, &vErr) {
					t.Fatalf("error = %T, want *ValidationError", err)
				}
				if vErr.Field != tt.wantField {
					t.Errorf("Field = %v, want %v", vErr.Field, tt.wantField)
				}
				return
			}

			if tt.checkValues != nil {
				tt.checkValues(t, m)
			}
		})
	}
}

func TestLocationRecord_ToLocation(t *testing.T) {
	loc, err := LocationRecord{
		"id":                    "2622689",
		"name":                  "Dobong-gu",
		"timezone":              "Asia/Seoul",
		"ismobile":              "false",
		"ismonitor":             "true",
		"coordinates_latitude":  "37.657415",
		"coordinates_longitude": "127.067876",
		"datetimefirst_utc":     "2016-11-09T14:00:00Z",
		"datetimelast_utc":      "",
	}.ToLocation()
	if err != nil {
		t.Fatalf("ToLocation() error = %v", err)
	}

	if loc.ID != "2622689" {
		t.Errorf("ID = %v, want 2622689", loc.ID)
	}
	if loc.IsMobile || !loc.IsMonitor {
		t.Errorf("IsMobile/IsMonitor = %v/%v, want false/true", loc.IsMobile, loc.IsMonitor)
	}
	if loc.Latitude == nil || *loc.Latitude != 37.657415 {
		t.Errorf("Latitude = %v, want 37.657415", loc.Latitude)
	}
	if loc.DatetimeFirstUTC == nil {
		t.Error("DatetimeFirstUTC should not be nil")
	}
	if loc.DatetimeLastUTC != nil {
		t.Error("DatetimeLastUTC should be nil")
	}

	if _, err := (LocationRecord{"id": "1", "ismobile": "maybe"}).ToLocation(); err == nil {
		t.Error("expected error for invalid boolean")
	}
}

func TestSensorRecord_ToSensor(t *testing.T) {
	s, err := SensorRecord{
		"id":           "7772",
		"location_id":  "2622689",
		"name":         "o3 ppm",
		"parameter_id": "10",
	}.ToSensor()
	if err != nil {
		t.Fatalf("ToSensor() error = %v", err)
	}
	if s.LocationID != "2622689" || s.ParameterID != "10" {
		t.Errorf("ToSensor() = %+v", s)
	}

	if _, err := (SensorRecord{"id": "1", "parameter_id": "2"}).ToSensor(); err == nil {
		t.Error("expected error for missing location_id")
	}
}

func TestWeatherRecord_ToObservation(t *testing.T) {
	obs, err := WeatherRecord{
		"location_id":          "2622689",
		"datetimeto_utc":       "2024-01-01T00:00:00Z",
		"temperature_2m":       "-3.2",
		"relative_humidity_2m": "81",
		"precipitation":        "",
	}.ToObservation()
	if err != nil {
		t.Fatalf("ToObservation() error = %v", err)
	}

	if obs.Temperature2m == nil || *obs.Temperature2m != -3.2 {
		t.Errorf("Temperature2m = %v, want -3.2", obs.Temperature2m)
	}
	if obs.Precipitation != nil {
		t.Error("Precipitation should be nil for empty cell")
	}
	if obs.WindSpeed10m != nil {
		t.Error("WindSpeed10m should be nil for missing column")
	}

	if _, err := (WeatherRecord{"location_id": "1", "datetimeto_utc": "yesterday"}).ToObservation(); err == nil {
		t.Error("expected error for invalid timestamp")
	}
}

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"period.datetimeTo.utc": "period_datetimeto_utc",
		"\ufeffsensor_id":      "sensor_id",
		" isMobile ":            "ismobile",
		"coordinates.latitude":  "coordinates_latitude",
	}

	for in, want := range tests {
		if got := NormalizeHeader(in); got != want {
			t.Errorf("NormalizeHeader(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestValidationError tests error handling
func TestValidationError(t *testing.T) {
	err := &ValidationError{
		Field:   "value",
		Value:   "invalid",
		Message: "invalid number for value",
	}

	if err.Error() != "invalid number for value" {
		t.Errorf("Error() = %v, want %v", err.Error(), "invalid number for value")
	}

	if err.IsTransient() {
		t.Error("ValidationError should not be transient")
	}
}
