package models

import (
	"strconv"
	"strings"
	"time"
)

// Export rows are keyed by their CSV header. Dotted OpenAQ names are
// flattened with underscores and lower-cased before lookup
// (period.datetimeTo.utc -> period_datetimeto_utc).

// LocationRecord is one row of a locations export
type LocationRecord map[string]string

// SensorRecord is one row of a sensors export
type SensorRecord map[string]string

// MeasurementRecord is one row of a measurements export
type MeasurementRecord map[string]string

// NormalizeHeader maps an export column name onto its record key
func NormalizeHeader(h string) string {
	h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	h = strings.ReplaceAll(h, ".", "_")
	return strings.ToLower(h)
}

// ToLocation converts a locations export row to a Location
func (r LocationRecord) ToLocation() (*Location, error) {
	id, err := requiredField(r, "id")
	if err != nil {
		return nil, err
	}

	loc := &Location{
		ID:           id,
		Name:         optionalString(r["name"]),
		Timezone:     optionalString(r["timezone"]),
		CountryName:  optionalString(r["country_name"]),
		OwnerName:    optionalString(r["owner_name"]),
		ProviderName: optionalString(r["provider_name"]),
		UpdatedAt:    time.Now().UTC(),
	}

	if loc.IsMobile, err = parseOptionalBool("ismobile", r["ismobile"]); err != nil {
		return nil, err
	}
	if loc.IsMonitor, err = parseOptionalBool("ismonitor", r["ismonitor"]); err != nil {
		return nil, err
	}
	if loc.Latitude, err = parseOptionalFloat("coordinates_latitude", r["coordinates_latitude"]); err != nil {
		return nil, err
	}
	if loc.Longitude, err = parseOptionalFloat("coordinates_longitude", r["coordinates_longitude"]); err != nil {
		return nil, err
	}
	if loc.DatetimeFirstUTC, err = parseOptionalTimestamp("datetimefirst_utc", r["datetimefirst_utc"]); err != nil {
		return nil, err
	}
	if loc.DatetimeLastUTC, err = parseOptionalTimestamp("datetimelast_utc", r["datetimelast_utc"]); err != nil {
		return nil, err
	}

	return loc, nil
}

// ToSensor converts a sensors export row to a Sensor
func (r SensorRecord) ToSensor() (*Sensor, error) {
	id, err := requiredField(r, "id")
	if err != nil {
		return nil, err
	}
	locationID, err := requiredField(r, "location_id")
	if err != nil {
		return nil, err
	}
	parameterID, err := requiredField(r, "parameter_id")
	if err != nil {
		return nil, err
	}

	return &Sensor{
		ID:                   id,
		LocationID:           locationID,
		Name:                 optionalString(r["name"]),
		ParameterID:          parameterID,
		ParameterName:        optionalString(r["parameter_name"]),
		ParameterUnits:       optionalString(r["parameter_units"]),
		ParameterDisplayName: optionalString(r["parameter_displayname"]),
		UpdatedAt:            time.Now().UTC(),
	}, nil
}

// ToMeasurement converts a measurements export row to a RawMeasurement.
// The value is kept as exported; range filtering happens during normalization.
// A missing updated_at falls back to the ingestion time.
func (r MeasurementRecord) ToMeasurement() (*RawMeasurement, error) {
	sensorID, err := requiredField(r, "sensor_id")
	if err != nil {
		return nil, err
	}
	parameterID, err := requiredField(r, "parameter_id")
	if err != nil {
		return nil, err
	}

	ts, err := parseHourTimestamp("period_datetimeto_utc", r["period_datetimeto_utc"])
	if err != nil {
		return nil, err
	}

	value, err := parseOptionalFloat("value", r["value"])
	if err != nil {
		return nil, err
	}

	updatedAt := time.Now().UTC()
	if parsed, err := parseOptionalTimestamp("updated_at", r["updated_at"]); err != nil {
		return nil, err
	} else if parsed != nil {
		updatedAt = *parsed
	}

	return &RawMeasurement{
		SensorID:       sensorID,
		Value:          value,
		ParameterID:    parameterID,
		ParameterName:  optionalString(r["parameter_name"]),
		ParameterUnits: optionalString(r["parameter_units"]),
		DatetimeUTC:    ts,
		DatetimeLocal:  optionalString(r["period_datetimeto_local"]),
		UpdatedAt:      updatedAt,
	}, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses an export timestamp; values without an offset are UTC
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, &ValidationError{
		Field:   "timestamp",
		Value:   raw,
		Message: "invalid timestamp format, expected RFC3339",
	}
}

func requiredField(r map[string]string, field string) (string, error) {
	v := strings.TrimSpace(r[field])
	if v == "" {
		return "", &ValidationError{
			Field:   field,
			Value:   v,
			Message: field + " is required",
		}
	}
	return v, nil
}

func optionalString(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return &raw
}

func parseOptionalFloat(field, raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "nan") || strings.EqualFold(raw, "null") {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &ValidationError{
			Field:   field,
			Value:   raw,
			Message: "invalid number for " + field,
		}
	}
	return &v, nil
}

func parseOptionalBool(field, raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &ValidationError{
			Field:   field,
			Value:   raw,
			Message: "invalid boolean for " + field,
		}
	}
	return v, nil
}

func parseOptionalTimestamp(field, raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	ts, err := ParseTimestamp(raw)
	if err != nil {
		return nil, &ValidationError{
			Field:   field,
			Value:   raw,
			Message: "invalid timestamp for " + field,
		}
	}
	return &ts, nil
}

// parseHourTimestamp requires a timestamp aligned to a whole UTC hour
func parseHourTimestamp(field, raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, &ValidationError{
			Field:   field,
			Value:   raw,
			Message: field + " is required",
		}
	}
	ts, err := ParseTimestamp(raw)
	if err != nil {
		return time.Time{}, &ValidationError{
			Field:   field,
			Value:   raw,
			Message: "invalid timestamp for " + field,
		}
	}
	if !ts.Equal(ts.Truncate(time.Hour)) {
		return time.Time{}, &ValidationError{
			Field:   field,
			Value:   raw,
			Message: field + " is not aligned to the hour",
		}
	}
	return ts, nil
}

// ValidationError represents a data validation error
// Validation errors are permanent: retrying the same row cannot succeed
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
