package models

import (
	"fmt"
	"strings"
)

// Pollutant identifies one tracked pollutant column of the pivoted grid
type Pollutant string

const (
	PollutantPM25 Pollutant = "pm25_ugm3"
	PollutantPM10 Pollutant = "pm10_ugm3"
	PollutantNO2  Pollutant = "no2_ppm"
	PollutantO3   Pollutant = "o3_ppm"
	PollutantSO2  Pollutant = "so2_ppm"
	PollutantCO   Pollutant = "co_ppm"
)

// TrackedPollutants lists every pollutant column in output order
var TrackedPollutants = []Pollutant{
	PollutantPM25,
	PollutantPM10,
	PollutantNO2,
	PollutantO3,
	PollutantSO2,
	PollutantCO,
}

// Valid reports whether p names one of the tracked pollutant columns
func (p Pollutant) Valid() bool {
	for _, tracked := range TrackedPollutants {
		if p == tracked {
			return true
		}
	}
	return false
}

// ParameterBinding maps an upstream parameter identifier onto a pollutant column
type ParameterBinding struct {
	ParameterID string
	Pollutant   Pollutant
}

// DefaultParameterBindings returns the OpenAQ parameter ids of the six tracked pollutants
func DefaultParameterBindings() []ParameterBinding {
	return []ParameterBinding{
		{ParameterID: "2", Pollutant: PollutantPM25},
		{ParameterID: "1", Pollutant: PollutantPM10},
		{ParameterID: "7", Pollutant: PollutantNO2},
		{ParameterID: "10", Pollutant: PollutantO3},
		{ParameterID: "9", Pollutant: PollutantSO2},
		{ParameterID: "8", Pollutant: PollutantCO},
	}
}

// ParseParameterBindings parses a comma separated "id:column" list,
// e.g. "2:pm25_ugm3,1:pm10_ugm3"
func ParseParameterBindings(raw string) ([]ParameterBinding, error) {
	bindings := make([]ParameterBinding, 0)
	seenIDs := make(map[string]bool)
	seenPollutants := make(map[Pollutant]bool)

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, column, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid parameter binding %q, expected id:column", part)
		}

		binding := ParameterBinding{
			ParameterID: strings.TrimSpace(id),
			Pollutant:   Pollutant(strings.TrimSpace(column)),
		}
		if binding.ParameterID == "" {
			return nil, fmt.Errorf("invalid parameter binding %q: empty parameter id", part)
		}
		if !binding.Pollutant.Valid() {
			return nil, fmt.Errorf("invalid parameter binding %q: unknown pollutant column %q", part, column)
		}
		if seenIDs[binding.ParameterID] {
			return nil, fmt.Errorf("duplicate parameter id %q", binding.ParameterID)
		}
		if seenPollutants[binding.Pollutant] {
			return nil, fmt.Errorf("duplicate pollutant column %q", binding.Pollutant)
		}

		seenIDs[binding.ParameterID] = true
		seenPollutants[binding.Pollutant] = true
		bindings = append(bindings, binding)
	}

	if len(bindings) == 0 {
		return nil, fmt.Errorf("no parameter bindings in %q", raw)
	}

	return bindings, nil
}

// PollutantValues holds one nullable value per tracked pollutant
type PollutantValues struct {
	PM25 *float64 `json:"pm25_ugm3" db:"pm25_ugm3"`
	PM10 *float64 `json:"pm10_ugm3" db:"pm10_ugm3"`
	NO2  *float64 `json:"no2_ppm" db:"no2_ppm"`
	O3   *float64 `json:"o3_ppm" db:"o3_ppm"`
	SO2  *float64 `json:"so2_ppm" db:"so2_ppm"`
	CO   *float64 `json:"co_ppm" db:"co_ppm"`
}

func (v *PollutantValues) slot(p Pollutant) **float64 {
	switch p {
	case PollutantPM25:
		return &v.PM25
	case PollutantPM10:
		return &v.PM10
	case PollutantNO2:
		return &v.NO2
	case PollutantO3:
		return &v.O3
	case PollutantSO2:
		return &v.SO2
	case PollutantCO:
		return &v.CO
	default:
		return nil
	}
}

// Get returns the value of pollutant p, nil when missing or unknown
func (v *PollutantValues) Get(p Pollutant) *float64 {
	if s := v.slot(p); s != nil {
		return *s
	}
	return nil
}

// Set stores value for pollutant p; unknown pollutants are ignored
func (v *PollutantValues) Set(p Pollutant, value *float64) {
	if s := v.slot(p); s != nil {
		*s = value
	}
}

// Max keeps the larger of the stored value and value (nil never wins)
func (v *PollutantValues) Max(p Pollutant, value *float64) {
	if value == nil {
		return
	}
	s := v.slot(p)
	if s == nil {
		return
	}
	if *s == nil || *value > **s {
		copied := *value
		*s = &copied
	}
}

// Count returns the number of non-null pollutant values
func (v PollutantValues) Count() int {
	n := 0
	for _, p := range TrackedPollutants {
		if v.Get(p) != nil {
			n++
		}
	}
	return n
}
