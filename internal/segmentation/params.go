// Package segmentation turns sparse multi-sensor hourly readings into dense,
// perfect-hour anchored and quality tiered segments.
//
// Data flows strictly forward: HourlySpine -> Normalize -> BuildGrid -> Engine.
package segmentation

import (
	"errors"
	"fmt"
	"time"

	"airquality-platform/internal/models"
)

// Params holds every constant the pipeline depends on. The same
// AnalysisStart bounds both the normalizer filter and the master grid.
type Params struct {
	AnalysisStart   time.Time
	ValueMin        float64 // inclusive
	ValueMax        float64 // exclusive
	Parameters      []models.ParameterBinding
	ShatterGapHours int
	SilverHours     int
	GoldHours       int
	MinSegmentHours int
	Workers         int
}

// DefaultParams returns the production defaults
func DefaultParams() Params {
	return Params{
		AnalysisStart:   time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		ValueMin:        0,
		ValueMax:        10000,
		Parameters:      models.DefaultParameterBindings(),
		ShatterGapHours: 4,
		SilverHours:     24 * 7,
		GoldHours:       24 * 14,
		MinSegmentHours: 2,
		Workers:         4,
	}
}

// RequiredSensors is the number of concurrent values that makes an hour perfect
func (p Params) RequiredSensors() int {
	return len(p.Parameters)
}

// PollutantFor resolves a parameter id against the allow-list
func (p Params) PollutantFor(parameterID string) (models.Pollutant, bool) {
	for _, b := range p.Parameters {
		if b.ParameterID == parameterID {
			return b.Pollutant, true
		}
	}
	return "", false
}

// Validate checks the parameters for internal consistency
func (p Params) Validate() error {
	var errs []error

	if p.AnalysisStart.IsZero() {
		errs = append(errs, errors.New("analysis start is required"))
	} else if !p.AnalysisStart.Equal(p.AnalysisStart.Truncate(time.Hour)) {
		errs = append(errs, fmt.Errorf("analysis start %s is not aligned to the hour", p.AnalysisStart.Format(time.RFC3339)))
	}
	if p.ValueMax <= p.ValueMin {
		errs = append(errs, fmt.Errorf("value range [%v, %v) is empty", p.ValueMin, p.ValueMax))
	}
	if len(p.Parameters) == 0 {
		errs = append(errs, errors.New("at least one tracked parameter is required"))
	}
	if p.ShatterGapHours < 1 {
		errs = append(errs, fmt.Errorf("shatter gap must be at least 1 hour, got %d", p.ShatterGapHours))
	}
	if p.SilverHours < 1 || p.GoldHours < p.SilverHours {
		errs = append(errs, fmt.Errorf("tier thresholds must satisfy 1 <= silver <= gold, got silver=%d gold=%d", p.SilverHours, p.GoldHours))
	}
	if p.MinSegmentHours < 1 {
		errs = append(errs, fmt.Errorf("minimum segment length must be at least 1 hour, got %d", p.MinSegmentHours))
	}
	if p.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", p.Workers))
	}

	return errors.Join(errs...)
}
