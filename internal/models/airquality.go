package models

import (
	"time"
)

// Location represents a fixed or mobile monitoring site
// Read-only to the segmentation pipeline
type Location struct {
	ID               string     `json:"id" db:"id"`
	Name             *string    `json:"name,omitempty" db:"name"`
	Timezone         *string    `json:"timezone,omitempty" db:"timezone"`
	IsMobile         bool       `json:"is_mobile" db:"is_mobile"`
	IsMonitor        bool       `json:"is_monitor" db:"is_monitor"`
	Latitude         *float64   `json:"coordinates_latitude,omitempty" db:"coordinates_latitude"`
	Longitude        *float64   `json:"coordinates_longitude,omitempty" db:"coordinates_longitude"`
	CountryName      *string    `json:"country_name,omitempty" db:"country_name"`
	OwnerName        *string    `json:"owner_name,omitempty" db:"owner_name"`
	ProviderName     *string    `json:"provider_name,omitempty" db:"provider_name"`
	DatetimeFirstUTC *time.Time `json:"datetime_first_utc,omitempty" db:"datetime_first_utc"`
	DatetimeLastUTC  *time.Time `json:"datetime_last_utc,omitempty" db:"datetime_last_utc"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// Sensor is one pollutant instrument attached to exactly one location
type Sensor struct {
	ID                   string    `json:"id" db:"id"`
	LocationID           string    `json:"location_id" db:"location_id"`
	Name                 *string   `json:"name,omitempty" db:"name"`
	ParameterID          string    `json:"parameter_id" db:"parameter_id"`
	ParameterName        *string   `json:"parameter_name,omitempty" db:"parameter_name"`
	ParameterUnits       *string   `json:"parameter_units,omitempty" db:"parameter_units"`
	ParameterDisplayName *string   `json:"parameter_displayname,omitempty" db:"parameter_displayname"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
}

// RawMeasurement is one (sensor, hour) observation as stored after the
// incremental merge. Value may be outside the physical range.
type RawMeasurement struct {
	SensorID       string    `json:"sensor_id" db:"sensor_id"`
	Value          *float64  `json:"value,omitempty" db:"value"`
	ParameterID    string    `json:"parameter_id" db:"parameter_id"`
	ParameterName  *string   `json:"parameter_name,omitempty" db:"parameter_name"`
	ParameterUnits *string   `json:"parameter_units,omitempty" db:"parameter_units"`
	DatetimeUTC    time.Time `json:"period_datetimeto_utc" db:"datetime_utc"`
	DatetimeLocal  *string   `json:"period_datetimeto_local,omitempty" db:"datetime_local"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// NormalizedMeasurement is a cleaned measurement joined to its sensor and location.
// LocationID is empty and Sensor/Location are nil when the sensor is unknown.
type NormalizedMeasurement struct {
	SensorID          string
	LocationID        string
	Sensor            *Sensor
	Location          *Location
	ParameterID       string
	Pollutant         Pollutant
	Value             *float64
	DatetimeUTC       time.Time
	ConcurrentSensors int
}

// PivotedRow is one dense (location, hour) row of the master grid
type PivotedRow struct {
	LocationID  string    `json:"location_id" db:"location_id"`
	DatetimeUTC time.Time `json:"datetimeto_utc" db:"datetimeto_utc"`
	PollutantValues
	ConcurrentSensors int `json:"concurrent_sensors" db:"concurrent_sensors"`
}

// Tier classifies a segment by its total span
type Tier string

const (
	TierGold   Tier = "gold"
	TierSilver Tier = "silver"
	TierBronze Tier = "bronze"
)

// Valid reports whether t is a known tier
func (t Tier) Valid() bool {
	return t == TierGold || t == TierSilver || t == TierBronze
}

// Segment is a contiguous, perfect-hour anchored run of rows for one location.
// Identity is only stable within one computation pass.
type Segment struct {
	SegmentID      string    `json:"segment_id" db:"segment_id"`
	LocationID     string    `json:"location_id" db:"location_id"`
	SegmentsNum    int       `json:"segments_num" db:"segments_num"`
	Start          time.Time `json:"segment_start" db:"segment_start"`
	End            time.Time `json:"segment_end" db:"segment_end"`
	TotalHours     int       `json:"segment_total_hours" db:"segment_total_hours"`
	PerfectHours   int       `json:"segment_perfect_hours" db:"segment_perfect_hours"`
	PerfectDensity *float64  `json:"segment_perfect_density" db:"segment_perfect_density"`
	Tier           Tier      `json:"segment_tier" db:"segment_tier"`
	SegmentsTotal  int       `json:"segments_total" db:"segments_total"`
}

// TrainingRow is one retained (location, hour) row of the output dataset
type TrainingRow struct {
	LocationID        string    `json:"location_id" db:"location_id"`
	DatetimeUTC       time.Time `json:"datetimeto_utc" db:"datetimeto_utc"`
	HoursSinceLast    *int      `json:"hours_since_last" db:"hours_since_last"`
	ConcurrentSensors int       `json:"concurrent_sensors" db:"concurrent_sensors"`
	IsNewSegment      int       `json:"is_new_segment" db:"is_new_segment"`
	PollutantValues
	SegmentID             string    `json:"segment_id" db:"segment_id"`
	SegmentStart          time.Time `json:"segment_start" db:"segment_start"`
	SegmentEnd            time.Time `json:"segment_end" db:"segment_end"`
	SegmentPerfectHours   int       `json:"segment_perfect_hours" db:"segment_perfect_hours"`
	SegmentTotalHours     int       `json:"segment_total_hours" db:"segment_total_hours"`
	SegmentPerfectDensity *float64  `json:"segment_perfect_density" db:"segment_perfect_density"`
	SegmentTier           Tier      `json:"segment_tier" db:"segment_tier"`
	SegmentsNum           int       `json:"segments_num" db:"segments_num"`
	SegmentsTotal         int       `json:"segments_total" db:"segments_total"`
}

// SegmentationRun records the outcome of one pipeline pass
type SegmentationRun struct {
	RunID              string    `json:"run_id" db:"run_id"`
	StartedAt          time.Time `json:"started_at" db:"started_at"`
	FinishedAt         time.Time `json:"finished_at" db:"finished_at"`
	AnalysisStart      time.Time `json:"analysis_start" db:"analysis_start"`
	MeasurementsRead   int       `json:"measurements_read" db:"measurements_read"`
	LocationsTotal     int       `json:"locations_total" db:"locations_total"`
	LocationsSegmented int       `json:"locations_segmented" db:"locations_segmented"`
	GridRows           int       `json:"grid_rows" db:"grid_rows"`
	RetainedRows       int       `json:"retained_rows" db:"retained_rows"`
	SegmentsTotal      int       `json:"segments_total" db:"segments_total"`
	GoldSegments       int       `json:"gold_segments" db:"gold_segments"`
	SilverSegments     int       `json:"silver_segments" db:"silver_segments"`
	BronzeSegments     int       `json:"bronze_segments" db:"bronze_segments"`
	MeanDensity        *float64  `json:"mean_density,omitempty" db:"mean_density"`
	StdDevDensity      *float64  `json:"stddev_density,omitempty" db:"stddev_density"`
	MeanTotalHours     *float64  `json:"mean_total_hours,omitempty" db:"mean_total_hours"`
}
