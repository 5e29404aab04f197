package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"airquality-platform/internal/models"
	"airquality-platform/pkg/database"
	"airquality-platform/pkg/logging"
	"airquality-platform/pkg/metrics"
)

// AirQualityRepository provides data access for sensor metadata,
// measurements, weather covariates and segmentation output
type AirQualityRepository interface {
	// Metadata operations
	UpsertLocations(ctx context.Context, locations []*models.Location) error
	UpsertSensors(ctx context.Context, sensors []*models.Sensor) error
	GetLocation(ctx context.Context, locationID string) (*models.Location, error)
	ListLocations(ctx context.Context, limit, offset int) ([]*models.Location, int, error)
	AllLocations(ctx context.Context) ([]models.Location, error)
	AllSensors(ctx context.Context) ([]models.Sensor, error)

	// Measurement operations
	MergeMeasurements(ctx context.Context, measurements []*models.RawMeasurement) (int, error)
	MeasurementsSince(ctx context.Context, since time.Time) ([]models.RawMeasurement, error)

	// Weather operations
	UpsertWeather(ctx context.Context, observations []*models.WeatherObservation) error
	GetWeather(ctx context.Context, filter WeatherFilter) ([]*models.WeatherObservation, int, error)

	// Segmentation operations
	ReplaceSegmentation(ctx context.Context, segments []models.Segment, rows []models.TrainingRow, run *models.SegmentationRun) error
	GetSegments(ctx context.Context, filter SegmentFilter) ([]*models.Segment, int, error)
	GetSegment(ctx context.Context, segmentID string) (*models.Segment, error)
	GetTrainingRows(ctx context.Context, filter TrainingRowFilter) ([]*models.TrainingRow, int, error)
	GetLatestRun(ctx context.Context) (*models.SegmentationRun, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// SegmentFilter defines filters for querying segments
type SegmentFilter struct {
	LocationID    *string
	Tier          *models.Tier
	MinTotalHours *int
	Limit         int
	Offset        int
}

// TrainingRowFilter defines filters for querying training rows
type TrainingRowFilter struct {
	LocationID *string
	SegmentID  *string
	StartDate  *time.Time
	EndDate    *time.Time
	Limit      int
	Offset     int
}

// WeatherFilter defines filters for querying weather covariates
type WeatherFilter struct {
	LocationID *string
	StartDate  *time.Time
	EndDate    *time.Time
	Limit      int
	Offset     int
}

// airQualityRepository implements AirQualityRepository
type airQualityRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewAirQualityRepository creates a new air quality repository
func NewAirQualityRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) AirQualityRepository {
	return &airQualityRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// UpsertLocations creates or refreshes location metadata
func (r *airQualityRepository) UpsertLocations(ctx context.Context, locations []*models.Location) error {
	if len(locations) == 0 {
		return nil
	}

	query := r.db.Rebind(`
		INSERT INTO locations (
			id, name, timezone, is_mobile, is_monitor,
			coordinates_latitude, coordinates_longitude,
			country_name, owner_name, provider_name,
			datetime_first_utc, datetime_last_utc, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			timezone = excluded.timezone,
			is_mobile = excluded.is_mobile,
			is_monitor = excluded.is_monitor,
			coordinates_latitude = excluded.coordinates_latitude,
			coordinates_longitude = excluded.coordinates_longitude,
			country_name = excluded.country_name,
			owner_name = excluded.owner_name,
			provider_name = excluded.provider_name,
			datetime_first_utc = excluded.datetime_first_utc,
			datetime_last_utc = excluded.datetime_last_utc,
			updated_at = excluded.updated_at
	`)

	err := r.db.WithTx(ctx, "upsert_locations", func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, loc := range locations {
			_, err := stmt.ExecContext(ctx,
				loc.ID,
				loc.Name,
				loc.Timezone,
				loc.IsMobile,
				loc.IsMonitor,
				loc.Latitude,
				loc.Longitude,
				loc.CountryName,
				loc.OwnerName,
				loc.ProviderName,
				utcPtr(loc.DatetimeFirstUTC),
				utcPtr(loc.DatetimeLastUTC),
				loc.UpdatedAt.UTC(),
			)
			if err != nil {
				return fmt.Errorf("failed to upsert location %s: %w", loc.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Debug(ctx, "[REPO_UPSERT_LOCATIONS] Locations upserted", logging.Fields{
		"count": len(locations),
	})

	return nil
}

// UpsertSensors creates or refreshes sensor metadata
func (r *airQualityRepository) UpsertSensors(ctx context.Context, sensors []*models.Sensor) error {
	if len(sensors) == 0 {
		return nil
	}

	query := r.db.Rebind(`
		INSERT INTO sensors (
			id, location_id, name, parameter_id, parameter_name,
			parameter_units, parameter_displayname, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			location_id = excluded.location_id,
			name = excluded.name,
			parameter_id = excluded.parameter_id,
			parameter_name = excluded.parameter_name,
			parameter_units = excluded.parameter_units,
			parameter_displayname = excluded.parameter_displayname,
			updated_at = excluded.updated_at
	`)

	err := r.db.WithTx(ctx, "upsert_sensors", func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, s := range sensors {
			_, err := stmt.ExecContext(ctx,
				s.ID,
				s.LocationID,
				s.Name,
				s.ParameterID,
				s.ParameterName,
				s.ParameterUnits,
				s.ParameterDisplayName,
				s.UpdatedAt.UTC(),
			)
			if err != nil {
				return fmt.Errorf("failed to upsert sensor %s: %w", s.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Debug(ctx, "[REPO_UPSERT_SENSORS] Sensors upserted", logging.Fields{
		"count": len(sensors),
	})

	return nil
}

const locationColumns = `
	id, name, timezone, is_mobile, is_monitor,
	coordinates_latitude, coordinates_longitude,
	country_name, owner_name, provider_name,
	datetime_first_utc, datetime_last_utc, updated_at
`

// GetLocation retrieves a location by ID
func (r *airQualityRepository) GetLocation(ctx context.Context, locationID string) (*models.Location, error) {
	query := r.db.Rebind(`SELECT ` + locationColumns + ` FROM locations WHERE id = ?`)

	var loc models.Location
	err := r.db.GetContext(ctx, "get_location", &loc, query, locationID)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{
			Resource: "location",
			ID:       locationID,
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", err)
	}

	return &loc, nil
}

// ListLocations retrieves locations with pagination
func (r *airQualityRepository) ListLocations(ctx context.Context, limit, offset int) ([]*models.Location, int, error) {
	var totalCount int
	if err := r.db.GetContext(ctx, "count_locations", &totalCount, `SELECT COUNT(*) FROM locations`); err != nil {
		return nil, 0, fmt.Errorf("failed to count locations: %w", err)
	}

	query := r.db.Rebind(`SELECT ` + locationColumns + ` FROM locations ORDER BY id LIMIT ? OFFSET ?`)

	var locations []*models.Location
	if err := r.db.SelectContext(ctx, "list_locations", &locations, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list locations: %w", err)
	}

	return locations, totalCount, nil
}

// AllLocations loads every location for the pipeline join
func (r *airQualityRepository) AllLocations(ctx context.Context) ([]models.Location, error) {
	var locations []models.Location
	err := r.db.SelectContext(ctx, "all_locations", &locations, `SELECT `+locationColumns+` FROM locations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load locations: %w", err)
	}
	return locations, nil
}

// AllSensors loads every sensor for the pipeline join
func (r *airQualityRepository) AllSensors(ctx context.Context) ([]models.Sensor, error) {
	query := `
		SELECT id, location_id, name, parameter_id, parameter_name,
		       parameter_units, parameter_displayname, updated_at
		FROM sensors
		ORDER BY id
	`

	var sensors []models.Sensor
	if err := r.db.SelectContext(ctx, "all_sensors", &sensors, query); err != nil {
		return nil, fmt.Errorf("failed to load sensors: %w", err)
	}
	return sensors, nil
}

// MergeMeasurements upserts measurements keyed by (sensor, hour). An existing
// row is only replaced by a strictly newer update. Returns the number of rows
// inserted or replaced.
func (r *airQualityRepository) MergeMeasurements(ctx context.Context, measurements []*models.RawMeasurement) (int, error) {
	if len(measurements) == 0 {
		return 0, nil
	}

	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		r.logger.Debug(ctx, "[REPO_MERGE_MEASUREMENTS] Batch merge completed", logging.Fields{
			"count":       len(measurements),
			"duration_ms": duration.Milliseconds(),
		})
	}()

	query := r.db.Rebind(`
		INSERT INTO measurements (
			sensor_id, datetime_utc, value, parameter_id,
			parameter_name, parameter_units, datetime_local, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (sensor_id, datetime_utc) DO UPDATE SET
			value = excluded.value,
			parameter_id = excluded.parameter_id,
			parameter_name = excluded.parameter_name,
			parameter_units = excluded.parameter_units,
			datetime_local = excluded.datetime_local,
			updated_at = excluded.updated_at
		WHERE excluded.updated_at > measurements.updated_at
	`)

	applied := 0
	err := r.db.WithTx(ctx, "merge_measurements", func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, m := range measurements {
			result, err := stmt.ExecContext(ctx,
				m.SensorID,
				m.DatetimeUTC.UTC(),
				m.Value,
				m.ParameterID,
				m.ParameterName,
				m.ParameterUnits,
				m.DatetimeLocal,
				m.UpdatedAt.UTC(),
			)
			if err != nil {
				return fmt.Errorf("failed to merge measurement %s@%s: %w",
					m.SensorID, m.DatetimeUTC.Format(time.RFC3339), err)
			}
			if n, err := result.RowsAffected(); err == nil {
				applied += int(n)
			}
		}
		return nil
	})
	if err != nil {
		r.metrics.RecordDBError("merge_measurements")
		return 0, err
	}

	return applied, nil
}

// MeasurementsSince loads measurements at or after since
func (r *airQualityRepository) MeasurementsSince(ctx context.Context, since time.Time) ([]models.RawMeasurement, error) {
	query := r.db.Rebind(`
		SELECT sensor_id, datetime_utc, value, parameter_id,
		       parameter_name, parameter_units, datetime_local, updated_at
		FROM measurements
		WHERE datetime_utc >= ?
		ORDER BY sensor_id, datetime_utc
	`)

	var measurements []models.RawMeasurement
	if err := r.db.SelectContext(ctx, "measurements_since", &measurements, query, since.UTC()); err != nil {
		return nil, fmt.Errorf("failed to load measurements: %w", err)
	}
	return measurements, nil
}

// HealthCheck performs a repository health check
func (r *airQualityRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
