package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"airquality-platform/internal/models"
	"airquality-platform/pkg/logging"
)

// UpsertWeather creates or updates hourly weather covariates
func (r *airQualityRepository) UpsertWeather(ctx context.Context, observations []*models.WeatherObservation) error {
	if len(observations) == 0 {
		return nil
	}

	query := r.db.Rebind(`
		INSERT INTO weather_observations (
			location_id, datetime_utc,
			temperature_2m, relative_humidity_2m, dew_point_2m, precipitation,
			pressure_msl, cloud_cover, wind_speed_10m, wind_direction_10m,
			updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (location_id, datetime_utc) DO UPDATE SET
			temperature_2m = excluded.temperature_2m,
			relative_humidity_2m = excluded.relative_humidity_2m,
			dew_point_2m = excluded.dew_point_2m,
			precipitation = excluded.precipitation,
			pressure_msl = excluded.pressure_msl,
			cloud_cover = excluded.cloud_cover,
			wind_speed_10m = excluded.wind_speed_10m,
			wind_direction_10m = excluded.wind_direction_10m,
			updated_at = excluded.updated_at
	`)

	err := r.db.WithTx(ctx, "upsert_weather", func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, obs := range observations {
			_, err := stmt.ExecContext(ctx,
				obs.LocationID,
				obs.DatetimeUTC.UTC(),
				obs.Temperature2m,
				obs.RelativeHumidity2m,
				obs.DewPoint2m,
				obs.Precipitation,
				obs.PressureMSL,
				obs.CloudCover,
				obs.WindSpeed10m,
				obs.WindDirection10m,
				obs.UpdatedAt.UTC(),
			)
			if err != nil {
				return fmt.Errorf("failed to upsert weather observation: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Debug(ctx, "[REPO_UPSERT_WEATHER] Weather observations upserted", logging.Fields{
		"count": len(observations),
	})

	return nil
}

// GetWeather retrieves weather covariates with filtering and pagination
func (r *airQualityRepository) GetWeather(ctx context.Context, filter WeatherFilter) ([]*models.WeatherObservation, int, error) {
	query := `
		SELECT location_id, datetime_utc,
		       temperature_2m, relative_humidity_2m, dew_point_2m, precipitation,
		       pressure_msl, cloud_cover, wind_speed_10m, wind_direction_10m,
		       updated_at
		FROM weather_observations
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.LocationID != nil {
		query += " AND location_id = ?"
		args = append(args, *filter.LocationID)
	}

	if filter.StartDate != nil {
		query += " AND datetime_utc >= ?"
		args = append(args, filter.StartDate.UTC())
	}

	if filter.EndDate != nil {
		query += " AND datetime_utc <= ?"
		args = append(args, filter.EndDate.UTC())
	}

	countQuery := r.db.Rebind("SELECT COUNT(*) FROM (" + query + ") AS count_query")
	var totalCount int
	if err := r.db.GetContext(ctx, "count_weather", &totalCount, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count weather observations: %w", err)
	}

	query += " ORDER BY location_id, datetime_utc LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	var observations []*models.WeatherObservation
	if err := r.db.SelectContext(ctx, "get_weather", &observations, r.db.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get weather observations: %w", err)
	}

	return observations, totalCount, nil
}
