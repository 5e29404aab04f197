package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"airquality-platform/internal/models"
	"airquality-platform/pkg/logging"
)

const segmentColumns = `
	segment_id, location_id, segments_num, segment_start, segment_end,
	segment_total_hours, segment_perfect_hours, segment_perfect_density,
	segment_tier, segments_total
`

const trainingRowColumns = `
	location_id, datetimeto_utc, hours_since_last, concurrent_sensors, is_new_segment,
	pm25_ugm3, pm10_ugm3, no2_ppm, o3_ppm, so2_ppm, co_ppm,
	segment_id, segment_start, segment_end, segment_perfect_hours, segment_total_hours,
	segment_perfect_density, segment_tier, segments_num, segments_total
`

const runColumns = `
	run_id, started_at, finished_at, analysis_start, measurements_read,
	locations_total, locations_segmented, grid_rows, retained_rows, segments_total,
	gold_segments, silver_segments, bronze_segments,
	mean_density, stddev_density, mean_total_hours
`

// ReplaceSegmentation atomically swaps the segment and training tables for
// the output of one run and records the run. Segment identity is only stable
// within a run, so nothing from the previous run is kept.
func (r *airQualityRepository) ReplaceSegmentation(ctx context.Context, segments []models.Segment, rows []models.TrainingRow, run *models.SegmentationRun) error {
	timer := time.Now()

	insertSegment := r.db.Rebind(`INSERT INTO segments (` + segmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	insertRow := r.db.Rebind(`INSERT INTO training_rows (` + trainingRowColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	insertRun := r.db.Rebind(`INSERT INTO segmentation_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	err := r.db.WithTx(ctx, "replace_segmentation", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM training_rows`); err != nil {
			return fmt.Errorf("failed to clear training rows: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM segments`); err != nil {
			return fmt.Errorf("failed to clear segments: %w", err)
		}

		segStmt, err := tx.PreparexContext(ctx, insertSegment)
		if err != nil {
			return fmt.Errorf("failed to prepare segment insert: %w", err)
		}
		defer segStmt.Close()

		for _, s := range segments {
			_, err := segStmt.ExecContext(ctx,
				s.SegmentID,
				s.LocationID,
				s.SegmentsNum,
				s.Start.UTC(),
				s.End.UTC(),
				s.TotalHours,
				s.PerfectHours,
				s.PerfectDensity,
				string(s.Tier),
				s.SegmentsTotal,
			)
			if err != nil {
				return fmt.Errorf("failed to insert segment %s: %w", s.SegmentID, err)
			}
		}

		rowStmt, err := tx.PreparexContext(ctx, insertRow)
		if err != nil {
			return fmt.Errorf("failed to prepare training row insert: %w", err)
		}
		defer rowStmt.Close()

		for _, row := range rows {
			_, err := rowStmt.ExecContext(ctx,
				row.LocationID,
				row.DatetimeUTC.UTC(),
				row.HoursSinceLast,
				row.ConcurrentSensors,
				row.IsNewSegment,
				row.PM25,
				row.PM10,
				row.NO2,
				row.O3,
				row.SO2,
				row.CO,
				row.SegmentID,
				row.SegmentStart.UTC(),
				row.SegmentEnd.UTC(),
				row.SegmentPerfectHours,
				row.SegmentTotalHours,
				row.SegmentPerfectDensity,
				string(row.SegmentTier),
				row.SegmentsNum,
				row.SegmentsTotal,
			)
			if err != nil {
				return fmt.Errorf("failed to insert training row %s@%s: %w",
					row.LocationID, row.DatetimeUTC.Format(time.RFC3339), err)
			}
		}

		if run == nil {
			return nil
		}

		_, err = tx.ExecContext(ctx, insertRun,
			run.RunID,
			run.StartedAt.UTC(),
			run.FinishedAt.UTC(),
			run.AnalysisStart.UTC(),
			run.MeasurementsRead,
			run.LocationsTotal,
			run.LocationsSegmented,
			run.GridRows,
			run.RetainedRows,
			run.SegmentsTotal,
			run.GoldSegments,
			run.SilverSegments,
			run.BronzeSegments,
			run.MeanDensity,
			run.StdDevDensity,
			run.MeanTotalHours,
		)
		if err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		return nil
	})
	if err != nil {
		r.metrics.RecordDBError("replace_segmentation")
		return err
	}

	r.logger.Info(ctx, "[REPO_REPLACE_SEGMENTATION] Segmentation output replaced", logging.Fields{
		"segments":    len(segments),
		"rows":        len(rows),
		"duration_ms": time.Since(timer).Milliseconds(),
	})

	return nil
}

// GetSegments retrieves segments with filtering and pagination
func (r *airQualityRepository) GetSegments(ctx context.Context, filter SegmentFilter) ([]*models.Segment, int, error) {
	// Build query with filters
	query := `SELECT ` + segmentColumns + ` FROM segments WHERE 1=1`
	args := []interface{}{}

	if filter.LocationID != nil {
		query += " AND location_id = ?"
		args = append(args, *filter.LocationID)
	}

	if filter.Tier != nil {
		query += " AND segment_tier = ?"
		args = append(args, string(*filter.Tier))
	}

	if filter.MinTotalHours != nil {
		query += " AND segment_total_hours >= ?"
		args = append(args, *filter.MinTotalHours)
	}

	// Get total count
	countQuery := r.db.Rebind("SELECT COUNT(*) FROM (" + query + ") AS count_query")
	var totalCount int
	if err := r.db.GetContext(ctx, "count_segments", &totalCount, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count segments: %w", err)
	}

	// Add ordering and pagination
	query += " ORDER BY location_id, segments_num LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	var segments []*models.Segment
	if err := r.db.SelectContext(ctx, "get_segments", &segments, r.db.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get segments: %w", err)
	}

	return segments, totalCount, nil
}

// GetSegment retrieves one segment by its id
func (r *airQualityRepository) GetSegment(ctx context.Context, segmentID string) (*models.Segment, error) {
	query := r.db.Rebind(`SELECT ` + segmentColumns + ` FROM segments WHERE segment_id = ?`)

	var segment models.Segment
	err := r.db.GetContext(ctx, "get_segment", &segment, query, segmentID)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{
			Resource: "segment",
			ID:       segmentID,
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get segment: %w", err)
	}

	return &segment, nil
}

// GetTrainingRows retrieves training rows with filtering and pagination
func (r *airQualityRepository) GetTrainingRows(ctx context.Context, filter TrainingRowFilter) ([]*models.TrainingRow, int, error) {
	query := `SELECT ` + trainingRowColumns + ` FROM training_rows WHERE 1=1`
	args := []interface{}{}

	if filter.LocationID != nil {
		query += " AND location_id = ?"
		args = append(args, *filter.LocationID)
	}

	if filter.SegmentID != nil {
		query += " AND segment_id = ?"
		args = append(args, *filter.SegmentID)
	}

	if filter.StartDate != nil {
		query += " AND datetimeto_utc >= ?"
		args = append(args, filter.StartDate.UTC())
	}

	if filter.EndDate != nil {
		query += " AND datetimeto_utc <= ?"
		args = append(args, filter.EndDate.UTC())
	}

	countQuery := r.db.Rebind("SELECT COUNT(*) FROM (" + query + ") AS count_query")
	var totalCount int
	if err := r.db.GetContext(ctx, "count_training_rows", &totalCount, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count training rows: %w", err)
	}

	query += " ORDER BY location_id, datetimeto_utc LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	var rows []*models.TrainingRow
	if err := r.db.SelectContext(ctx, "get_training_rows", &rows, r.db.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get training rows: %w", err)
	}

	return rows, totalCount, nil
}

// GetLatestRun retrieves the most recently finished segmentation run
func (r *airQualityRepository) GetLatestRun(ctx context.Context) (*models.SegmentationRun, error) {
	query := `SELECT ` + runColumns + ` FROM segmentation_runs ORDER BY finished_at DESC LIMIT 1`

	var run models.SegmentationRun
	err := r.db.GetContext(ctx, "get_latest_run", &run, query)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{
			Resource: "segmentation_run",
			ID:       "latest",
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	return &run, nil
}
