package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"airquality-platform/internal/models"
	"airquality-platform/internal/segmentation"
	"airquality-platform/pkg/logging"
	"airquality-platform/pkg/metrics"
)

// Run statuses recorded in metrics
const (
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
	RunStatusDryRun  = "dry_run"
)

// PipelineStore is what one segmentation pass reads and writes
type PipelineStore interface {
	AllLocations(ctx context.Context) ([]models.Location, error)
	AllSensors(ctx context.Context) ([]models.Sensor, error)
	MeasurementsSince(ctx context.Context, since time.Time) ([]models.RawMeasurement, error)
	ReplaceSegmentation(ctx context.Context, segments []models.Segment, rows []models.TrainingRow, run *models.SegmentationRun) error
}

// SegmentationService runs the segmentation pipeline against a store
type SegmentationService struct {
	store   PipelineStore
	engine  *segmentation.Engine
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	clock   func() time.Time
}

// RunOptions controls a single pipeline pass
type RunOptions struct {
	// DryRun computes the segmentation without replacing stored output
	DryRun bool
}

// RunReport is the outcome of one pipeline pass
type RunReport struct {
	Run     models.SegmentationRun
	Summary segmentation.Summary
	Result  *segmentation.Result
	DryRun  bool
}

// NewSegmentationService creates a pipeline service. params must already be
// validated.
func NewSegmentationService(store PipelineStore, params segmentation.Params, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *SegmentationService {
	return &SegmentationService{
		store:   store,
		engine:  segmentation.NewEngine(params),
		logger:  logger,
		metrics: metricsCollector,
		clock:   time.Now,
	}
}

// Run executes load -> normalize -> pivot -> segment -> store. now bounds the
// hourly spine; the stored output is replaced as a whole.
func (s *SegmentationService) Run(ctx context.Context, now time.Time, opts RunOptions) (*RunReport, error) {
	params := s.engine.Params()
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	startedAt := s.clock().UTC()

	s.logger.Info(ctx, "[PIPELINE_START] Starting segmentation run", logging.Fields{
		"analysis_start": params.AnalysisStart.Format(time.RFC3339),
		"now":            now.UTC().Format(time.RFC3339),
		"workers":        params.Workers,
		"dry_run":        opts.DryRun,
		"stage":          "INITIALIZATION",
	})

	report, err := s.run(ctx, now, params, runID, startedAt, opts)
	if err != nil {
		s.metrics.RecordRun(RunStatusFailed, nil, s.clock())
		s.logger.Error(ctx, "[PIPELINE_ERROR] Segmentation run failed", logging.Fields{
			"duration_ms": s.clock().Sub(startedAt).Milliseconds(),
		}, err)
		return nil, err
	}

	status := RunStatusSuccess
	if opts.DryRun {
		status = RunStatusDryRun
	}
	s.metrics.RecordRun(status, tierLabels(report.Summary.Tiers), report.Run.FinishedAt)

	s.logger.Info(ctx, "[PIPELINE_COMPLETE] Segmentation run completed", logging.Fields{
		"locations_total":     report.Run.LocationsTotal,
		"locations_segmented": report.Run.LocationsSegmented,
		"grid_rows":           report.Run.GridRows,
		"retained_rows":       report.Run.RetainedRows,
		"segments_total":      report.Run.SegmentsTotal,
		"gold_segments":       report.Run.GoldSegments,
		"silver_segments":     report.Run.SilverSegments,
		"bronze_segments":     report.Run.BronzeSegments,
		"dry_run":             opts.DryRun,
		"duration_ms":         report.Run.FinishedAt.Sub(startedAt).Milliseconds(),
		"stage":               "COMPLETE",
	})

	return report, nil
}

func (s *SegmentationService) run(ctx context.Context, now time.Time, params segmentation.Params, runID string, startedAt time.Time, opts RunOptions) (*RunReport, error) {
	var (
		locations    []models.Location
		sensors      []models.Sensor
		measurements []models.RawMeasurement
	)
	err := s.timeStage("load", func() error {
		var err error
		if locations, err = s.store.AllLocations(ctx); err != nil {
			return fmt.Errorf("failed to load locations: %w", err)
		}
		if sensors, err = s.store.AllSensors(ctx); err != nil {
			return fmt.Errorf("failed to load sensors: %w", err)
		}
		if measurements, err = s.store.MeasurementsSince(ctx, params.AnalysisStart); err != nil {
			return fmt.Errorf("failed to load measurements: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordStageRows("load", len(measurements))

	s.logger.Info(ctx, "[PIPELINE_LOAD] Inputs loaded", logging.Fields{
		"locations":    len(locations),
		"sensors":      len(sensors),
		"measurements": len(measurements),
		"stage":        "LOAD",
	})

	timer := s.metrics.StageTimer("normalize")
	normalized := segmentation.Normalize(params, measurements, sensors, locations)
	timer.ObserveDuration()
	s.metrics.RecordStageRows("normalize", len(normalized))

	timer = s.metrics.StageTimer("pivot")
	grids := segmentation.BuildGrid(params, normalized, now)
	timer.ObserveDuration()

	var result *segmentation.Result
	err = s.timeStage("segment", func() error {
		var err error
		result, err = s.engine.Run(ctx, grids)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordStageRows("pivot", result.GridRows)
	s.metrics.RecordStageRows("segment", len(result.Rows))

	summary := result.Summary()
	run := models.SegmentationRun{
		RunID:              runID,
		StartedAt:          startedAt,
		AnalysisStart:      params.AnalysisStart.UTC(),
		MeasurementsRead:   len(measurements),
		LocationsTotal:     len(grids),
		LocationsSegmented: result.SegmentedLocations(),
		GridRows:           result.GridRows,
		RetainedRows:       summary.RetainedRows,
		SegmentsTotal:      summary.Segments,
		GoldSegments:       summary.Tiers[models.TierGold],
		SilverSegments:     summary.Tiers[models.TierSilver],
		BronzeSegments:     summary.Tiers[models.TierBronze],
		MeanDensity:        summary.MeanDensity,
		StdDevDensity:      summary.StdDevDensity,
		MeanTotalHours:     summary.MeanTotalHours,
	}

	if !opts.DryRun {
		run.FinishedAt = s.clock().UTC()
		err := s.timeStage("store", func() error {
			return s.store.ReplaceSegmentation(ctx, result.Segments, result.Rows, &run)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to store segmentation: %w", err)
		}
	} else {
		run.FinishedAt = s.clock().UTC()
		s.logger.Info(ctx, "[PIPELINE_DRY_RUN] Dry run, stored output left unchanged", logging.Fields{
			"segments": summary.Segments,
			"rows":     summary.RetainedRows,
		})
	}

	return &RunReport{
		Run:     run,
		Summary: summary,
		Result:  result,
		DryRun:  opts.DryRun,
	}, nil
}

// timeStage records the duration of one pipeline stage, failed or not
func (s *SegmentationService) timeStage(stage string, fn func() error) error {
	timer := s.metrics.StageTimer(stage)
	defer timer.ObserveDuration()
	return fn()
}

func tierLabels(tiers map[models.Tier]int) map[string]int {
	out := make(map[string]int, len(tiers))
	for t, n := range tiers {
		out[string(t)] = n
	}
	return out
}
