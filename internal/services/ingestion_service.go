package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"airquality-platform/internal/models"
	"airquality-platform/pkg/logging"
	"airquality-platform/pkg/metrics"
)

// Dataset names, also used as the metrics label
const (
	DatasetLocations    = "locations"
	DatasetSensors      = "sensors"
	DatasetMeasurements = "measurements"
	DatasetWeather      = "weather"
)

// IngestStore is the write side the ingester needs
type IngestStore interface {
	UpsertLocations(ctx context.Context, locations []*models.Location) error
	UpsertSensors(ctx context.Context, sensors []*models.Sensor) error
	MergeMeasurements(ctx context.Context, measurements []*models.RawMeasurement) (int, error)
	UpsertWeather(ctx context.Context, observations []*models.WeatherObservation) error
}

// IngestionService loads CSV exports into the store
type IngestionService struct {
	store   IngestStore
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// IngestionResult contains ingestion statistics
type IngestionResult struct {
	TotalFiles          int
	TotalRecords        int
	SuccessfulRecords   int
	FailedRecords       int
	MeasurementsApplied int
	Files               []FileIngestionResult
	Duration            time.Duration
	Errors              []string
}

// FileIngestionResult contains per-file ingestion statistics
type FileIngestionResult struct {
	Path              string
	Dataset           string
	TotalRecords      int
	SuccessfulRecords int
	FailedRecords     int
	// Applied counts rows that changed the store. Only measurements can be
	// stale, so for other datasets it equals SuccessfulRecords.
	Applied int
}

type exportFile struct {
	path    string
	dataset string
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(store IngestStore, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	return &IngestionService{
		store:   store,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// IngestDirectory ingests an export directory laid out as
//
//	locations.csv
//	sensors.csv
//	measurements/*.csv
//	weather/*.csv
//
// Metadata is loaded before measurements. A file that cannot be read is
// reported in Errors and skipped.
func (s *IngestionService) IngestDirectory(ctx context.Context, dataDir string, batchSize int) (*IngestionResult, error) {
	startTime := time.Now()

	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	s.logger.Info(ctx, "[INGEST_START] Starting data ingestion", logging.Fields{
		"data_dir":   dataDir,
		"batch_size": batchSize,
		"stage":      "INITIALIZATION",
	})

	files, err := discoverExports(dataDir)
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no export files found in %s", dataDir)
	}

	result := &IngestionResult{
		TotalFiles: len(files),
		Files:      make([]FileIngestionResult, 0, len(files)),
		Errors:     make([]string, 0),
	}

	s.logger.Info(ctx, "[INGEST_FILES] Found export files", logging.Fields{
		"file_count": len(files),
		"stage":      "FILE_DISCOVERY",
	})

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fileResult, err := s.ingestFile(ctx, f, batchSize)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			errMsg := fmt.Sprintf("failed to ingest %s: %v", f.path, err)
			result.Errors = append(result.Errors, errMsg)
			s.logger.Error(ctx, "[INGEST_FILE_ERROR] File ingestion failed", logging.Fields{
				"file_path": f.path,
				"dataset":   f.dataset,
				"stage":     "FILE_PROCESSING",
			}, err)
			s.metrics.RecordIngestionError("file_error")
			continue
		}

		result.Files = append(result.Files, *fileResult)
		result.TotalRecords += fileResult.TotalRecords
		result.SuccessfulRecords += fileResult.SuccessfulRecords
		result.FailedRecords += fileResult.FailedRecords
		if f.dataset == DatasetMeasurements {
			result.MeasurementsApplied += fileResult.Applied
		}

		s.logger.Info(ctx, "[INGEST_FILE_SUCCESS] File ingested successfully", logging.Fields{
			"file_path":          f.path,
			"dataset":            f.dataset,
			"total_records":      fileResult.TotalRecords,
			"successful_records": fileResult.SuccessfulRecords,
			"failed_records":     fileResult.FailedRecords,
			"applied_records":    fileResult.Applied,
			"stage":              "FILE_COMPLETE",
		})
	}

	result.Duration = time.Since(startTime)
	s.metrics.IngestionDuration.Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[INGEST_COMPLETE] Data ingestion completed", logging.Fields{
		"total_files":          result.TotalFiles,
		"total_records":        result.TotalRecords,
		"successful_records":   result.SuccessfulRecords,
		"failed_records":       result.FailedRecords,
		"measurements_applied": result.MeasurementsApplied,
		"duration_seconds":     result.Duration.Seconds(),
		"error_count":          len(result.Errors),
		"stage":                "COMPLETE",
	})

	return result, nil
}

// discoverExports lists export files in load order
func discoverExports(dataDir string) ([]exportFile, error) {
	info, err := os.Stat(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dataDir)
	}

	var files []exportFile

	for _, single := range []struct {
		name    string
		dataset string
	}{
		{"locations.csv", DatasetLocations},
		{"sensors.csv", DatasetSensors},
	} {
		path := filepath.Join(dataDir, single.name)
		if _, err := os.Stat(path); err == nil {
			files = append(files, exportFile{path: path, dataset: single.dataset})
		}
	}

	for _, dataset := range []string{DatasetMeasurements, DatasetWeather} {
		matches, err := filepath.Glob(filepath.Join(dataDir, dataset, "*.csv"))
		if err != nil {
			return nil, fmt.Errorf("failed to list %s exports: %w", dataset, err)
		}
		sort.Strings(matches)
		for _, path := range matches {
			files = append(files, exportFile{path: path, dataset: dataset})
		}
	}

	return files, nil
}

// ingestFile dispatches one export file to its dataset loader
func (s *IngestionService) ingestFile(ctx context.Context, f exportFile, batchSize int) (*FileIngestionResult, error) {
	var (
		res *FileIngestionResult
		err error
	)

	switch f.dataset {
	case DatasetLocations:
		res, err = ingestBatches(ctx, s, f, batchSize,
			func(r map[string]string) (*models.Location, error) { return models.LocationRecord(r).ToLocation() },
			func(ctx context.Context, batch []*models.Location) (int, error) {
				return len(batch), s.store.UpsertLocations(ctx, batch)
			})
	case DatasetSensors:
		res, err = ingestBatches(ctx, s, f, batchSize,
			func(r map[string]string) (*models.Sensor, error) { return models.SensorRecord(r).ToSensor() },
			func(ctx context.Context, batch []*models.Sensor) (int, error) {
				return len(batch), s.store.UpsertSensors(ctx, batch)
			})
	case DatasetMeasurements:
		res, err = ingestBatches(ctx, s, f, batchSize,
			func(r map[string]string) (*models.RawMeasurement, error) {
				return models.MeasurementRecord(r).ToMeasurement()
			},
			s.store.MergeMeasurements)
	case DatasetWeather:
		res, err = ingestBatches(ctx, s, f, batchSize,
			func(r map[string]string) (*models.WeatherObservation, error) {
				return models.WeatherRecord(r).ToObservation()
			},
			func(ctx context.Context, batch []*models.WeatherObservation) (int, error) {
				return len(batch), s.store.UpsertWeather(ctx, batch)
			})
	default:
		return nil, fmt.Errorf("unknown dataset %q", f.dataset)
	}

	if err != nil {
		return nil, err
	}

	res.Path = f.path
	res.Dataset = f.dataset
	return res, nil
}

// ingestBatches converts every row of an export and flushes them in batches.
// Rows that fail conversion are counted and skipped; a failed flush aborts
// the file.
func ingestBatches[T any](
	ctx context.Context,
	s *IngestionService,
	f exportFile,
	batchSize int,
	convert func(map[string]string) (*T, error),
	flush func(context.Context, []*T) (int, error),
) (*FileIngestionResult, error) {
	result := &FileIngestionResult{}
	batch := make([]*T, 0, batchSize)
	fileLog := s.logger.WithFields(logging.Fields{
		"file_path": f.path,
		"dataset":   f.dataset,
	})

	write := func() error {
		if len(batch) == 0 {
			return nil
		}
		applied, err := flush(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to write %s batch: %w", f.dataset, err)
		}
		s.metrics.IngestionBatchSize.Observe(float64(len(batch)))
		s.metrics.RecordIngested(f.dataset, applied)
		fileLog.Debug(ctx, "[INGEST_BATCH] Batch written", logging.Fields{
			"records": len(batch),
			"applied": applied,
		})
		result.SuccessfulRecords += len(batch)
		result.Applied += applied
		batch = batch[:0]
		return nil
	}

	total, failed, err := readExport(ctx, f.path, func(record map[string]string) error {
		item, err := convert(record)
		if err != nil {
			s.metrics.RecordIngestionError("conversion_error")
			fileLog.Debug(ctx, "[INGEST_ROW_REJECTED] Export row rejected", logging.Fields{
				"error": err.Error(),
			})
			return err
		}

		batch = append(batch, item)
		if len(batch) >= batchSize {
			if err := write(); err != nil {
				return &abortError{err: err}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := write(); err != nil {
		return nil, err
	}

	result.TotalRecords = total
	result.FailedRecords = failed
	return result, nil
}
