package services

import (
	"context"
	"fmt"

	"airquality-platform/internal/models"
	"airquality-platform/internal/repository"
	"airquality-platform/internal/segmentation"
	"airquality-platform/pkg/logging"
	"airquality-platform/pkg/metrics"
)

// summaryPageSize is the number of segments fetched per query when
// summarizing a location
const summaryPageSize = 5000

// SegmentService serves the stored segmentation output
type SegmentService struct {
	repo     repository.AirQualityRepository
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
	pageSize int
}

// LocationSummary aggregates the stored segments of one location
type LocationSummary struct {
	Location *models.Location     `json:"location"`
	Summary  segmentation.Summary `json:"summary"`
}

// NewSegmentService creates a new segment service
func NewSegmentService(repo repository.AirQualityRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *SegmentService {
	return &SegmentService{
		repo:     repo,
		logger:   logger,
		metrics:  metricsCollector,
		pageSize: summaryPageSize,
	}
}

// GetLocations retrieves locations with pagination
func (s *SegmentService) GetLocations(ctx context.Context, limit, offset int) ([]*models.Location, int, error) {
	return s.repo.ListLocations(ctx, limit, offset)
}

// GetSegments retrieves segments with filtering
func (s *SegmentService) GetSegments(ctx context.Context, filter repository.SegmentFilter) ([]*models.Segment, int, error) {
	return s.repo.GetSegments(ctx, filter)
}

// GetSegmentRows retrieves the training rows of one segment. A missing
// segment is a NotFoundError rather than an empty page.
func (s *SegmentService) GetSegmentRows(ctx context.Context, segmentID string, limit, offset int) (*models.Segment, []*models.TrainingRow, int, error) {
	segment, err := s.repo.GetSegment(ctx, segmentID)
	if err != nil {
		return nil, nil, 0, err
	}

	rows, total, err := s.repo.GetTrainingRows(ctx, repository.TrainingRowFilter{
		SegmentID: &segmentID,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, nil, 0, err
	}

	return segment, rows, total, nil
}

// GetTrainingRows retrieves output rows with filtering
func (s *SegmentService) GetTrainingRows(ctx context.Context, filter repository.TrainingRowFilter) ([]*models.TrainingRow, int, error) {
	return s.repo.GetTrainingRows(ctx, filter)
}

// GetWeather retrieves weather covariates with filtering
func (s *SegmentService) GetWeather(ctx context.Context, filter repository.WeatherFilter) ([]*models.WeatherObservation, int, error) {
	return s.repo.GetWeather(ctx, filter)
}

// GetLatestRun retrieves the most recent segmentation run
func (s *SegmentService) GetLatestRun(ctx context.Context) (*models.SegmentationRun, error) {
	return s.repo.GetLatestRun(ctx)
}

// GetLocationSummary computes tier counts and density statistics over the
// stored segments of one location
func (s *SegmentService) GetLocationSummary(ctx context.Context, locationID string) (*LocationSummary, error) {
	location, err := s.repo.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}

	var flat []models.Segment
	for offset := 0; ; offset += s.pageSize {
		page, total, err := s.repo.GetSegments(ctx, repository.SegmentFilter{
			LocationID: &locationID,
			Limit:      s.pageSize,
			Offset:     offset,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load segments: %w", err)
		}
		for _, seg := range page {
			flat = append(flat, *seg)
		}
		if len(page) == 0 || offset+len(page) >= total {
			break
		}
	}

	// Limit 0 still reports the total count
	_, retained, err := s.repo.GetTrainingRows(ctx, repository.TrainingRowFilter{
		LocationID: &locationID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count training rows: %w", err)
	}

	summary := segmentation.Summarize(flat)
	summary.RetainedRows = retained

	s.logger.Debug(ctx, "[SUMMARY_COMPUTED] Location summary computed", logging.Fields{
		"location_id": locationID,
		"segments":    summary.Segments,
	})

	return &LocationSummary{Location: location, Summary: summary}, nil
}

// HealthCheck verifies the store is reachable
func (s *SegmentService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}
