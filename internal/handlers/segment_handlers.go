package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"airquality-platform/internal/models"
	"airquality-platform/internal/repository"
	"airquality-platform/internal/services"
	"airquality-platform/pkg/logging"
	"airquality-platform/pkg/metrics"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
	maxPage      = 1000000 // bounds the offset
)

// SegmentQueries is the read side the API serves.
// services.SegmentService implements it.
type SegmentQueries interface {
	GetLocations(ctx context.Context, limit, offset int) ([]*models.Location, int, error)
	GetLocationSummary(ctx context.Context, locationID string) (*services.LocationSummary, error)
	GetSegments(ctx context.Context, filter repository.SegmentFilter) ([]*models.Segment, int, error)
	GetSegmentRows(ctx context.Context, segmentID string, limit, offset int) (*models.Segment, []*models.TrainingRow, int, error)
	GetTrainingRows(ctx context.Context, filter repository.TrainingRowFilter) ([]*models.TrainingRow, int, error)
	GetWeather(ctx context.Context, filter repository.WeatherFilter) ([]*models.WeatherObservation, int, error)
	GetLatestRun(ctx context.Context) (*models.SegmentationRun, error)
	HealthCheck(ctx context.Context) error
}

// SegmentHandler handles segmentation API endpoints
type SegmentHandler struct {
	queries SegmentQueries
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewSegmentHandler creates a new segment handler
func NewSegmentHandler(queries SegmentQueries, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *SegmentHandler {
	return &SegmentHandler{
		queries: queries,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// SegmentRowsResponse is a page of one segment's training rows
type SegmentRowsResponse struct {
	Segment *models.Segment `json:"segment"`
	PaginatedResponse
}

type pagination struct {
	page   int
	limit  int
	offset int
}

// parsePagination reads page and limit, falling back to defaults on bad input
func parsePagination(r *http.Request) pagination {
	page := 1
	limit := defaultLimit

	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = min(p, maxPage)
	}
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= maxLimit {
		limit = l
	}

	return pagination{page: page, limit: limit, offset: (page - 1) * limit}
}

func (p pagination) response(data interface{}, total int) PaginatedResponse {
	return PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       p.page,
		Limit:      p.limit,
		TotalPages: (total + p.limit - 1) / p.limit,
	}
}

// parseTimeParam accepts a date (YYYY-MM-DD) or a full timestamp
func parseTimeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if d, err := time.Parse(time.DateOnly, raw); err == nil {
		return &d, nil
	}
	ts, err := models.ParseTimestamp(raw)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func optionalParam(r *http.Request, name string) *string {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	return &v
}

// GetLocations handles GET /api/locations
func (h *SegmentHandler) GetLocations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := parsePagination(r)

	locations, total, err := h.queries.GetLocations(ctx, p.limit, p.offset)
	if err != nil {
		h.handleError(w, r, "[API_GET_LOCATIONS_ERROR] Failed to get locations", "failed to retrieve locations", err)
		return
	}

	h.sendJSON(w, p.response(locations, total), http.StatusOK)
}

// GetLocationSummary handles GET /api/locations/{location_id}/summary
func (h *SegmentHandler) GetLocationSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	locationID := mux.Vars(r)["location_id"]

	summary, err := h.queries.GetLocationSummary(ctx, locationID)
	if err != nil {
		h.handleError(w, r, "[API_GET_SUMMARY_ERROR] Failed to get location summary", "failed to summarize location", err)
		return
	}

	h.sendJSON(w, summary, http.StatusOK)
}

// GetSegments handles GET /api/segments
func (h *SegmentHandler) GetSegments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := parsePagination(r)

	filter := repository.SegmentFilter{
		LocationID: optionalParam(r, "location_id"),
		Limit:      p.limit,
		Offset:     p.offset,
	}

	if raw := r.URL.Query().Get("tier"); raw != "" {
		tier := models.Tier(raw)
		if !tier.Valid() {
			h.sendError(w, r, "invalid tier, expected gold, silver or bronze", http.StatusBadRequest)
			return
		}
		filter.Tier = &tier
	}

	if raw := r.URL.Query().Get("min_hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours < 0 {
			h.sendError(w, r, "invalid min_hours, expected a non-negative integer", http.StatusBadRequest)
			return
		}
		filter.MinTotalHours = &hours
	}

	segments, total, err := h.queries.GetSegments(ctx, filter)
	if err != nil {
		h.handleError(w, r, "[API_GET_SEGMENTS_ERROR] Failed to get segments", "failed to retrieve segments", err)
		return
	}

	h.sendJSON(w, p.response(segments, total), http.StatusOK)
}

// GetSegmentRows handles GET /api/segments/{segment_id}/rows
func (h *SegmentHandler) GetSegmentRows(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := parsePagination(r)
	segmentID := mux.Vars(r)["segment_id"]

	segment, rows, total, err := h.queries.GetSegmentRows(ctx, segmentID, p.limit, p.offset)
	if err != nil {
		h.handleError(w, r, "[API_GET_SEGMENT_ROWS_ERROR] Failed to get segment rows", "failed to retrieve segment rows", err)
		return
	}

	h.sendJSON(w, SegmentRowsResponse{
		Segment:           segment,
		PaginatedResponse: p.response(rows, total),
	}, http.StatusOK)
}

// GetTrainingRows handles GET /api/training-rows
func (h *SegmentHandler) GetTrainingRows(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := parsePagination(r)

	start, end, ok := h.parseRange(w, r)
	if !ok {
		return
	}

	filter := repository.TrainingRowFilter{
		LocationID: optionalParam(r, "location_id"),
		SegmentID:  optionalParam(r, "segment_id"),
		StartDate:  start,
		EndDate:    end,
		Limit:      p.limit,
		Offset:     p.offset,
	}

	rows, total, err := h.queries.GetTrainingRows(ctx, filter)
	if err != nil {
		h.handleError(w, r, "[API_GET_TRAINING_ROWS_ERROR] Failed to get training rows", "failed to retrieve training rows", err)
		return
	}

	h.sendJSON(w, p.response(rows, total), http.StatusOK)
}

// GetWeather handles GET /api/weather
func (h *SegmentHandler) GetWeather(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := parsePagination(r)

	start, end, ok := h.parseRange(w, r)
	if !ok {
		return
	}

	filter := repository.WeatherFilter{
		LocationID: optionalParam(r, "location_id"),
		StartDate:  start,
		EndDate:    end,
		Limit:      p.limit,
		Offset:     p.offset,
	}

	observations, total, err := h.queries.GetWeather(ctx, filter)
	if err != nil {
		h.handleError(w, r, "[API_GET_WEATHER_ERROR] Failed to get weather", "failed to retrieve weather observations", err)
		return
	}

	h.sendJSON(w, p.response(observations, total), http.StatusOK)
}

// GetLatestRun handles GET /api/runs/latest
func (h *SegmentHandler) GetLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.queries.GetLatestRun(r.Context())
	if err != nil {
		h.handleError(w, r, "[API_GET_LATEST_RUN_ERROR] Failed to get latest run", "failed to retrieve latest run", err)
		return
	}

	h.sendJSON(w, run, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *SegmentHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if err := h.queries.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK_FAILED] Store unreachable", logging.Fields{
			"error": err.Error(),
		})
		status["status"] = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, code)
}

// parseRange reads the start and end query parameters, answering 400 on
// malformed input
func (h *SegmentHandler) parseRange(w http.ResponseWriter, r *http.Request) (start, end *time.Time, ok bool) {
	start, err := parseTimeParam(r.URL.Query().Get("start"))
	if err != nil {
		h.sendError(w, r, "invalid start, expected YYYY-MM-DD or RFC3339", http.StatusBadRequest)
		return nil, nil, false
	}

	end, err = parseTimeParam(r.URL.Query().Get("end"))
	if err != nil {
		h.sendError(w, r, "invalid end, expected YYYY-MM-DD or RFC3339", http.StatusBadRequest)
		return nil, nil, false
	}

	if start != nil && end != nil && end.Before(*start) {
		h.sendError(w, r, "end is before start", http.StatusBadRequest)
		return nil, nil, false
	}

	return start, end, true
}

// handleError maps service errors onto responses. Missing resources are 404,
// everything else is logged and answered with 500.
func (h *SegmentHandler) handleError(w http.ResponseWriter, r *http.Request, logMessage, message string, err error) {
	var notFound *repository.NotFoundError
	if errors.As(err, &notFound) {
		h.sendError(w, r, notFound.Error(), http.StatusNotFound)
		return
	}

	h.logger.Error(r.Context(), logMessage, logging.Fields{
		"path":  r.URL.Path,
		"query": r.URL.RawQuery,
	}, err)
	h.metrics.RecordAPIError("internal_error", routeLabel(r))
	h.sendError(w, r, message, http.StatusInternalServerError)
}

// sendJSON sends a JSON response
func (h *SegmentHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *SegmentHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	if statusCode < http.StatusInternalServerError {
		h.metrics.RecordAPIError("client_error", routeLabel(r))
	}

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all API routes
func (h *SegmentHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/locations", h.GetLocations).Methods("GET")
	router.HandleFunc("/api/locations/{location_id}/summary", h.GetLocationSummary).Methods("GET")
	router.HandleFunc("/api/segments", h.GetSegments).Methods("GET")
	router.HandleFunc("/api/segments/{segment_id}/rows", h.GetSegmentRows).Methods("GET")
	router.HandleFunc("/api/training-rows", h.GetTrainingRows).Methods("GET")
	router.HandleFunc("/api/weather", h.GetWeather).Methods("GET")
	router.HandleFunc("/api/runs/latest", h.GetLatestRun).Methods("GET")
	router.HandleFunc("/api/docs", SwaggerUI).Methods("GET")
	router.HandleFunc(openAPIPath, OpenAPISpec).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}
