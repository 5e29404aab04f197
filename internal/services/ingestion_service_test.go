package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"airquality-platform/internal/models"
)

// TestIngestionService_IngestDirectory tests a full export directory load
func TestIngestionService_IngestDirectory(t *testing.T) {
	logger, m, _ := newTestDeps(t)
	store := NewMemoryStore()
	dir := writeExportFixture(t)

	svc := NewIngestionService(store, logger, m)
	result, err := svc.IngestDirectory(context.Background(), dir, 7)
	if err != nil {
		t.Fatalf("IngestDirectory() error = %v", err)
	}

	want := []FileIngestionResult{
		{Path: filepath.Join(dir, "locations.csv"), Dataset: DatasetLocations, TotalRecords: 2, SuccessfulRecords: 1, FailedRecords: 1, Applied: 1},
		{Path: filepath.Join(dir, "sensors.csv"), Dataset: DatasetSensors, TotalRecords: 6, SuccessfulRecords: 6, Applied: 6},
		{Path: filepath.Join(dir, "measurements", "part-001.csv"), Dataset: DatasetMeasurements, TotalRecords: 128, SuccessfulRecords: 126, FailedRecords: 2, Applied: 126},
		{Path: filepath.Join(dir, "measurements", "part-002.csv"), Dataset: DatasetMeasurements, TotalRecords: 2, SuccessfulRecords: 2, Applied: 1},
		{Path: filepath.Join(dir, "weather", "101.csv"), Dataset: DatasetWeather, TotalRecords: 2, SuccessfulRecords: 2, Applied: 2},
	}
	if diff := cmp.Diff(want, result.Files); diff != "" {
		t.Errorf("file results mismatch (-want +got):\n%s", diff)
	}

	if result.TotalFiles != 5 {
		t.Errorf("TotalFiles = %d, want 5", result.TotalFiles)
	}
	if result.TotalRecords != 140 || result.SuccessfulRecords != 137 || result.FailedRecords != 3 {
		t.Errorf("records = %d/%d/%d, want 140/137/3",
			result.TotalRecords, result.SuccessfulRecords, result.FailedRecords)
	}
	if result.MeasurementsApplied != 127 {
		t.Errorf("MeasurementsApplied = %d, want 127", result.MeasurementsApplied)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Errors = %v, want none", result.Errors)
	}

	ctx := context.Background()
	locations, _ := store.AllLocations(ctx)
	if len(locations) != 1 || locations[0].ID != "101" || !locations[0].IsMonitor {
		t.Errorf("locations = %+v, want one monitor 101", locations)
	}

	measurements, _ := store.MeasurementsSince(ctx, hour0)
	if len(measurements) != 126 {
		t.Fatalf("stored measurements = %d, want 126", len(measurements))
	}

	// measurements are ordered by sensor then hour, so 1001 hours 0 and 1 lead
	if got := *measurements[0].Value; got != 1.5 {
		t.Errorf("stale update applied: hour 0 value = %v, want 1.5", got)
	}
	if got := *measurements[1].Value; got != 42 {
		t.Errorf("newer update ignored: hour 1 value = %v, want 42", got)
	}

	if store.WeatherCount() != 2 {
		t.Errorf("weather = %d, want 2", store.WeatherCount())
	}

	if got := testutil.ToFloat64(m.IngestionRecordsTotal.WithLabelValues(DatasetMeasurements)); got != 127 {
		t.Errorf("ingested measurements metric = %v, want 127", got)
	}
	if got := testutil.ToFloat64(m.IngestionErrorsTotal.WithLabelValues("conversion_error")); got != 3 {
		t.Errorf("conversion errors metric = %v, want 3", got)
	}
}

// TestIngestionService_Errors tests directory level failures
func TestIngestionService_Errors(t *testing.T) {
	logger, m, _ := newTestDeps(t)
	svc := NewIngestionService(NewMemoryStore(), logger, m)
	ctx := context.Background()

	t.Run("missing directory", func(t *testing.T) {
		if _, err := svc.IngestDirectory(ctx, filepath.Join(t.TempDir(), "nope"), 10); err == nil {
			t.Error("expected error for missing directory")
		}
	})

	t.Run("empty directory", func(t *testing.T) {
		if _, err := svc.IngestDirectory(ctx, t.TempDir(), 10); err == nil {
			t.Error("expected error for directory without exports")
		}
	})

	t.Run("invalid batch size", func(t *testing.T) {
		if _, err := svc.IngestDirectory(ctx, writeExportFixture(t), 0); err == nil {
			t.Error("expected error for zero batch size")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := svc.IngestDirectory(cctx, writeExportFixture(t), 10)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})
}

type failingStore struct {
	*MemoryStore
	err   error
	calls int
}

func (f *failingStore) MergeMeasurements(context.Context, []*models.RawMeasurement) (int, error) {
	f.calls++
	return 0, f.err
}

// TestIngestionService_StoreFailure tests that a failed write skips the file
// and is reported without aborting the run
func TestIngestionService_StoreFailure(t *testing.T) {
	logger, m, _ := newTestDeps(t)
	store := &failingStore{MemoryStore: NewMemoryStore(), err: errors.New("disk full")}
	svc := NewIngestionService(store, logger, m)

	result, err := svc.IngestDirectory(context.Background(), writeExportFixture(t), 50)
	if err != nil {
		t.Fatalf("IngestDirectory() error = %v", err)
	}

	if len(result.Errors) != 2 {
		t.Fatalf("Errors = %v, want one per measurement file", result.Errors)
	}

	datasets := make([]string, 0, len(result.Files))
	for _, f := range result.Files {
		datasets = append(datasets, f.Dataset)
	}
	want := []string{DatasetLocations, DatasetSensors, DatasetWeather}
	if diff := cmp.Diff(want, datasets, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("ingested datasets mismatch (-want +got):\n%s", diff)
	}

	if got := testutil.ToFloat64(m.IngestionErrorsTotal.WithLabelValues("file_error")); got != 2 {
		t.Errorf("file errors metric = %v, want 2", got)
	}
}

// TestIngestionService_StoreFailureStopsFile tests that the first failed
// write ends the file instead of reading the remaining rows
func TestIngestionService_StoreFailureStopsFile(t *testing.T) {
	logger, m, _ := newTestDeps(t)
	store := &failingStore{MemoryStore: NewMemoryStore(), err: errors.New("disk full")}
	svc := NewIngestionService(store, logger, m)

	result, err := svc.IngestDirectory(context.Background(), writeExportFixture(t), 1)
	if err != nil {
		t.Fatalf("IngestDirectory() error = %v", err)
	}

	if store.calls != 2 {
		t.Errorf("MergeMeasurements calls = %d, want 2 (one per measurement file)", store.calls)
	}
	if len(result.Errors) != 2 {
		t.Errorf("Errors = %v, want one per measurement file", result.Errors)
	}
	for _, e := range result.Errors {
		if !strings.Contains(e, "disk full") {
			t.Errorf("error %q does not carry the store error", e)
		}
	}
}
