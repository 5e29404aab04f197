package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"airquality-platform/internal/models"
)

func ingestFixture(t *testing.T, store *MemoryStore) {
	t.Helper()
	logger, m, _ := newTestDeps(t)
	if _, err := NewIngestionService(store, logger, m).IngestDirectory(context.Background(), writeExportFixture(t), 25); err != nil {
		t.Fatalf("ingest fixture: %v", err)
	}
}

func density(v float64) *float64 {
	return &v
}

// TestSegmentationService_Run tests a full pipeline pass over the fixture
func TestSegmentationService_Run(t *testing.T) {
	store := NewMemoryStore()
	ingestFixture(t, store)

	logger, m, _ := newTestDeps(t)
	svc := NewSegmentationService(store, fixtureParams(), logger, m)

	now := hour0.Add(47*time.Hour + 30*time.Minute)
	report, err := svc.Run(context.Background(), now, RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []models.Segment{
		{
			SegmentID:      "101_S1",
			LocationID:     "101",
			SegmentsNum:    1,
			Start:          hour0,
			End:            hour0.Add(9 * time.Hour),
			TotalHours:     10,
			PerfectHours:   10,
			PerfectDensity: density(1),
			Tier:           models.TierBronze,
			SegmentsTotal:  2,
		},
		{
			SegmentID:      "101_S2",
			LocationID:     "101",
			SegmentsNum:    2,
			Start:          hour0.Add(20 * time.Hour),
			End:            hour0.Add(29 * time.Hour),
			TotalHours:     10,
			PerfectHours:   10,
			PerfectDensity: density(1),
			Tier:           models.TierBronze,
			SegmentsTotal:  2,
		},
	}
	if diff := cmp.Diff(want, store.Segments()); diff != "" {
		t.Errorf("stored segments mismatch (-want +got):\n%s", diff)
	}

	rows := store.TrainingRows()
	if len(rows) != 20 {
		t.Fatalf("stored rows = %d, want 20", len(rows))
	}
	if rows[0].IsNewSegment != 1 || rows[0].HoursSinceLast != nil {
		t.Errorf("first row = %+v, want segment opener without hours_since_last", rows[0])
	}
	if rows[10].IsNewSegment != 1 || rows[10].HoursSinceLast == nil || *rows[10].HoursSinceLast != 11 {
		t.Errorf("row 10 = %+v, want new segment 11 hours after the last perfect hour", rows[10])
	}
	if pm25 := rows[1].Get(models.PollutantPM25); pm25 == nil || *pm25 != 42 {
		t.Errorf("hour 1 pm25 = %v, want merged value 42", pm25)
	}

	run := report.Run
	if _, err := uuid.Parse(run.RunID); err != nil {
		t.Errorf("RunID %q is not a uuid: %v", run.RunID, err)
	}
	wantRun := models.SegmentationRun{
		AnalysisStart:      hour0,
		MeasurementsRead:   126,
		LocationsTotal:     1,
		LocationsSegmented: 1,
		GridRows:           48,
		RetainedRows:       20,
		SegmentsTotal:      2,
		BronzeSegments:     2,
		MeanDensity:        density(1),
		StdDevDensity:      density(0),
		MeanTotalHours:     density(10),
	}
	ignore := cmpopts.IgnoreFields(models.SegmentationRun{}, "RunID", "StartedAt", "FinishedAt")
	if diff := cmp.Diff(wantRun, run, ignore); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}

	runs := store.Runs()
	if len(runs) != 1 || runs[0].RunID != run.RunID {
		t.Errorf("recorded runs = %+v, want the reported run", runs)
	}

	if got := testutil.ToFloat64(m.PipelineRunsTotal.WithLabelValues(RunStatusSuccess)); got != 1 {
		t.Errorf("success runs metric = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SegmentsByTier.WithLabelValues("bronze")); got != 2 {
		t.Errorf("bronze segments metric = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.PipelineRowsTotal.WithLabelValues("pivot")); got != 48 {
		t.Errorf("pivot rows metric = %v, want 48", got)
	}
}

// TestSegmentationService_Idempotent tests that rerunning replaces rather
// than appends output
func TestSegmentationService_Idempotent(t *testing.T) {
	store := NewMemoryStore()
	ingestFixture(t, store)

	logger, m, _ := newTestDeps(t)
	svc := NewSegmentationService(store, fixtureParams(), logger, m)
	now := hour0.Add(47 * time.Hour)

	first, err := svc.Run(context.Background(), now, RunOptions{})
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	firstRows := store.TrainingRows()

	second, err := svc.Run(context.Background(), now, RunOptions{})
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if diff := cmp.Diff(firstRows, store.TrainingRows()); diff != "" {
		t.Errorf("rerun changed output (-first +second):\n%s", diff)
	}
	if first.Run.RunID == second.Run.RunID {
		t.Error("reruns share a run id")
	}
	if len(store.Runs()) != 2 {
		t.Errorf("recorded runs = %d, want 2", len(store.Runs()))
	}
}

// TestSegmentationService_DryRun tests that dry runs leave the store untouched
func TestSegmentationService_DryRun(t *testing.T) {
	store := NewMemoryStore()
	ingestFixture(t, store)

	logger, m, _ := newTestDeps(t)
	svc := NewSegmentationService(store, fixtureParams(), logger, m)

	report, err := svc.Run(context.Background(), hour0.Add(47*time.Hour), RunOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !report.DryRun || report.Summary.Segments != 2 {
		t.Errorf("report = %+v, want dry run with 2 segments", report.Summary)
	}
	if len(store.Segments()) != 0 || len(store.Runs()) != 0 {
		t.Error("dry run wrote to the store")
	}
	if got := testutil.ToFloat64(m.PipelineRunsTotal.WithLabelValues(RunStatusDryRun)); got != 1 {
		t.Errorf("dry runs metric = %v, want 1", got)
	}
}

type brokenPipelineStore struct {
	*MemoryStore
	loadErr  error
	storeErr error
}

func (b *brokenPipelineStore) MeasurementsSince(ctx context.Context, since time.Time) ([]models.RawMeasurement, error) {
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	return b.MemoryStore.MeasurementsSince(ctx, since)
}

func (b *brokenPipelineStore) ReplaceSegmentation(ctx context.Context, segments []models.Segment, rows []models.TrainingRow, run *models.SegmentationRun) error {
	if b.storeErr != nil {
		return b.storeErr
	}
	return b.MemoryStore.ReplaceSegmentation(ctx, segments, rows, run)
}

// TestSegmentationService_Failures tests that store failures propagate
func TestSegmentationService_Failures(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name  string
		store *brokenPipelineStore
		stage string
	}{
		{"load failure", &brokenPipelineStore{MemoryStore: NewMemoryStore(), loadErr: errBoom}, "load"},
		{"store failure", &brokenPipelineStore{MemoryStore: NewMemoryStore(), storeErr: errBoom}, "store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ingestFixture(t, tt.store.MemoryStore)

			logger, m, reg := newTestDeps(t)
			svc := NewSegmentationService(tt.store, fixtureParams(), logger, m)

			_, err := svc.Run(context.Background(), hour0.Add(47*time.Hour), RunOptions{})
			if !errors.Is(err, errBoom) {
				t.Fatalf("error = %v, want wrapped boom", err)
			}
			if got := testutil.ToFloat64(m.PipelineRunsTotal.WithLabelValues(RunStatusFailed)); got != 1 {
				t.Errorf("failed runs metric = %v, want 1", got)
			}
			if got := stageSamples(t, reg, tt.stage); got != 1 {
				t.Errorf("%s stage observations = %d, want 1", tt.stage, got)
			}
		})
	}
}

// TestSegmentationService_Cancelled tests cancellation during segmentation
func TestSegmentationService_Cancelled(t *testing.T) {
	store := NewMemoryStore()
	ingestFixture(t, store)

	logger, m, reg := newTestDeps(t)
	svc := NewSegmentationService(store, fixtureParams(), logger, m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Run(ctx, hour0.Add(47*time.Hour), RunOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if len(store.Segments()) != 0 {
		t.Error("cancelled run wrote segments")
	}
	if got := stageSamples(t, reg, "segment"); got != 1 {
		t.Errorf("segment stage observations = %d, want 1", got)
	}
	if got := stageSamples(t, reg, "store"); got != 0 {
		t.Errorf("store stage observations = %d, want 0", got)
	}
}

// stageSamples returns how many durations were observed for one pipeline stage
func stageSamples(t *testing.T, reg *prometheus.Registry, stage string) uint64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "airquality_pipeline_stage_duration_seconds" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "stage" && label.GetValue() == stage {
					return metric.GetHistogram().GetSampleCount()
				}
			}
		}
	}
	return 0
}
