package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestReadExport tests header normalization and per-row failure counting
func TestReadExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.csv")
	writeFile(t, path,
		"\ufeffSensor_ID,period.datetimeTo.utc,value",
		"1001,2024-03-01T00:00:00Z,1",
		"1002,2024-03-01T00:00:00Z",
		"1003,2024-03-01T00:00:00Z,3,extra",
		"reject,2024-03-01T00:00:00Z,4",
	)

	var got []map[string]string
	total, failed, err := readExport(context.Background(), path, func(record map[string]string) error {
		if record["sensor_id"] == "reject" {
			return errors.New("rejected")
		}
		got = append(got, record)
		return nil
	})
	if err != nil {
		t.Fatalf("readExport() error = %v", err)
	}

	if total != 4 || failed != 1 {
		t.Errorf("total/failed = %d/%d, want 4/1", total, failed)
	}

	want := []map[string]string{
		{"sensor_id": "1001", "period_datetimeto_utc": "2024-03-01T00:00:00Z", "value": "1"},
		{"sensor_id": "1002", "period_datetimeto_utc": "2024-03-01T00:00:00Z"},
		{"sensor_id": "1003", "period_datetimeto_utc": "2024-03-01T00:00:00Z", "value": "3"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

// TestReadExport_Abort tests that an abort error stops the read at that row
func TestReadExport_Abort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.csv")
	writeFile(t, path,
		"sensor_id,value",
		"1001,1",
		"bad,2",
		"1002,3",
		"1003,4",
	)

	writeErr := errors.New("write failed")
	var seen []string
	total, failed, err := readExport(context.Background(), path, func(record map[string]string) error {
		seen = append(seen, record["sensor_id"])
		switch record["sensor_id"] {
		case "bad":
			return errors.New("rejected")
		case "1002":
			return &abortError{err: writeErr}
		}
		return nil
	})

	if !errors.Is(err, writeErr) {
		t.Fatalf("readExport() error = %v, want %v", err, writeErr)
	}
	if total != 3 || failed != 1 {
		t.Errorf("total/failed = %d/%d, want 3/1", total, failed)
	}
	if diff := cmp.Diff([]string{"1001", "bad", "1002"}, seen); diff != "" {
		t.Errorf("rows read mismatch (-want +got):\n%s", diff)
	}
}

// TestReadExport_EmptyFile tests that a file without a header has no rows
func TestReadExport_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	writeFile(t, path)

	total, failed, err := readExport(context.Background(), path, func(map[string]string) error {
		t.Fatal("callback called for empty file")
		return nil
	})
	if err != nil || total != 0 || failed != 0 {
		t.Errorf("readExport() = %d, %d, %v; want 0, 0, nil", total, failed, err)
	}
}
