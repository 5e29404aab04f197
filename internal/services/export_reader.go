package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"airquality-platform/internal/models"
)

// abortError marks a callback error that stops reading the rest of the file
type abortError struct {
	err error
}

func (e *abortError) Error() string { return e.err.Error() }

func (e *abortError) Unwrap() error { return e.err }

// readExport streams a CSV export with a header row, handing each row to fn
// keyed by normalized column name. Rows that fn rejects are counted as
// failed and skipped. I/O errors, malformed CSV and an *abortError from fn
// stop the read.
func readExport(ctx context.Context, path string, fn func(record map[string]string) error) (total, failed int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.ReuseRecord = true
	// short rows leave trailing columns empty; extra cells are ignored
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = models.NormalizeHeader(h)
	}

	for {
		if err := ctx.Err(); err != nil {
			return total, failed, err
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, failed, fmt.Errorf("error reading file: %w", err)
		}

		total++

		record := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(row) {
				record[col] = row[i]
			}
		}

		if err := fn(record); err != nil {
			var abort *abortError
			if errors.As(err, &abort) {
				return total, failed, abort.err
			}
			failed++
		}
	}

	return total, failed, nil
}
