package segmentation

import (
	"sort"
	"time"

	"airquality-platform/internal/models"
)

// LocationGrid holds the dense hourly rows of one location in timestamp order
type LocationGrid struct {
	LocationID string
	Rows       []models.PivotedRow
}

// BuildGrid cross joins every observed location with the hourly spine and
// left joins the per-hour maximum of each tracked pollutant onto it.
// ConcurrentSensors of a row is the number of its non-null pollutant columns.
// Hours without measurements become rows with nil values and zero
// concurrent sensors, so every location gets exactly one row per spine hour
// at or after AnalysisStart. Grids are returned sorted by location id.
func BuildGrid(params Params, normalized []models.NormalizedMeasurement, now time.Time) []LocationGrid {
	aggregated := make(map[locationHour]*models.PivotedRow)
	locations := make(map[string]bool)

	for _, n := range normalized {
		// Measurements from unknown sensors have no place on the grid
		if n.LocationID == "" {
			continue
		}
		locations[n.LocationID] = true

		key := keyOf(n.LocationID, n.DatetimeUTC)
		row, ok := aggregated[key]
		if !ok {
			row = &models.PivotedRow{
				LocationID:  n.LocationID,
				DatetimeUTC: n.DatetimeUTC.UTC(),
			}
			aggregated[key] = row
		}

		row.Max(n.Pollutant, n.Value)
	}

	// Counted from the pivoted columns: two sensors reporting the same
	// pollutant fill one column.
	for _, row := range aggregated {
		row.ConcurrentSensors = row.Count()
	}

	ids := make([]string, 0, len(locations))
	for id := range locations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	size := SpineLength(params.AnalysisStart, now)
	grids := make([]LocationGrid, 0, len(ids))

	for _, id := range ids {
		rows := make([]models.PivotedRow, 0, size)
		for ts := range HourlySpine(params.AnalysisStart, now) {
			if ts.Before(params.AnalysisStart) {
				continue
			}
			if row, ok := aggregated[keyOf(id, ts)]; ok {
				rows = append(rows, *row)
				continue
			}
			rows = append(rows, models.PivotedRow{
				LocationID:  id,
				DatetimeUTC: ts,
			})
		}
		grids = append(grids, LocationGrid{LocationID: id, Rows: rows})
	}

	return grids
}
