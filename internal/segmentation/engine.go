package segmentation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"airquality-platform/internal/models"
)

// LocationResult is the segmentation output of one location
type LocationResult struct {
	LocationID string
	Segments   []models.Segment
	Rows       []models.TrainingRow
}

// Result is the merged output of one engine run, ordered by location id
// then timestamp
type Result struct {
	Locations []LocationResult
	Segments  []models.Segment
	Rows      []models.TrainingRow
	GridRows  int
}

// Engine segments every location grid on a bounded worker pool.
// Locations are independent; no state is shared between workers.
type Engine struct {
	params Params
}

// NewEngine creates an engine for params
func NewEngine(params Params) *Engine {
	return &Engine{params: params}
}

// Params returns the parameters the engine was built with
func (e *Engine) Params() Params {
	return e.params
}

// Run segments all grids. The output depends only on the grids, never on
// scheduling, so repeated runs over the same input are identical.
// The only error is cancellation of ctx.
func (e *Engine) Run(ctx context.Context, grids []LocationGrid) (*Result, error) {
	results := make([]LocationResult, len(grids))

	workers := e.params.Workers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range grids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = SegmentLocation(e.params, grids[i])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("segmentation aborted: %w", err)
	}

	result := &Result{Locations: results}
	for i, r := range results {
		result.GridRows += len(grids[i].Rows)
		result.Segments = append(result.Segments, r.Segments...)
		result.Rows = append(result.Rows, r.Rows...)
	}

	return result, nil
}

// candidate is a grid row that survived the retained-row filter
type candidate struct {
	row        models.PivotedRow
	perfect    bool
	hoursSince *int
	isNew      bool
}

// SegmentLocation runs the perfect-hour segmentation fold over one location.
//
// A row is perfect when every tracked pollutant reported. Rows before the
// first perfect hour are dropped. A row opens a new segment when it is the
// first perfect hour or when it is perfect and more than ShatterGapHours
// after the previous perfect hour. Imperfect rows further than
// ShatterGapHours from the previous perfect hour are dropped, and each
// segment is cut back to its last perfect hour.
func SegmentLocation(params Params, grid LocationGrid) LocationResult {
	rows := grid.Rows
	if !sort.SliceIsSorted(rows, func(i, j int) bool { return rows[i].DatetimeUTC.Before(rows[j].DatetimeUTC) }) {
		rows = append([]models.PivotedRow(nil), rows...)
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].DatetimeUTC.Before(rows[j].DatetimeUTC) })
	}

	required := params.RequiredSensors()
	gap := params.ShatterGapHours

	var groups [][]candidate
	var lastPerfect *time.Time

	for _, row := range rows {
		perfect := row.ConcurrentSensors == required
		if lastPerfect == nil && !perfect {
			continue
		}

		var hoursSince *int
		if lastPerfect != nil {
			h := int(row.DatetimeUTC.Sub(*lastPerfect) / time.Hour)
			hoursSince = &h
		}

		isNew := lastPerfect == nil || (perfect && *hoursSince > gap)
		if isNew {
			groups = append(groups, nil)
		}

		if perfect || *hoursSince <= gap {
			n := len(groups) - 1
			groups[n] = append(groups[n], candidate{
				row:        row,
				perfect:    perfect,
				hoursSince: hoursSince,
				isNew:      isNew,
			})
		}

		if perfect {
			ts := row.DatetimeUTC
			lastPerfect = &ts
		}
	}

	result := LocationResult{LocationID: grid.LocationID}

	type kept struct {
		segment models.Segment
		members []candidate
	}
	var segments []kept

	for i, group := range groups {
		group = trimToLastPerfect(group)
		if len(group) == 0 {
			continue
		}

		seg := aggregate(params, grid.LocationID, i+1, group)
		if seg.TotalHours < params.MinSegmentHours {
			continue
		}
		segments = append(segments, kept{segment: seg, members: group})
	}

	for _, k := range segments {
		seg := k.segment
		seg.SegmentsTotal = len(segments)
		result.Segments = append(result.Segments, seg)

		for _, c := range k.members {
			result.Rows = append(result.Rows, trainingRow(c, seg))
		}
	}

	return result
}

// trimToLastPerfect drops the trailing imperfect rows of a segment
func trimToLastPerfect(group []candidate) []candidate {
	for i := len(group) - 1; i >= 0; i-- {
		if group[i].perfect {
			return group[:i+1]
		}
	}
	return nil
}

func aggregate(params Params, locationID string, num int, group []candidate) models.Segment {
	start := group[0].row.DatetimeUTC
	end := group[len(group)-1].row.DatetimeUTC

	perfect := 0
	for _, c := range group {
		if c.perfect {
			perfect++
		}
	}

	total := int(end.Sub(start)/time.Hour) + 1

	return models.Segment{
		SegmentID:      SegmentID(locationID, num),
		LocationID:     locationID,
		SegmentsNum:    num,
		Start:          start,
		End:            end,
		TotalHours:     total,
		PerfectHours:   perfect,
		PerfectDensity: Density(perfect, total),
		Tier:           params.TierFor(total),
	}
}

func trainingRow(c candidate, seg models.Segment) models.TrainingRow {
	isNew := 0
	if c.isNew {
		isNew = 1
	}

	return models.TrainingRow{
		LocationID:            c.row.LocationID,
		DatetimeUTC:           c.row.DatetimeUTC,
		HoursSinceLast:        c.hoursSince,
		ConcurrentSensors:     c.row.ConcurrentSensors,
		IsNewSegment:          isNew,
		PollutantValues:       c.row.PollutantValues,
		SegmentID:             seg.SegmentID,
		SegmentStart:          seg.Start,
		SegmentEnd:            seg.End,
		SegmentPerfectHours:   seg.PerfectHours,
		SegmentTotalHours:     seg.TotalHours,
		SegmentPerfectDensity: seg.PerfectDensity,
		SegmentTier:           seg.Tier,
		SegmentsNum:           seg.SegmentsNum,
		SegmentsTotal:         seg.SegmentsTotal,
	}
}

// SegmentID formats the location scoped segment identifier
func SegmentID(locationID string, num int) string {
	return fmt.Sprintf("%s_S%d", locationID, num)
}
