package segmentation

import (
	"gonum.org/v1/gonum/stat"

	"airquality-platform/internal/models"
)

// Density returns perfect/total, or nil when total is zero
func Density(perfect, total int) *float64 {
	if total <= 0 {
		return nil
	}
	d := float64(perfect) / float64(total)
	return &d
}

// TierFor classifies a segment by its span in hours
func (p Params) TierFor(totalHours int) models.Tier {
	switch {
	case totalHours >= p.GoldHours:
		return models.TierGold
	case totalHours >= p.SilverHours:
		return models.TierSilver
	default:
		return models.TierBronze
	}
}

// Summary describes a set of segments
type Summary struct {
	Segments       int                 `json:"segments"`
	RetainedRows   int                 `json:"retained_rows"`
	Tiers          map[models.Tier]int `json:"tiers"`
	MeanDensity    *float64            `json:"mean_density"`
	StdDevDensity  *float64            `json:"stddev_density"`
	MeanTotalHours *float64            `json:"mean_total_hours"`
}

// Summarize computes tier counts and density/length statistics.
// Statistics are nil when there are no segments; the standard deviation
// of a single segment is zero.
func Summarize(segments []models.Segment) Summary {
	s := Summary{
		Segments: len(segments),
		Tiers: map[models.Tier]int{
			models.TierGold:   0,
			models.TierSilver: 0,
			models.TierBronze: 0,
		},
	}

	var densities, hours []float64
	for _, seg := range segments {
		s.Tiers[seg.Tier]++
		hours = append(hours, float64(seg.TotalHours))
		if seg.PerfectDensity != nil {
			densities = append(densities, *seg.PerfectDensity)
		}
	}

	if len(hours) > 0 {
		mean := stat.Mean(hours, nil)
		s.MeanTotalHours = &mean
	}

	if len(densities) > 0 {
		mean := stat.Mean(densities, nil)
		std := 0.0
		if len(densities) > 1 {
			std = stat.StdDev(densities, nil)
		}
		s.MeanDensity = &mean
		s.StdDevDensity = &std
	}

	return s
}

// Summary summarizes the segments and retained rows of a run
func (r *Result) Summary() Summary {
	s := Summarize(r.Segments)
	s.RetainedRows = len(r.Rows)
	return s
}

// SegmentedLocations counts the locations that produced at least one segment
func (r *Result) SegmentedLocations() int {
	n := 0
	for _, l := range r.Locations {
		if len(l.Segments) > 0 {
			n++
		}
	}
	return n
}
