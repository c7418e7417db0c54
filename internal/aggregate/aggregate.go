package aggregate

import (
	"log/slog"
	"math"
	"time"

	"github.com/paulmach/orb"

	"github.com/agrimet-labs/climate-hazard-etl/internal/domain"
	"github.com/agrimet-labs/climate-hazard-etl/internal/observability"
)

// supersample is the per-axis sample count used to estimate the fraction of
// a grid cell covered by a district. 16 points per cell keeps the estimate
// stable at ERA5's 0.25 degree resolution without exact polygon clipping.
const supersample = 4

// defaultCellSize is assumed when a grid axis has a single coordinate and no
// spacing can be derived. Matches the ERA5 single-levels grid.
const defaultCellSize = 0.25

// DistrictValue is one reduced observation: a district's area-weighted mean
// of a grid field at one timestamp.
type DistrictValue struct {
	DistrictID string
	Variable   string
	Time       time.Time
	Value      float64
}

// Aggregator reduces grid fields against a fixed district set.
type Aggregator struct {
	districts []District
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates an Aggregator over the given districts.
func New(districts []District, logger *slog.Logger, metrics *observability.Metrics) *Aggregator {
	return &Aggregator{districts: districts, logger: logger, metrics: metrics}
}

// Reduce maps one grid field onto the district set. Every district gets
// exactly one value: districts smaller than a grid cell fall back to the
// cell nearest their centroid, reported as a gap warning rather than an
// error so a single sliver district cannot fail a whole batch.
func (a *Aggregator) Reduce(field domain.GridField) ([]DistrictValue, []domain.GapWarning) {
	dLat := spacing(field.Lats)
	dLon := spacing(field.Lons)

	values := make([]DistrictValue, 0, len(a.districts))
	var gaps []domain.GapWarning
	for _, d := range a.districts {
		v, covered := a.weightedMean(field, d, dLat, dLon)
		if !covered {
			nearest, ok := a.nearestCell(field, d)
			reason := "no grid cell overlap, used nearest cell"
			if !ok {
				reason = "no usable grid data, value is missing"
			}
			v = nearest
			gap := domain.GapWarning{
				DistrictID: d.ID,
				Period:     field.Time.Format("2006-01"),
				Reason:     reason,
			}
			gaps = append(gaps, gap)
			a.metrics.AggregationGaps.Inc()
			a.logger.Warn("aggregation gap", "district", d.ID, "variable", field.Variable, "reason", gap.Reason)
		}
		values = append(values, DistrictValue{
			DistrictID: d.ID,
			Variable:   field.Variable,
			Time:       field.Time,
			Value:      v,
		})
	}

	a.metrics.FieldsAggregated.Inc()
	return values, gaps
}

// weightedMean computes the fractional-overlap weighted mean of the field
// over the district. The fraction of each cell inside the district is
// estimated by testing a supersample x supersample lattice of points.
func (a *Aggregator) weightedMean(field domain.GridField, d District, dLat, dLon float64) (float64, bool) {
	var sum, weight float64
	for i, lat := range field.Lats {
		if lat+dLat/2 < d.Bound.Min[1] || lat-dLat/2 > d.Bound.Max[1] {
			continue
		}
		for j, lon := range field.Lons {
			if lon+dLon/2 < d.Bound.Min[0] || lon-dLon/2 > d.Bound.Max[0] {
				continue
			}
			v := field.At(i, j)
			if math.IsNaN(v) {
				continue
			}
			f := cellFraction(d, lat, lon, dLat, dLon)
			if f == 0 {
				continue
			}
			sum += f * v
			weight += f
		}
	}
	if weight == 0 {
		return 0, false
	}
	return sum / weight, true
}

// cellFraction estimates the fraction of the cell centered at (lat, lon)
// covered by the district. Sample points sit at the centers of a uniform
// sub-lattice so the estimate is unbiased for axis-aligned boundaries.
func cellFraction(d District, lat, lon, dLat, dLon float64) float64 {
	inside := 0
	for si := 0; si < supersample; si++ {
		sLat := lat - dLat/2 + dLat*(float64(si)+0.5)/supersample
		for sj := 0; sj < supersample; sj++ {
			sLon := lon - dLon/2 + dLon*(float64(sj)+0.5)/supersample
			if d.contains(orb.Point{sLon, sLat}) {
				inside++
			}
		}
	}
	return float64(inside) / (supersample * supersample)
}

// nearestCell returns the value of the non-NaN cell closest to the district
// centroid, for districts no cell overlaps. Reports false when the field has
// no non-NaN cell at all.
func (a *Aggregator) nearestCell(field domain.GridField, d District) (float64, bool) {
	c := d.centroid()
	best := math.NaN()
	bestDist := math.Inf(1)
	found := false
	for i, lat := range field.Lats {
		for j, lon := range field.Lons {
			v := field.At(i, j)
			if math.IsNaN(v) {
				continue
			}
			dist := (lat-c[1])*(lat-c[1]) + (lon-c[0])*(lon-c[0])
			if dist < bestDist {
				bestDist = dist
				best = v
				found = true
			}
		}
	}
	return best, found
}

// spacing derives the grid step from a coordinate axis. Axes are sorted
// ascending by the archive decoder.
func spacing(coords []float64) float64 {
	if len(coords) < 2 {
		return defaultCellSize
	}
	return coords[1] - coords[0]
}
