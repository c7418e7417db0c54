package hazard

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/agrimet-labs/climate-hazard-etl/internal/aggregate"
	"github.com/agrimet-labs/climate-hazard-etl/internal/domain"
	"github.com/agrimet-labs/climate-hazard-etl/internal/observability"
)

// Calculator computes hazard indicators over per-district series. The same
// input series and params always produce the same records in the same order.
type Calculator struct {
	params  Params
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewCalculator creates a Calculator with the given params.
func NewCalculator(params Params, logger *slog.Logger, metrics *observability.Metrics) *Calculator {
	return &Calculator{params: params, logger: logger, metrics: metrics}
}

// seriesKey groups district values into one time series.
type seriesKey struct {
	districtID string
	variable   string
}

// Compute derives hazard records from district values. Values are grouped
// into (district, variable) series; each configured indicator produces one
// record per year-month period. Variables with no configured metric are
// skipped with a debug log, not an error.
func (c *Calculator) Compute(values []aggregate.DistrictValue) ([]domain.HazardRecord, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("no district values to compute over")
	}

	series := make(map[seriesKey][]aggregate.DistrictValue)
	for _, v := range values {
		k := seriesKey{districtID: v.DistrictID, variable: v.Variable}
		series[k] = append(series[k], v)
	}

	var records []domain.HazardRecord
	for k, vals := range series {
		specs := c.params.forVariable(k.variable)
		if len(specs) == 0 {
			c.logger.Debug("no hazard metric configured", "variable", k.variable)
			continue
		}
		sort.Slice(vals, func(i, j int) bool { return vals[i].Time.Before(vals[j].Time) })

		for _, spec := range specs {
			var recs []domain.HazardRecord
			var err error
			switch spec.Indicator {
			case IndicatorExceedanceCount:
				recs = exceedanceCount(k, vals, spec.Threshold)
			case IndicatorStandardizedAnomaly:
				recs, err = standardizedAnomaly(k, vals, spec)
			}
			if err != nil {
				c.logger.Warn("hazard metric skipped",
					"district", k.districtID, "variable", k.variable,
					"indicator", spec.Indicator, "error", err)
				continue
			}
			records = append(records, recs...)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.DistrictID != b.DistrictID {
			return a.DistrictID < b.DistrictID
		}
		if a.Variable != b.Variable {
			return a.Variable < b.Variable
		}
		return a.Period < b.Period
	})

	c.metrics.HazardRecords.Add(float64(len(records)))
	return records, nil
}

// exceedanceCount counts, per year-month period, the time steps whose value
// strictly exceeds the threshold.
func exceedanceCount(k seriesKey, vals []aggregate.DistrictValue, threshold float64) []domain.HazardRecord {
	counts := make(map[string]int)
	for _, v := range vals {
		period := v.Time.Format("2006-01")
		if _, ok := counts[period]; !ok {
			counts[period] = 0
		}
		if v.Value > threshold {
			counts[period]++
		}
	}

	records := make([]domain.HazardRecord, 0, len(counts))
	for period, n := range counts {
		records = append(records, domain.NewHazardRecord(
			k.districtID, period, k.variable+"_exceedance_count", float64(n)))
	}
	return records
}

// standardizedAnomaly computes, per year-month period, the period mean's
// distance from the baseline-window mean for the same calendar month, in
// baseline standard deviations. Baseline years with no data fail the metric
// for that calendar month only.
func standardizedAnomaly(k seriesKey, vals []aggregate.DistrictValue, spec MetricSpec) ([]domain.HazardRecord, error) {
	type monthStats struct {
		baseline []float64
	}

	periodMeans := make(map[string]float64)
	periodCounts := make(map[string]int)
	byCalendarMonth := make(map[int]*monthStats)

	for _, v := range vals {
		period := v.Time.Format("2006-01")
		periodMeans[period] += v.Value
		periodCounts[period]++

		year := v.Time.Year()
		if year >= spec.BaselineStart && year <= spec.BaselineEnd {
			m := int(v.Time.Month())
			if byCalendarMonth[m] == nil {
				byCalendarMonth[m] = &monthStats{}
			}
			byCalendarMonth[m].baseline = append(byCalendarMonth[m].baseline, v.Value)
		}
	}
	if len(byCalendarMonth) == 0 {
		return nil, fmt.Errorf("no data in baseline window %d-%d", spec.BaselineStart, spec.BaselineEnd)
	}

	var records []domain.HazardRecord
	for period, sum := range periodMeans {
		mean := sum / float64(periodCounts[period])

		ts, err := time.Parse("2006-01", period)
		if err != nil {
			continue
		}
		stats := byCalendarMonth[int(ts.Month())]
		if stats == nil || len(stats.baseline) == 0 {
			continue
		}

		bMean, bStd := meanStd(stats.baseline)
		anomaly := 0.0
		if bStd > 0 {
			anomaly = (mean - bMean) / bStd
		}
		records = append(records, domain.NewHazardRecord(
			k.districtID, period, k.variable+"_std_anomaly", anomaly))
	}
	return records, nil
}

func meanStd(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}
