package hazard_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrimet-labs/climate-hazard-etl/internal/aggregate"
	"github.com/agrimet-labs/climate-hazard-etl/internal/domain"
	"github.com/agrimet-labs/climate-hazard-etl/internal/hazard"
	"github.com/agrimet-labs/climate-hazard-etl/internal/observability"
)

func newCalculator(t *testing.T, params hazard.Params) *hazard.Calculator {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })
	return hazard.NewCalculator(params, slog.Default(), observability.NewMetricsForTesting())
}

func dv(district, variable string, ts time.Time, value float64) aggregate.DistrictValue {
	return aggregate.DistrictValue{DistrictID: district, Variable: variable, Time: ts, Value: value}
}

func TestCompute_ExceedanceCount(t *testing.T) {
	params := hazard.Params{Metrics: []hazard.MetricSpec{{
		Variable:  "2m_temperature",
		Indicator: hazard.IndicatorExceedanceCount,
		Threshold: 308.0,
	}}}
	calc := newCalculator(t, params)

	june := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	values := []aggregate.DistrictValue{
		dv("IN-01", "2m_temperature", june, 310.0),
		dv("IN-01", "2m_temperature", june.AddDate(0, 0, 1), 305.0),
		dv("IN-01", "2m_temperature", june.AddDate(0, 0, 2), 309.0),
		dv("IN-01", "2m_temperature", time.Date(2021, 7, 1, 0, 0, 0, 0, time.UTC), 300.0),
	}

	records, err := calc.Compute(values)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "2021-06", records[0].Period)
	assert.Equal(t, "2m_temperature_exceedance_count", records[0].Variable)
	assert.Equal(t, 2.0, records[0].Value)

	// A period with no exceedances still gets an explicit zero.
	assert.Equal(t, "2021-07", records[1].Period)
	assert.Equal(t, 0.0, records[1].Value)
}

func TestCompute_StandardizedAnomaly(t *testing.T) {
	params := hazard.Params{Metrics: []hazard.MetricSpec{{
		Variable:      "total_precipitation",
		Indicator:     hazard.IndicatorStandardizedAnomaly,
		BaselineStart: 2019,
		BaselineEnd:   2020,
	}}}
	calc := newCalculator(t, params)

	values := []aggregate.DistrictValue{
		dv("IN-01", "total_precipitation", time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC), 10.0),
		dv("IN-01", "total_precipitation", time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), 14.0),
		dv("IN-01", "total_precipitation", time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC), 16.0),
	}

	records, err := calc.Compute(values)
	require.NoError(t, err)

	// Baseline June: mean 12, stddev 2. 2021 sits two deviations above.
	require.Len(t, records, 3)
	assert.Equal(t, "2019-06", records[0].Period)
	assert.InDelta(t, -1.0, records[0].Value, 1e-9)
	assert.InDelta(t, 1.0, records[1].Value, 1e-9)
	assert.Equal(t, "2021-06", records[2].Period)
	assert.InDelta(t, 2.0, records[2].Value, 1e-9)
	assert.Equal(t, "total_precipitation_std_anomaly", records[2].Variable)
}

func TestCompute_ZeroVarianceBaselineYieldsZeroAnomaly(t *testing.T) {
	params := hazard.Params{Metrics: []hazard.MetricSpec{{
		Variable:      "total_precipitation",
		Indicator:     hazard.IndicatorStandardizedAnomaly,
		BaselineStart: 2019,
		BaselineEnd:   2020,
	}}}
	calc := newCalculator(t, params)

	values := []aggregate.DistrictValue{
		dv("IN-01", "total_precipitation", time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC), 5.0),
		dv("IN-01", "total_precipitation", time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), 5.0),
		dv("IN-01", "total_precipitation", time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC), 9.0),
	}

	records, err := calc.Compute(values)
	require.NoError(t, err)
	for _, r := range records {
		assert.Equal(t, 0.0, r.Value)
	}
}

func TestCompute_UnconfiguredVariableIsSkipped(t *testing.T) {
	params := hazard.Params{Metrics: []hazard.MetricSpec{{
		Variable:  "2m_temperature",
		Indicator: hazard.IndicatorExceedanceCount,
		Threshold: 300,
	}}}
	calc := newCalculator(t, params)

	values := []aggregate.DistrictValue{
		dv("IN-01", "surface_pressure", time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC), 1000.0),
	}

	records, err := calc.Compute(values)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCompute_EmptyInput(t *testing.T) {
	calc := newCalculator(t, hazard.Params{Metrics: []hazard.MetricSpec{{
		Variable:  "2m_temperature",
		Indicator: hazard.IndicatorExceedanceCount,
	}}})

	_, err := calc.Compute(nil)
	assert.Error(t, err)
}

func TestCompute_IsDeterministic(t *testing.T) {
	params := hazard.Params{Metrics: []hazard.MetricSpec{
		{Variable: "2m_temperature", Indicator: hazard.IndicatorExceedanceCount, Threshold: 305},
		{Variable: "total_precipitation", Indicator: hazard.IndicatorStandardizedAnomaly, BaselineStart: 2019, BaselineEnd: 2021},
	}}
	calc := newCalculator(t, params)

	var values []aggregate.DistrictValue
	for year := 2019; year <= 2021; year++ {
		for month := 1; month <= 12; month++ {
			ts := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
			for _, district := range []string{"IN-02", "IN-01"} {
				values = append(values,
					dv(district, "2m_temperature", ts, 300+float64(month)),
					dv(district, "total_precipitation", ts, float64(year-2018)*float64(month)),
				)
			}
		}
	}

	first, err := calc.Compute(values)
	require.NoError(t, err)
	second, err := calc.Compute(values)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	// Output is sorted by district, variable, period.
	for i := 1; i < len(first); i++ {
		a, b := first[i-1], first[i]
		assert.LessOrEqual(t, a.DistrictID, b.DistrictID)
		if a.DistrictID == b.DistrictID && a.Variable == b.Variable {
			assert.Less(t, a.Period, b.Period)
		}
	}
}
