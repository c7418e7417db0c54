package aggregate_test

import (
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrimet-labs/climate-hazard-etl/internal/aggregate"
	"github.com/agrimet-labs/climate-hazard-etl/internal/domain"
	"github.com/agrimet-labs/climate-hazard-etl/internal/observability"
)

// rect builds a rectangular district from lon/lat bounds.
func rect(id string, minLon, minLat, maxLon, maxLat float64) aggregate.District {
	poly := orb.Polygon{{
		{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat},
	}}
	geom := orb.MultiPolygon{poly}
	return aggregate.District{ID: id, Geometry: geom, Bound: geom.Bound()}
}

func testField(values [][]float64) domain.GridField {
	return domain.GridField{
		Variable: "2m_temperature",
		Time:     time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
		Lats:     []float64{20.0, 20.25},
		Lons:     []float64{77.0, 77.25},
		Values:   values,
	}
}

func newAggregator(districts ...aggregate.District) *aggregate.Aggregator {
	return aggregate.New(districts, slog.Default(), observability.NewMetricsForTesting())
}

func TestReduce_DistrictCoveringGridGetsSimpleMean(t *testing.T) {
	// District extends well past every cell, so all fractions are 1 and
	// the weighted mean collapses to the plain mean.
	d := rect("IN-01", 76.0, 19.0, 78.5, 21.5)
	agg := newAggregator(d)

	values, gaps := agg.Reduce(testField([][]float64{{1, 2}, {3, 4}}))

	require.Len(t, values, 1)
	assert.Empty(t, gaps)
	assert.Equal(t, "IN-01", values[0].DistrictID)
	assert.Equal(t, "2m_temperature", values[0].Variable)
	assert.InDelta(t, 2.5, values[0].Value, 1e-9)
}

func TestReduce_TwoDistrictsSplitTheGrid(t *testing.T) {
	// Boundary at 77.125 sits between the two lon columns.
	west := rect("IN-W", 76.8, 19.8, 77.125, 20.5)
	east := rect("IN-E", 77.125, 19.8, 77.6, 20.5)
	agg := newAggregator(west, east)

	values, gaps := agg.Reduce(testField([][]float64{{1, 2}, {3, 4}}))

	require.Len(t, values, 2)
	assert.Empty(t, gaps)
	assert.InDelta(t, 2.0, values[0].Value, 1e-9) // mean of column 0
	assert.InDelta(t, 3.0, values[1].Value, 1e-9) // mean of column 1
}

func TestReduce_SliverDistrictFallsBackToNearestCell(t *testing.T) {
	// Far outside the grid: no cell overlaps, nearest cell is (20.0, 77.0).
	sliver := rect("IN-S", 76.0, 19.0, 76.01, 19.01)
	agg := newAggregator(sliver)

	values, gaps := agg.Reduce(testField([][]float64{{1, 2}, {3, 4}}))

	require.Len(t, values, 1)
	require.Len(t, gaps, 1)
	assert.Equal(t, "IN-S", gaps[0].DistrictID)
	assert.Equal(t, "2021-06", gaps[0].Period)
	assert.InDelta(t, 1.0, values[0].Value, 1e-9)
}

func TestReduce_NaNCellsAreExcluded(t *testing.T) {
	d := rect("IN-01", 76.0, 19.0, 78.5, 21.5)
	agg := newAggregator(d)

	values, gaps := agg.Reduce(testField([][]float64{{1, math.NaN()}, {3, math.NaN()}}))

	require.Len(t, values, 1)
	assert.Empty(t, gaps)
	assert.InDelta(t, 2.0, values[0].Value, 1e-9)
}

func TestReduce_AllMissingFieldReportsMissingValue(t *testing.T) {
	d := rect("IN-01", 76.0, 19.0, 78.5, 21.5)
	agg := newAggregator(d)

	nan := math.NaN()
	values, gaps := agg.Reduce(testField([][]float64{{nan, nan}, {nan, nan}}))

	require.Len(t, values, 1)
	require.Len(t, gaps, 1)
	assert.Equal(t, "no usable grid data, value is missing", gaps[0].Reason)
	assert.True(t, math.IsNaN(values[0].Value))
}

func TestLoadDistricts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "districts.geojson")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"type": "FeatureCollection",
		"features": [
			{
				"type": "Feature",
				"properties": {"district_id": "IN-01", "name": "Alpha"},
				"geometry": {"type": "Polygon", "coordinates": [[[77,20],[78,20],[78,21],[77,21],[77,20]]]}
			},
			{
				"type": "Feature",
				"properties": {"district_id": "IN-02"},
				"geometry": {"type": "MultiPolygon", "coordinates": [[[[78,20],[79,20],[79,21],[78,21],[78,20]]]]}
			}
		]
	}`), 0o600))

	districts, err := aggregate.LoadDistricts(path)
	require.NoError(t, err)
	require.Len(t, districts, 2)
	assert.Equal(t, "IN-01", districts[0].ID)
	assert.Equal(t, "Alpha", districts[0].Name)
	assert.Equal(t, "IN-02", districts[1].ID)
	assert.False(t, districts[0].Bound.IsEmpty())
}

func TestLoadDistricts_MissingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "districts.geojson")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"type": "FeatureCollection",
		"features": [
			{
				"type": "Feature",
				"properties": {"name": "Anonymous"},
				"geometry": {"type": "Polygon", "coordinates": [[[77,20],[78,20],[78,21],[77,21],[77,20]]]}
			}
		]
	}`), 0o600))

	_, err := aggregate.LoadDistricts(path)
	assert.ErrorContains(t, err, "district_id")
}

func TestLoadDistricts_DuplicateID(t *testing.T) {
	feature := `{
		"type": "Feature",
		"properties": {"district_id": "IN-01"},
		"geometry": {"type": "Polygon", "coordinates": [[[77,20],[78,20],[78,21],[77,21],[77,20]]]}
	}`
	path := filepath.Join(t.TempDir(), "districts.geojson")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"FeatureCollection","features":[`+feature+`,`+feature+`]}`), 0o600))

	_, err := aggregate.LoadDistricts(path)
	assert.ErrorContains(t, err, "duplicate")
}
