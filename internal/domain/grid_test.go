package domain_test

import (
	"archive/zip"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrimet-labs/climate-hazard-etl/internal/domain"
)

func writeArchive(t *testing.T, members map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.zip")
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	for name, content := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestVerifyArchive(t *testing.T) {
	path := writeArchive(t, map[string]string{"2m_temperature.csv": "time,lat,lon,value\n"})
	assert.NoError(t, domain.VerifyArchive(path))
}

func TestVerifyArchive_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(path, []byte("this is not a zip"), 0o600))

	err := domain.VerifyArchive(path)
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestVerifyArchive_Empty(t *testing.T) {
	path := writeArchive(t, map[string]string{})

	err := domain.VerifyArchive(path)
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestDecodeArchive(t *testing.T) {
	csv := "time,lat,lon,value\n" +
		"2021-06-01T00:00:00Z,20.00,77.00,300.0\n" +
		"2021-06-01T00:00:00Z,20.00,77.25,302.0\n" +
		"2021-06-01T00:00:00Z,20.25,77.00,304.0\n" +
		"2021-06-01T00:00:00Z,20.25,77.25,306.0\n" +
		"2021-07-01T00:00:00Z,20.00,77.00,310.0\n"
	path := writeArchive(t, map[string]string{"2m_temperature.csv": csv})

	fields, err := domain.DecodeArchive(path)
	require.NoError(t, err)
	require.Len(t, fields, 2)

	june := fields[0]
	assert.Equal(t, "2m_temperature", june.Variable)
	assert.Equal(t, time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC), june.Time)
	assert.Equal(t, []float64{20.00, 20.25}, june.Lats)
	assert.Equal(t, []float64{77.00, 77.25}, june.Lons)
	assert.Equal(t, 300.0, june.At(0, 0))
	assert.Equal(t, 306.0, june.At(1, 1))
	assert.InDelta(t, 303.0, june.Mean(), 1e-9)

	// July only has one sample; the rest of the mesh is NaN and excluded
	// from the mean.
	july := fields[1]
	assert.Equal(t, 310.0, july.At(0, 0))
	assert.True(t, math.IsNaN(july.At(1, 1)))
	assert.InDelta(t, 310.0, july.Mean(), 1e-9)
}

func TestDecodeArchive_SkipsBadRows(t *testing.T) {
	csv := "time,lat,lon,value\n" +
		"not-a-time,20.00,77.00,300.0\n" +
		"2021-06-01T00:00:00Z,garbage,77.00,300.0\n" +
		"2021-06-01T00:00:00Z,20.00,77.00,299.5\n"
	path := writeArchive(t, map[string]string{"total_precipitation.csv": csv})

	fields, err := domain.DecodeArchive(path)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, 299.5, fields[0].At(0, 0))
}

func TestDecodeArchive_SortsByTimeThenVariable(t *testing.T) {
	row := "2021-06-01T00:00:00Z,20.00,77.00,1.0\n"
	path := writeArchive(t, map[string]string{
		"total_precipitation.csv": "time,lat,lon,value\n" + row,
		"2m_temperature.csv":      "time,lat,lon,value\n" + row,
	})

	fields, err := domain.DecodeArchive(path)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "2m_temperature", fields[0].Variable)
	assert.Equal(t, "total_precipitation", fields[1].Variable)
}
