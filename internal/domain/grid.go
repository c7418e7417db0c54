package domain

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// GridField is one decoded climate grid: scalar values over a regular lat/lon
// mesh at a single time step. Read-only after load; missing cells hold NaN.
type GridField struct {
	Variable string
	Time     time.Time
	Lats     []float64 // ascending
	Lons     []float64 // ascending
	Values   [][]float64
}

// At returns the value at (latIdx, lonIdx).
func (g *GridField) At(latIdx, lonIdx int) float64 {
	return g.Values[latIdx][lonIdx]
}

// Mean returns the simple mean over all non-NaN cells, or NaN for an empty
// field.
func (g *GridField) Mean() float64 {
	sum, n := 0.0, 0
	for _, row := range g.Values {
		for _, v := range row {
			if !math.IsNaN(v) {
				sum += v
				n++
			}
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// VerifyArchive checks that path is a readable, non-empty zip whose members
// decompress cleanly. Used by the retrieval worker before an archive is
// promoted from its temp name; a failure counts as a transient fault.
func VerifyArchive(path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return Transientf("open archive: %v", err)
	}
	defer zr.Close()

	if len(zr.File) == 0 {
		return Transientf("archive %s has no members", path)
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return Transientf("archive member %s: %v", f.Name, err)
		}
		_, err = io.Copy(io.Discard, rc)
		rc.Close()
		if err != nil {
			return Transientf("archive member %s: %v", f.Name, err)
		}
	}
	return nil
}

// DecodeArchive reads a raw archive into grid fields, one per (variable,
// time step). Each zip member is a CSV named <variable>.csv with a
// time,lat,lon,value header. Rows that fail to parse are skipped and counted
// as gaps rather than failing the archive, preserving the rest of the series.
func DecodeArchive(path string) ([]GridField, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("decode archive %s: %w", path, err)
	}
	defer zr.Close()

	var fields []GridField
	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, ".csv") {
			continue
		}
		variable := strings.TrimSuffix(f.Name, ".csv")
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open member %s: %w", f.Name, err)
		}
		memberFields, err := decodeMember(variable, rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("decode member %s: %w", f.Name, err)
		}
		fields = append(fields, memberFields...)
	}

	sort.Slice(fields, func(i, j int) bool {
		if !fields[i].Time.Equal(fields[j].Time) {
			return fields[i].Time.Before(fields[j].Time)
		}
		return fields[i].Variable < fields[j].Variable
	})
	return fields, nil
}

type sample struct {
	lat, lon, value float64
}

// decodeMember parses one CSV member into per-time-step fields on a regular
// mesh reconstructed from the union of observed coordinates.
func decodeMember(variable string, r io.Reader) ([]GridField, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, nil
	}

	byTime := map[time.Time][]sample{}
	latSet := map[float64]struct{}{}
	lonSet := map[float64]struct{}{}

	for _, row := range rows[1:] {
		if len(row) < 4 {
			continue
		}
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(row[0]))
		if err != nil {
			continue
		}
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		val, errVal := strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
		if errLat != nil || errLon != nil || errVal != nil {
			continue
		}
		byTime[ts] = append(byTime[ts], sample{lat: lat, lon: lon, value: val})
		latSet[lat] = struct{}{}
		lonSet[lon] = struct{}{}
	}

	lats := sortedKeys(latSet)
	lons := sortedKeys(lonSet)
	latIdx := indexOf(lats)
	lonIdx := indexOf(lons)

	times := make([]time.Time, 0, len(byTime))
	for ts := range byTime {
		times = append(times, ts)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	fields := make([]GridField, 0, len(times))
	for _, ts := range times {
		values := make([][]float64, len(lats))
		for i := range values {
			row := make([]float64, len(lons))
			for j := range row {
				row[j] = math.NaN()
			}
			values[i] = row
		}
		for _, s := range byTime[ts] {
			values[latIdx[s.lat]][lonIdx[s.lon]] = s.value
		}
		fields = append(fields, GridField{
			Variable: variable,
			Time:     ts,
			Lats:     lats,
			Lons:     lons,
			Values:   values,
		})
	}
	return fields, nil
}

func sortedKeys(set map[float64]struct{}) []float64 {
	out := make([]float64, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Float64s(out)
	return out
}

func indexOf(vals []float64) map[float64]int {
	idx := make(map[float64]int, len(vals))
	for i, v := range vals {
		idx[v] = i
	}
	return idx
}
