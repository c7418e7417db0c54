// Package aggregate reduces gridded reanalysis fields to per-district values.
// Districts are GeoJSON polygons; each grid cell contributes to a district in
// proportion to the fraction of the cell the district covers.
package aggregate

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// District is one administrative unit with its boundary geometry. Bound is
// precomputed so the per-cell overlap test can skip far-away districts.
type District struct {
	ID       string
	Name     string
	Geometry orb.MultiPolygon
	Bound    orb.Bound
}

// LoadDistricts reads a GeoJSON feature collection of district boundaries.
// Each feature needs a "district_id" property; "name" is optional. Polygon
// and MultiPolygon geometries are accepted, anything else is rejected.
func LoadDistricts(path string) ([]District, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read districts: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("parse districts: %w", err)
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("districts file %s has no features", path)
	}

	districts := make([]District, 0, len(fc.Features))
	seen := make(map[string]bool, len(fc.Features))
	for i, f := range fc.Features {
		id, ok := f.Properties["district_id"].(string)
		if !ok || id == "" {
			return nil, fmt.Errorf("feature %d has no district_id property", i)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate district_id %q", id)
		}
		seen[id] = true

		var geom orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			geom = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			geom = g
		default:
			return nil, fmt.Errorf("district %s: unsupported geometry %T", id, f.Geometry)
		}

		name, _ := f.Properties["name"].(string)
		districts = append(districts, District{
			ID:       id,
			Name:     name,
			Geometry: geom,
			Bound:    geom.Bound(),
		})
	}
	return districts, nil
}

// contains reports whether the district covers the point.
func (d District) contains(p orb.Point) bool {
	if !d.Bound.Contains(p) {
		return false
	}
	return planar.MultiPolygonContains(d.Geometry, p)
}

// centroid returns the area-weighted centroid of the district.
func (d District) centroid() orb.Point {
	c, _ := planar.CentroidArea(d.Geometry)
	return c
}
