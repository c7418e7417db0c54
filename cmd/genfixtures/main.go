// Command genfixtures writes local development fixtures: a synthetic grid
// archive shaped like a real retrieval, a district GeoJSON over the same
// area, and a hazard params file. It uses the actual domain encoding so the
// fixtures stay valid when the archive layout changes.
//
// Usage:
//
//	go run ./cmd/genfixtures -out data/fixtures
package main

import (
	"archive/zip"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/agrimet-labs/climate-hazard-etl/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out", "data/fixtures", "output directory for fixtures")
	year := flag.Int("year", 2021, "year stamped on the synthetic archive")
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}

	// Fixed clock for reproducible timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.June, 1, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	archivePath := filepath.Join(*outDir, fmt.Sprintf("era5_%d_fixture.zip", *year))
	if err := writeArchive(archivePath, *year); err != nil {
		return fmt.Errorf("writing archive fixture: %w", err)
	}
	log.Printf("wrote archive fixture: %s", archivePath)

	districtsPath := filepath.Join(*outDir, "districts.geojson")
	if err := os.WriteFile(districtsPath, []byte(districtsGeoJSON), 0o600); err != nil {
		return fmt.Errorf("writing districts fixture: %w", err)
	}
	log.Printf("wrote districts fixture: %s", districtsPath)

	paramsPath := filepath.Join(*outDir, "hazard.yaml")
	if err := os.WriteFile(paramsPath, []byte(hazardParams), 0o600); err != nil {
		return fmt.Errorf("writing hazard params fixture: %w", err)
	}
	log.Printf("wrote hazard params fixture: %s", paramsPath)
	return nil
}

// writeArchive produces a zip with one CSV member per default variable,
// covering a 5x5 grid over the fixture districts for twelve monthly steps.
func writeArchive(path string, year int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(f)

	for vi, variable := range domain.DefaultVariables {
		w, err := zw.Create(variable + ".csv")
		if err != nil {
			return err
		}
		if _, err := w.Write([]byte("time,lat,lon,value\n")); err != nil {
			return err
		}

		for month := 1; month <= 12; month++ {
			ts := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
			for i := 0; i < 5; i++ {
				lat := 20.0 + 0.25*float64(i)
				for j := 0; j < 5; j++ {
					lon := 77.0 + 0.25*float64(j)
					v := syntheticValue(vi, month, lat, lon)
					row := ts.Format(time.RFC3339) + "," +
						strconv.FormatFloat(lat, 'f', 2, 64) + "," +
						strconv.FormatFloat(lon, 'f', 2, 64) + "," +
						strconv.FormatFloat(v, 'f', 4, 64) + "\n"
					if _, err := w.Write([]byte(row)); err != nil {
						return err
					}
				}
			}
		}
	}

	if err := zw.Close(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	// The fixture must pass the same check real downloads do.
	return domain.VerifyArchive(path)
}

// syntheticValue gives each variable a distinct seasonal cycle with a mild
// spatial gradient, so aggregation and anomaly tests see non-trivial data.
func syntheticValue(variable, month int, lat, lon float64) float64 {
	seasonal := math.Sin(2 * math.Pi * float64(month-1) / 12)
	base := 280.0 + 10.0*float64(variable)
	return base + 15*seasonal + (lat-20.0) + 0.5*(lon-77.0)
}

// Two rectangular districts inside the synthetic grid, plus a sliver too
// small to overlap any cell, to exercise the nearest-cell fallback.
const districtsGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"district_id": "IN-MH-01", "name": "West Block"},
      "geometry": {
        "type": "Polygon",
        "coordinates": [[[77.0, 20.0], [77.5, 20.0], [77.5, 21.0], [77.0, 21.0], [77.0, 20.0]]]
      }
    },
    {
      "type": "Feature",
      "properties": {"district_id": "IN-MH-02", "name": "East Block"},
      "geometry": {
        "type": "Polygon",
        "coordinates": [[[77.5, 20.0], [78.0, 20.0], [78.0, 21.0], [77.5, 21.0], [77.5, 20.0]]]
      }
    },
    {
      "type": "Feature",
      "properties": {"district_id": "IN-MH-03", "name": "Sliver"},
      "geometry": {
        "type": "Polygon",
        "coordinates": [[[76.0, 19.0], [76.01, 19.0], [76.01, 19.01], [76.0, 19.01], [76.0, 19.0]]]
      }
    }
  ]
}
`

const hazardParams = `metrics:
  - variable: 2m_temperature
    indicator: exceedance_count
    threshold: 290.0
  - variable: total_precipitation
    indicator: standardized_anomaly
    baseline_start: 2019
    baseline_end: 2021
`
