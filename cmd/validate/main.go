// Command validate performs integrity checks over pipeline outputs before
// they are shared with collaborators: the district values CSV from
// aggregation and the hazard records CSV. It verifies schema, parseability,
// duplicate keys, and cross-file district coverage.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -districts data/districts.geojson \
//	  -values district_values.csv \
//	  -hazard hazard_records.csv
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/agrimet-labs/climate-hazard-etl/internal/aggregate"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	districtsPath := flag.String("districts", "", "district GeoJSON file")
	valuesPath := flag.String("values", "", "district values CSV from aggregation")
	hazardPath := flag.String("hazard", "", "hazard records CSV")
	flag.Parse()

	if *districtsPath == "" || *valuesPath == "" || *hazardPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*districtsPath, *valuesPath, *hazardPath); code != 0 {
		os.Exit(code)
	}
}

func run(districtsPath, valuesPath, hazardPath string) int {
	fmt.Println("=== Hazard Export Integrity Validation ===")
	fmt.Println()

	districts, err := aggregate.LoadDistricts(districtsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load districts: %v\n", err)
		return 1
	}

	values, err := loadCSV(valuesPath, []string{"district_id", "variable", "time", "value"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load values CSV: %v\n", err)
		return 1
	}

	hazard, err := loadCSV(hazardPath, []string{"district_id", "period", "variable", "value", "produced_at"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load hazard CSV: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateValues(values, districts),
		validateHazard(hazard, districts),
		validateCoverage(values, hazard),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d district values, %d hazard records, %d districts\n",
		len(values), len(hazard), len(districts))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// csvRow is a parsed row with field values keyed by header name.
type csvRow struct {
	lineNum int
	fields  map[string]string
}

func loadCSV(path string, requiredCols []string) ([]csvRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	all, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(all) < 2 {
		return nil, fmt.Errorf("no data rows in %s", path)
	}

	header := all[0]
	have := map[string]bool{}
	for _, h := range header {
		have[h] = true
	}
	for _, col := range requiredCols {
		if !have[col] {
			return nil, fmt.Errorf("%s: missing column %q", path, col)
		}
	}

	var rows []csvRow
	for i, row := range all[1:] {
		fields := make(map[string]string, len(header))
		for j, h := range header {
			if j < len(row) {
				fields[h] = row[j]
			}
		}
		rows = append(rows, csvRow{lineNum: i + 2, fields: fields})
	}
	return rows, nil
}

// validateValues checks the aggregation output: known districts, parseable
// timestamps, finite values, no duplicate (district, variable, time) keys.
func validateValues(rows []csvRow, districts []aggregate.District) *phase {
	p := &phase{name: "Phase 1: District Values"}
	known := districtIDs(districts)

	seen := map[string]int{}
	for _, row := range rows {
		id := row.fields["district_id"]
		if !known[id] {
			p.errorf("line %d: unknown district_id %q", row.lineNum, id)
		}
		if _, err := time.Parse(time.RFC3339, row.fields["time"]); err != nil {
			p.errorf("line %d: bad time %q", row.lineNum, row.fields["time"])
		}
		checkFinite(p, row, "value")

		key := id + "|" + row.fields["variable"] + "|" + row.fields["time"]
		if prev, ok := seen[key]; ok {
			p.errorf("line %d: duplicate of line %d (key=%s)", row.lineNum, prev, key)
		}
		seen[key] = row.lineNum
	}
	return p
}

// validateHazard checks the indicator output: known districts, year-month
// periods, finite values, no duplicate (district, period, variable) keys.
func validateHazard(rows []csvRow, districts []aggregate.District) *phase {
	p := &phase{name: "Phase 2: Hazard Records"}
	known := districtIDs(districts)

	seen := map[string]int{}
	for _, row := range rows {
		id := row.fields["district_id"]
		if !known[id] {
			p.errorf("line %d: unknown district_id %q", row.lineNum, id)
		}
		if _, err := time.Parse("2006-01", row.fields["period"]); err != nil {
			p.errorf("line %d: bad period %q", row.lineNum, row.fields["period"])
		}
		if _, err := time.Parse(time.RFC3339, row.fields["produced_at"]); err != nil {
			p.errorf("line %d: bad produced_at %q", row.lineNum, row.fields["produced_at"])
		}
		checkFinite(p, row, "value")

		key := id + "|" + row.fields["period"] + "|" + row.fields["variable"]
		if prev, ok := seen[key]; ok {
			p.errorf("line %d: duplicate of line %d (key=%s)", row.lineNum, prev, key)
		}
		seen[key] = row.lineNum
	}
	return p
}

// validateCoverage checks that every district present in the values table
// also produced at least one hazard record.
func validateCoverage(values, hazard []csvRow) *phase {
	p := &phase{name: "Phase 3: Cross-file Coverage"}

	inHazard := map[string]bool{}
	for _, row := range hazard {
		inHazard[row.fields["district_id"]] = true
	}
	reported := map[string]bool{}
	for _, row := range values {
		id := row.fields["district_id"]
		if reported[id] {
			continue
		}
		if !inHazard[id] {
			p.errorf("district %s has values but no hazard records", id)
			reported[id] = true
		}
	}
	return p
}

func checkFinite(p *phase, row csvRow, col string) {
	v, err := strconv.ParseFloat(row.fields[col], 64)
	if err != nil {
		p.errorf("line %d: bad %s %q", row.lineNum, col, row.fields[col])
		return
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		p.errorf("line %d: %s is not finite", row.lineNum, col)
	}
}

func districtIDs(districts []aggregate.District) map[string]bool {
	ids := make(map[string]bool, len(districts))
	for _, d := range districts {
		ids[d.ID] = true
	}
	return ids
}
