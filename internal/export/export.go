// Package export writes the hazard record table to flat files for the
// downstream statistical tooling: CSV for scripted pipelines, XLSX for
// collaborators working in spreadsheets.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/tealeg/xlsx/v3"

	"github.com/agrimet-labs/climate-hazard-etl/internal/domain"
)

var header = []string{"district_id", "period", "variable", "value", "produced_at"}

// WriteCSV writes records to path in manifest column order. Records are
// written in the order given; the calculator already sorts them.
func WriteCSV(path string, records []domain.HazardRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.DistrictID,
			r.Period,
			r.Variable,
			strconv.FormatFloat(r.Value, 'g', -1, 64),
			r.ProducedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("write record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}

// WriteXLSX writes records to a single-sheet workbook with the same columns
// as the CSV export.
func WriteXLSX(path string, records []domain.HazardRecord) error {
	wb := xlsx.NewFile()
	sheet, err := wb.AddSheet("hazard_records")
	if err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}

	row := sheet.AddRow()
	for _, h := range header {
		row.AddCell().SetString(h)
	}

	for _, r := range records {
		row := sheet.AddRow()
		row.AddCell().SetString(r.DistrictID)
		row.AddCell().SetString(r.Period)
		row.AddCell().SetString(r.Variable)
		row.AddCell().SetFloat(r.Value)
		row.AddCell().SetString(r.ProducedAt.UTC().Format(time.RFC3339))
	}

	if err := wb.Save(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
