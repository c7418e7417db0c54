package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/agrimet-labs/climate-hazard-etl/internal/aggregate"
)

// WriteValuesCSV writes the intermediate per-district value table. This is
// the aggregation output before indicators are applied, useful for auditing
// the spatial reduction.
func WriteValuesCSV(path string, values []aggregate.DistrictValue) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"district_id", "variable", "time", "value"}); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, v := range values {
		row := []string{
			v.DistrictID,
			v.Variable,
			v.Time.UTC().Format(time.RFC3339),
			strconv.FormatFloat(v.Value, 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("write value: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}
