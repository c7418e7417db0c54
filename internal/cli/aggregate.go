package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agrimet-labs/climate-hazard-etl/internal/aggregate"
	"github.com/agrimet-labs/climate-hazard-etl/internal/domain"
	"github.com/agrimet-labs/climate-hazard-etl/internal/export"
)

func init() {
	aggregateCmd.Flags().StringVar(&aggregateOut, "out", "district_values.csv", "output CSV path")
	rootCmd.AddCommand(aggregateCmd)
}

var aggregateOut string

var aggregateCmd = &cobra.Command{
	Use:   "aggregate BATCH_ID",
	Short: "Reduce a batch's grid archives to per-district values",
	Long: `Aggregate decodes every complete archive in the batch and reduces each
grid field to one area-weighted value per district. The intermediate table
is written as CSV; "hazardctl hazard" consumes the same reduction to build
indicator records.`,
	Args: cobra.ExactArgs(1),
	RunE: runAggregate,
}

func runAggregate(_ *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	values, gaps, err := reduceBatch(a, args[0])
	if err != nil {
		return err
	}

	if err := export.WriteValuesCSV(aggregateOut, values); err != nil {
		return err
	}
	fmt.Printf("wrote %d district values to %s (%d gap fallbacks)\n", len(values), aggregateOut, len(gaps))
	return nil
}

// reduceBatch decodes the batch's complete archives and reduces every grid
// field against the configured district set.
func reduceBatch(a *app, batchID string) ([]aggregate.DistrictValue, []domain.GapWarning, error) {
	districts, err := aggregate.LoadDistricts(a.cfg.DistrictsPath)
	if err != nil {
		return nil, nil, err
	}
	agg := aggregate.New(districts, a.logger, a.metrics)

	subs, err := a.store.SubRequests(batchID, domain.StatusComplete)
	if err != nil {
		return nil, nil, err
	}
	if len(subs) == 0 {
		return nil, nil, fmt.Errorf("batch %s has no complete archives", batchID)
	}

	var values []aggregate.DistrictValue
	var gaps []domain.GapWarning
	for _, sub := range subs {
		fields, err := domain.DecodeArchive(sub.FilePath)
		if err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", sub.FilePath, err)
		}
		for _, field := range fields {
			v, g := agg.Reduce(field)
			values = append(values, v...)
			gaps = append(gaps, g...)
		}
	}
	return values, gaps, nil
}
