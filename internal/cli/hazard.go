package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agrimet-labs/climate-hazard-etl/internal/adapter/kafka"
	"github.com/agrimet-labs/climate-hazard-etl/internal/export"
	"github.com/agrimet-labs/climate-hazard-etl/internal/hazard"
)

func init() {
	hazardCmd.Flags().StringVar(&hazardCSV, "csv", "hazard_records.csv", "output CSV path")
	hazardCmd.Flags().StringVar(&hazardXLSX, "xlsx", "", "optional XLSX output path")
	rootCmd.AddCommand(hazardCmd)
}

var (
	hazardCSV  string
	hazardXLSX string
)

var hazardCmd = &cobra.Command{
	Use:   "hazard BATCH_ID",
	Short: "Compute hazard indicator records for a batch",
	Long: `Hazard reduces the batch's archives to district series and computes the
indicators configured in the hazard params file. Records are written as CSV,
optionally as XLSX, and published to Kafka when KAFKA_ENABLED is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runHazard,
}

func runHazard(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	params, err := hazard.LoadParams(a.cfg.HazardParamsPath)
	if err != nil {
		return err
	}

	values, gaps, err := reduceBatch(a, args[0])
	if err != nil {
		return err
	}
	if len(gaps) > 0 {
		a.logger.Warn("aggregation used fallbacks", "gaps", len(gaps))
	}

	calc := hazard.NewCalculator(params, a.logger, a.metrics)
	records, err := calc.Compute(values)
	if err != nil {
		return err
	}

	if err := export.WriteCSV(hazardCSV, records); err != nil {
		return err
	}
	if hazardXLSX != "" {
		if err := export.WriteXLSX(hazardXLSX, records); err != nil {
			return err
		}
	}

	if a.cfg.KafkaEnabled {
		a.metrics.HazardSinkEnabled.Set(1)
		writer := kafka.NewWriter(a.cfg, a.logger, a.metrics)
		defer writer.Close() //nolint:errcheck // best-effort close after publish
		if err := writer.PublishBatch(cmd.Context(), records); err != nil {
			return fmt.Errorf("publish hazard records: %w", err)
		}
	}

	fmt.Printf("wrote %d hazard records to %s\n", len(records), hazardCSV)
	return nil
}
