package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agrimet-labs/climate-hazard-etl/internal/domain"
)

func init() {
	submitCmd.Flags().IntVar(&submitStartYear, "start-year", 0, "first year to download (required)")
	submitCmd.Flags().IntVar(&submitEndYear, "end-year", 0, "last year to download (required)")
	submitCmd.Flags().StringSliceVar(&submitVariables, "variables", nil, "ERA5 variables (default: the standard crop-hazard set)")
	submitCmd.Flags().Float64Var(&submitArea.MinLat, "min-lat", domain.IndiaArea.MinLat, "southern bound")
	submitCmd.Flags().Float64Var(&submitArea.MaxLat, "max-lat", domain.IndiaArea.MaxLat, "northern bound")
	submitCmd.Flags().Float64Var(&submitArea.MinLon, "min-lon", domain.IndiaArea.MinLon, "western bound")
	submitCmd.Flags().Float64Var(&submitArea.MaxLon, "max-lon", domain.IndiaArea.MaxLon, "eastern bound")
	submitCmd.MarkFlagRequired("start-year") //nolint:errcheck // flag exists
	submitCmd.MarkFlagRequired("end-year")   //nolint:errcheck // flag exists
	rootCmd.AddCommand(submitCmd)
}

var (
	submitStartYear int
	submitEndYear   int
	submitVariables []string
	submitArea      domain.BoundingBox
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Partition a download request into a new batch",
	Long: `Submit validates a request spec, partitions it into sub-requests small
enough for the remote queue, and persists the batch manifest. Nothing is
downloaded until "hazardctl run" drives the batch.`,
	Args: cobra.NoArgs,
	RunE: runSubmit,
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	spec := domain.RequestSpec{
		StartYear: submitStartYear,
		EndYear:   submitEndYear,
		Variables: submitVariables,
		Area:      submitArea,
		Format:    domain.FormatZip,
	}
	if len(spec.Variables) == 0 {
		spec.Variables = domain.DefaultVariables
	}
	if err := spec.Validate(); err != nil {
		return err
	}

	batchID, err := a.orchestrator().Submit(cmd.Context(), spec)
	if err != nil {
		return err
	}

	fmt.Println(batchID)
	return nil
}
