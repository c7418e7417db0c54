package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agrimet-labs/climate-hazard-etl/internal/domain"
)

func init() {
	rootCmd.AddCommand(verifyCmd)
}

var verifyCmd = &cobra.Command{
	Use:   "verify BATCH_ID",
	Short: "Re-verify downloaded archives and reset corrupt ones",
	Long: `Verify re-checks every complete archive in the batch. Corrupt or
missing archives are removed and their sub-requests reset to pending so the
next run re-downloads them.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func runVerify(_ *cobra.Command, args []string) error {
	batchID := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	subs, err := a.store.SubRequests(batchID, domain.StatusComplete)
	if err != nil {
		return err
	}

	reset := 0
	for _, sub := range subs {
		verifyErr := domain.VerifyArchive(sub.FilePath)
		if verifyErr == nil {
			continue
		}

		a.logger.Warn("archive failed verification",
			"sub_request", sub.ID, "path", sub.FilePath, "error", verifyErr)
		if err := os.Remove(sub.FilePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove corrupt archive %s: %w", sub.FilePath, err)
		}
		if err := a.store.Transition(batchID, sub.ID, domain.StatusPending, sub.Attempts, verifyErr.Error(), ""); err != nil {
			return err
		}
		reset++
	}

	fmt.Printf("verified %d archives, reset %d\n", len(subs), reset)
	return nil
}
