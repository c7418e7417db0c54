package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status [BATCH_ID]",
	Short: "Show batch progress from the manifest",
	Long:  `Without an argument, status lists known batches. With a batch ID it prints per-status sub-request counts.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 0 {
		ids, err := a.store.Batches()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("no batches")
			return nil
		}
		for _, id := range ids {
			counts, err := a.store.StatusCounts(id)
			if err != nil {
				return err
			}
			fmt.Printf("%s  pending=%d running=%d complete=%d failed=%d\n",
				id, counts.Pending, counts.Running, counts.Complete, counts.Failed)
		}
		return nil
	}

	counts, err := a.orchestrator().Status(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("pending=%d running=%d complete=%d failed=%d done=%v\n",
		counts.Pending, counts.Running, counts.Complete, counts.Failed, counts.Done())
	return nil
}
