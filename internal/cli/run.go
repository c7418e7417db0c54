package cli

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httpadapter "github.com/agrimet-labs/climate-hazard-etl/internal/adapter/http"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run BATCH_ID",
	Short: "Drive a batch's downloads to completion",
	Long: `Run dispatches retrieval workers for every pending or retryable
sub-request in the batch. Interrupting with SIGINT stops dispatching and
lets in-flight downloads finish; rerunning resumes where it left off.
Health, readiness, and metrics are served on HTTP_ADDR while running.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	batchID := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	o := a.orchestrator()
	srv := httpadapter.NewServer(a.cfg.HTTPAddr, o, o, a.logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			a.logger.Error("http server error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// First signal requests a drain; the run returns once in-flight
	// downloads finish.
	go func() {
		<-ctx.Done()
		o.Cancel()
	}()

	result, runErr := o.Run(context.WithoutCancel(ctx), batchID)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", "error", err)
	}

	if runErr != nil {
		return runErr
	}

	fmt.Printf("batch %s: %d complete, %d failed\n",
		result.BatchID, result.Counts.Complete, result.Counts.Failed)
	if result.Partial() {
		for _, sub := range result.Failed {
			fmt.Printf("  failed %s (%d attempts): %s\n", sub.ID, sub.Attempts, sub.LastError)
		}
		return fmt.Errorf("%d sub-requests permanently failed", len(result.Failed))
	}
	return nil
}
