package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agrimet-labs/climate-hazard-etl/internal/domain"
)

// execute drives one sub-request to a terminal state: attempt, verify,
// promote, with exponential backoff between transient failures. The archive
// only ever appears under its final name after verification, so a crash at
// any point leaves either nothing or a good file.
func (o *Orchestrator) execute(ctx context.Context, sub domain.SubRequest) {
	final := sub.ArchivePath(o.opts.RawDir)

	// A file under the final name was verified by an earlier run. Rerunning
	// a batch must not re-download it.
	if _, err := os.Stat(final); err == nil {
		o.logger.Info("archive already present, skipping", "sub_request", sub.ID, "path", final)
		o.complete(sub, sub.Attempts, final)
		return
	}

	attempts := sub.Attempts
	backoff := o.opts.BackoffBase
	for {
		attempts++

		start := domain.Clock().Now()
		err := o.attempt(ctx, sub, attempts, final)
		if err == nil {
			o.metrics.DownloadDuration.Observe(domain.Clock().Since(start).Seconds())
			o.complete(sub, attempts, final)
			return
		}

		retryable := domain.IsRetryable(err) && ctx.Err() == nil
		if !retryable || attempts >= o.opts.RetryLimit {
			o.fail(sub, attempts, err)
			return
		}

		o.metrics.DownloadRetries.Inc()
		o.logger.Warn("sub-request attempt failed, backing off",
			"sub_request", sub.ID, "attempt", attempts, "backoff", backoff, "error", err)
		o.transition(sub, domain.StatusPending, attempts, err.Error(), "")

		if !sleepWithContext(ctx, backoff) {
			o.fail(sub, attempts, err)
			return
		}
		backoff = nextBackoff(backoff, o.opts.BackoffMultiplier, o.opts.BackoffMax)
	}
}

// attempt performs one submit-poll-download-verify cycle into a temp file and
// promotes it to final on success.
func (o *Orchestrator) attempt(ctx context.Context, sub domain.SubRequest, attempts int, final string) error {
	attemptCtx := ctx
	if o.opts.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, o.opts.AttemptTimeout)
		defer cancel()
	}

	o.transition(sub, domain.StatusSubmitted, attempts, "", "")

	if err := os.MkdirAll(o.opts.TempDir, 0o755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	tmp := filepath.Join(o.opts.TempDir, sub.ID+".part")
	defer os.Remove(tmp)

	o.transition(sub, domain.StatusRunning, attempts, "", "")
	if err := o.fetcher.Fetch(attemptCtx, sub, tmp); err != nil {
		return err
	}

	if err := domain.VerifyArchive(tmp); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("promote archive: %w", err)
	}
	return nil
}

func (o *Orchestrator) complete(sub domain.SubRequest, attempts int, path string) {
	o.metrics.DownloadsTotal.WithLabelValues("complete").Inc()
	o.transition(sub, domain.StatusComplete, attempts, "", path)
}

func (o *Orchestrator) fail(sub domain.SubRequest, attempts int, cause error) {
	o.metrics.DownloadsTotal.WithLabelValues("failed").Inc()
	o.logger.Error("sub-request permanently failed",
		"sub_request", sub.ID, "attempts", attempts, "error", cause)
	o.transition(sub, domain.StatusFailed, attempts, cause.Error(), "")
}

// transition records a manifest status change. A manifest write failing is a
// local disk problem; the worker logs it and carries on so one bad write does
// not wedge the batch.
func (o *Orchestrator) transition(sub domain.SubRequest, status domain.Status, attempts int, lastErr, path string) {
	if err := o.store.Transition(sub.BatchID, sub.ID, status, attempts, lastErr, path); err != nil {
		o.logger.Error("manifest transition failed",
			"sub_request", sub.ID, "status", status, "error", err)
	}
}
