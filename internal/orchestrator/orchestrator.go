// Package orchestrator drives a manifest of sub-requests to completion with
// bounded concurrency. It owns batch lifecycle (submit, run, status, cancel);
// per-attempt transfer mechanics live in worker.go.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/agrimet-labs/climate-hazard-etl/internal/domain"
	"github.com/agrimet-labs/climate-hazard-etl/internal/manifest"
	"github.com/agrimet-labs/climate-hazard-etl/internal/observability"
)

// Fetcher executes the remote side of one sub-request attempt: submit, poll,
// and stream the archive to destPath.
type Fetcher interface {
	Fetch(ctx context.Context, sub domain.SubRequest, destPath string) error
}

// Options configures a batch run. Created once per run, never mutated.
type Options struct {
	MaxConcurrent     int
	RetryLimit        int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	BackoffMax        time.Duration
	AttemptTimeout    time.Duration
	DispatchDelay     time.Duration
	SubRequestMaxCost int
	RawDir            string
	TempDir           string
}

// BatchResult summarizes a finished (or cancelled) run. A batch with any
// permanently failed sub-request is partial, never silently dropped.
type BatchResult struct {
	BatchID string
	Counts  manifest.Counts
	Failed  []domain.SubRequest
}

// Partial reports whether the batch finished with permanent failures.
func (r BatchResult) Partial() bool { return len(r.Failed) > 0 }

// Orchestrator coordinates retrieval workers over the persistent manifest.
type Orchestrator struct {
	store     *manifest.Store
	fetcher   Fetcher
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics
	cancelled atomic.Bool
}

// New creates an Orchestrator.
func New(store *manifest.Store, fetcher Fetcher, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		store:   store,
		fetcher: fetcher,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
}

// Submit partitions a request spec, persists the batch manifest, and returns
// the new batch ID. The spec is immutable from here on.
func (o *Orchestrator) Submit(_ context.Context, spec domain.RequestSpec) (string, error) {
	subs, err := domain.BuildSubRequests(spec, o.opts.SubRequestMaxCost)
	if err != nil {
		return "", err
	}

	batchID := uuid.NewString()
	for i := range subs {
		subs[i].BatchID = batchID
	}
	if err := o.store.CreateBatch(batchID, spec, subs); err != nil {
		return "", err
	}

	o.logger.Info("batch submitted", "batch", batchID, "sub_requests", len(subs),
		"years", spec.EndYear-spec.StartYear+1, "variables", len(spec.Variables))
	return batchID, nil
}

// Status returns per-status counts for a batch.
func (o *Orchestrator) Status(_ context.Context, batchID string) (manifest.Counts, error) {
	return o.store.StatusCounts(batchID)
}

// Cancel requests a soft stop: no new sub-requests are dispatched, in-flight
// workers finish their current sub-request so no half-downloaded file is
// left behind.
func (o *Orchestrator) Cancel() { o.cancelled.Store(true) }

// ErrCancelled is returned by Run when the batch was stopped before
// completion; the manifest keeps the remaining work for a later rerun.
var ErrCancelled = errors.New("batch cancelled")

// Run drives the batch until no sub-request is pending or running, with at
// most MaxConcurrent workers in flight. Sub-requests left submitted/running
// by an interrupted run are reclaimed as pending first; failed entries with
// attempt budget remaining are re-enqueued. The result lists permanently
// failed sub-requests so the caller can retry just those.
func (o *Orchestrator) Run(ctx context.Context, batchID string) (BatchResult, error) {
	o.cancelled.Store(false)
	o.metrics.BatchRunning.Set(1)
	defer o.metrics.BatchRunning.Set(0)

	queue, err := o.reclaim(batchID)
	if err != nil {
		return BatchResult{}, err
	}

	o.logger.Info("batch run starting", "batch", batchID,
		"queued", len(queue), "max_concurrent", o.opts.MaxConcurrent)

	sem := make(chan struct{}, o.opts.MaxConcurrent)
	var wg sync.WaitGroup

	cancelled := false
dispatch:
	for _, sub := range queue {
		if ctx.Err() != nil || o.cancelled.Load() {
			cancelled = true
			break dispatch
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			cancelled = true
			break dispatch
		}
		// A cancel may have arrived while waiting for a free slot.
		if ctx.Err() != nil || o.cancelled.Load() {
			<-sem
			cancelled = true
			break dispatch
		}

		wg.Add(1)
		go func(sub domain.SubRequest) {
			defer wg.Done()
			defer func() { <-sem }()
			o.metrics.DownloadsInFlight.Inc()
			defer o.metrics.DownloadsInFlight.Dec()
			o.execute(ctx, sub)
		}(sub)

		// Politeness delay between submissions; the remote service
		// penalizes request bursts.
		if o.opts.DispatchDelay > 0 {
			sleepWithContext(ctx, o.opts.DispatchDelay)
		}
	}

	wg.Wait()

	result, err := o.result(batchID)
	if err != nil {
		return BatchResult{}, err
	}
	if cancelled {
		o.logger.Info("batch run cancelled", "batch", batchID,
			"pending", result.Counts.Pending, "complete", result.Counts.Complete)
		return result, ErrCancelled
	}
	if result.Partial() {
		o.logger.Warn("batch finished with failures", "batch", batchID,
			"failed", len(result.Failed), "complete", result.Counts.Complete)
	} else {
		o.logger.Info("batch complete", "batch", batchID, "complete", result.Counts.Complete)
	}
	return result, nil
}

// reclaim builds the dispatch queue for a run: pending entries, stale
// submitted/running entries from an interrupted run, and failed entries that
// still have attempt budget.
func (o *Orchestrator) reclaim(batchID string) ([]domain.SubRequest, error) {
	stale, err := o.store.SubRequests(batchID, domain.StatusSubmitted, domain.StatusRunning)
	if err != nil {
		return nil, err
	}
	for _, sub := range stale {
		if err := o.store.Transition(batchID, sub.ID, domain.StatusPending, sub.Attempts, sub.LastError, ""); err != nil {
			return nil, err
		}
	}

	queue, err := o.store.SubRequests(batchID, domain.StatusPending)
	if err != nil {
		return nil, err
	}

	failed, err := o.store.SubRequests(batchID, domain.StatusFailed)
	if err != nil {
		return nil, err
	}
	for _, sub := range failed {
		if sub.Attempts >= o.opts.RetryLimit {
			continue // permanently failed
		}
		if err := o.store.Transition(batchID, sub.ID, domain.StatusPending, sub.Attempts, sub.LastError, ""); err != nil {
			return nil, err
		}
		sub.Status = domain.StatusPending
		queue = append(queue, sub)
	}
	return queue, nil
}

func (o *Orchestrator) result(batchID string) (BatchResult, error) {
	counts, err := o.store.StatusCounts(batchID)
	if err != nil {
		return BatchResult{}, err
	}
	failed, err := o.store.SubRequests(batchID, domain.StatusFailed)
	if err != nil {
		return BatchResult{}, err
	}
	return BatchResult{BatchID: batchID, Counts: counts, Failed: failed}, nil
}

// CheckReadiness reports whether the manifest store is reachable, for the
// /readyz endpoint.
func (o *Orchestrator) CheckReadiness(_ context.Context) error {
	return o.store.Ping()
}

func nextBackoff(current time.Duration, multiplier float64, maxBackoff time.Duration) time.Duration {
	next := time.Duration(float64(current) * multiplier)
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

// sleepWithContext sleeps for d unless the context is cancelled first.
// Returns false on cancellation.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
