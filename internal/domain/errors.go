package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the failure taxonomy of the pipeline. Callers
// classify with errors.Is; everything not transient and not a rejection is
// treated as transient by default so a flaky failure is retried rather than
// dropped.
var (
	// ErrInvalidSpecification marks a malformed RequestSpec (empty or
	// inverted year range, ill-formed bounding box, no variables). Never
	// retried; surfaced to the caller immediately.
	ErrInvalidSpecification = errors.New("invalid request specification")

	// ErrTransient marks a failure worth retrying with backoff: network
	// errors, timeouts, 5xx responses, short or corrupt archive bodies.
	ErrTransient = errors.New("transient transfer failure")

	// ErrPermanentRejection marks a request the remote service refused
	// (4xx). Retrying the same sub-request cannot succeed.
	ErrPermanentRejection = errors.New("request rejected by remote service")
)

// Transient wraps err as a retryable failure.
func Transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Transientf wraps a formatted message as a retryable failure.
func Transientf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransient, fmt.Sprintf(format, args...))
}

// Rejection wraps err as a permanent remote rejection.
func Rejection(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanentRejection, err)
}

// IsRetryable reports whether a sub-request attempt that failed with err
// should be re-enqueued. Unknown errors default to retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanentRejection) || errors.Is(err, ErrInvalidSpecification) {
		return false
	}
	return true
}

// GapWarning describes a district with no grid coverage for a period. It is
// logged and the fallback value is used; it never fails the batch.
type GapWarning struct {
	DistrictID string
	Period     string
	Reason     string
}

func (g GapWarning) String() string {
	return fmt.Sprintf("aggregation gap: district=%s period=%s: %s", g.DistrictID, g.Period, g.Reason)
}
