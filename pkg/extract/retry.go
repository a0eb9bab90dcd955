// pkg/extract/retry.go
package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/elijahcraig45/hanks-tank-data/pkg/model"
	"github.com/elijahcraig45/hanks-tank-data/pkg/warehouse"
)

// ErrRetryExhausted marks a fetch that failed on every allowed attempt.
// The pipeline treats it as a partition-level failure, not a run-level
// one.
var ErrRetryExhausted = errors.New("extraction retries exhausted")

// RetryingFetcher wraps a fetcher with exponential backoff. Transient
// upstream failures are retried up to the attempt limit; context
// cancellation stops retrying immediately.
type RetryingFetcher struct {
	inner        Fetcher
	maxAttempts  int
	initialDelay time.Duration
	logger       *zap.Logger
}

// NewRetryingFetcher wraps a fetcher with up to maxAttempts attempts
func NewRetryingFetcher(inner Fetcher, maxAttempts int, initialDelay time.Duration, logger *zap.Logger) *RetryingFetcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryingFetcher{
		inner:        inner,
		maxAttempts:  maxAttempts,
		initialDelay: initialDelay,
		logger:       logger.Named("extract.retry"),
	}
}

// Fetch attempts the wrapped fetch with exponential backoff between
// failures
func (f *RetryingFetcher) Fetch(ctx context.Context, part warehouse.Partition) ([]model.RawRecord, error) {
	attempt := 0
	operation := func() ([]model.RawRecord, error) {
		attempt++
		records, err := f.inner.Fetch(ctx, part)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			f.logger.Warn("Fetch attempt failed",
				zap.String("partition", part.String()),
				zap.Int("attempt", attempt),
				zap.Int("maxAttempts", f.maxAttempts),
				zap.Error(err))
			return nil, err
		}
		return records, nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	if f.initialDelay > 0 {
		expBackoff.InitialInterval = f.initialDelay
	}

	records, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(uint(f.maxAttempts)))
	if err != nil {
		return nil, fmt.Errorf("%w after %d attempts for %s: %v",
			ErrRetryExhausted, attempt, part.String(), err)
	}

	return records, nil
}
