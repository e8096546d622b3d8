package settlement

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrJamesThe3rd/splitledger/internal/metrics"
)

// RetryOnConflict runs fn until it stops failing with ErrStaleVersion, at
// most attempts times. fn must re-read everything it validates. When the
// attempts run out the caller gets ErrConflict.
func RetryOnConflict(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if !errors.Is(err, ErrStaleVersion) {
			return err
		}

		metrics.ConflictRetries.Inc()
		slog.Debug("settlement version conflict", "attempt", attempt, "max", attempts)

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	return ErrConflict
}
