package flows

import (
	"context"
	"errors"
	"time"
)

// Sweeper is one store taking part in periodic expiry.
type Sweeper func(ctx context.Context, before time.Time) (int, error)

// SweepResult counts removed entries per store name.
type SweepResult struct {
	Removed map[string]int
	Err     error
}

// RunSweep runs every sweeper even when an earlier one fails and joins
// their errors. Sweeping twice at the same instant removes nothing the
// second time.
func RunSweep(ctx context.Context, before time.Time, sweepers map[string]Sweeper) SweepResult {
	result := SweepResult{Removed: make(map[string]int, len(sweepers))}
	var errs []error
	for name, sweep := range sweepers {
		n, err := sweep(ctx, before)
		result.Removed[name] = n
		if err != nil {
			errs = append(errs, err)
		}
	}
	result.Err = errors.Join(errs...)
	return result
}
