package port

import "context"

type SeatCache interface {
	// GetSeats returns ok=false on a cache miss
	GetSeats(ctx context.Context, activityID string) (seats int, ok bool, err error)

	// Version returns the activity's invalidation generation. Read it before loading
	// seats_left from the store and pass it to SetSeats.
	Version(ctx context.Context, activityID string) (int64, error)

	// SetSeats stores seats only if no Invalidate happened since version was read.
	// A skipped write is not an error.
	SetSeats(ctx context.Context, activityID string, seats int, version int64) error

	// Invalidate drops the cached value after a committed seat change and bumps the generation
	Invalidate(ctx context.Context, activityID string) error
}
