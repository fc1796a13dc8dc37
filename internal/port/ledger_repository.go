package port

import (
	"context"
	"errors"

	"github.com/rl1809/activity-enrollment/internal/core/domain"
)

var (
	// ErrUniqueViolation is returned by EnrollmentStore.Insert when the
	// (user_id, activity_id) pair already exists.
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrSeatBounds is returned by AdjustSeats when the result would leave [0, capacity].
	ErrSeatBounds = errors.New("seat adjustment out of bounds")
)

type LedgerRepository interface {
	// InTx runs fn inside one atomic unit. A non-nil error from fn rolls the unit back
	// and is returned unchanged; row locks are released on commit or rollback.
	InTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

type LedgerTx interface {
	ActivityStore
	EnrollmentStore
}

type ActivityStore interface {
	// GetForUpdate locks the activity row until the unit ends. Returns nil, nil if absent.
	GetForUpdate(ctx context.Context, activityID string) (*domain.SeatCounter, error)

	AdjustSeats(ctx context.Context, activityID string, delta int) error
}

type EnrollmentStore interface {
	Insert(ctx context.Context, enrollment domain.Enrollment) error

	// FindOwned returns nil, nil when the enrollment is absent or owned by someone else.
	FindOwned(ctx context.Context, enrollmentID, userID string) (*domain.Enrollment, error)

	DeleteIfOwned(ctx context.Context, enrollmentID, userID string) (bool, error)
}
