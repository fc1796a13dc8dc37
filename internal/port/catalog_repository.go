package port

import (
	"context"

	"github.com/rl1809/activity-enrollment/internal/core/domain"
)

// CatalogRepository is the read side plus activity creation. Nothing here touches seats_left
// after creation.
type CatalogRepository interface {
	CreateActivity(ctx context.Context, activity domain.Activity) error

	// GetActivity returns nil, nil when the activity does not exist.
	GetActivity(ctx context.Context, activityID string) (*domain.Activity, error)

	ListActivities(ctx context.Context) ([]domain.Activity, error)

	FindByUser(ctx context.Context, userID string) ([]domain.EnrollmentView, error)
}
