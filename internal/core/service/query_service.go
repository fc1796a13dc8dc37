package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rl1809/activity-enrollment/internal/core/domain"
	"github.com/rl1809/activity-enrollment/internal/port"
)

// QueryService serves read-only projections of a user's enrollments.
type QueryService struct {
	catalog port.CatalogRepository
	now     func() time.Time
}

func NewQueryService(catalog port.CatalogRepository) *QueryService {
	return &QueryService{catalog: catalog, now: time.Now}
}

// ListMine filters by activity start relative to now in UTC.
// upcoming: no start or start >= now, ascending, no-start last.
// past: start < now, descending.
// all: descending, no-start last.
func (s *QueryService) ListMine(ctx context.Context, userID string, when domain.When) ([]domain.EnrollmentView, error) {
	views, err := s.catalog.FindByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find enrollments: %w", err)
	}

	now := s.now().UTC()
	out := make([]domain.EnrollmentView, 0, len(views))
	for _, v := range views {
		switch when {
		case domain.WhenPast:
			if v.StartsAt == nil || !v.StartsAt.UTC().Before(now) {
				continue
			}
		case domain.WhenAll:
		default:
			if v.StartsAt != nil && v.StartsAt.UTC().Before(now) {
				continue
			}
		}
		out = append(out, v)
	}

	ascending := when != domain.WhenPast && when != domain.WhenAll
	sort.SliceStable(out, func(i, j int) bool {
		return startsBefore(out[i].StartsAt, out[j].StartsAt, ascending)
	})
	return out, nil
}

// startsBefore orders by start time; entries without a start always sort last.
func startsBefore(a, b *time.Time, ascending bool) bool {
	switch {
	case a == nil && b == nil:
		return false
	case a == nil:
		return false
	case b == nil:
		return true
	case ascending:
		return a.Before(*b)
	default:
		return a.After(*b)
	}
}
