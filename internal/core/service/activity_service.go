package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/activity-enrollment/internal/core/domain"
	"github.com/rl1809/activity-enrollment/internal/observability"
	"github.com/rl1809/activity-enrollment/internal/port"
)

var ErrInvalidActivity = errors.New("invalid activity")

// ActivityService is the catalog read side. The seat cache it maintains is a display hint;
// the ledger never reads it.
type ActivityService struct {
	catalog port.CatalogRepository
	cache   port.SeatCache
	group   singleflight.Group
}

func NewActivityService(catalog port.CatalogRepository, cache port.SeatCache) *ActivityService {
	return &ActivityService{catalog: catalog, cache: cache}
}

// Create stores a new activity with every seat free.
func (s *ActivityService) Create(ctx context.Context, activity domain.Activity) (*domain.Activity, error) {
	if strings.TrimSpace(activity.Title) == "" {
		return nil, fmt.Errorf("%w: missing title", ErrInvalidActivity)
	}
	if activity.Capacity < 0 {
		return nil, fmt.Errorf("%w: negative capacity", ErrInvalidActivity)
	}
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	activity.SeatsLeft = activity.Capacity
	activity.CreatedAt = now
	activity.UpdatedAt = now

	if err := s.catalog.CreateActivity(ctx, activity); err != nil {
		return nil, fmt.Errorf("create activity: %w", err)
	}
	return &activity, nil
}

func (s *ActivityService) Get(ctx context.Context, activityID string) (*domain.Activity, error) {
	activity, err := s.catalog.GetActivity(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("get activity: %w", err)
	}
	if activity == nil {
		return nil, domain.ErrActivityNotFound
	}
	return activity, nil
}

// List returns every activity ordered by start ascending, activities without a start last.
func (s *ActivityService) List(ctx context.Context) ([]domain.Activity, error) {
	activities, err := s.catalog.ListActivities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	sort.SliceStable(activities, func(i, j int) bool {
		return startsBefore(activities[i].StartsAt, activities[j].StartsAt, true)
	})
	return activities, nil
}

// Availability reads seats_left through the cache, coalescing concurrent misses.
func (s *ActivityService) Availability(ctx context.Context, activityID string) (*domain.Availability, error) {
	if s.cache != nil {
		seats, ok, err := s.cache.GetSeats(ctx, activityID)
		switch {
		case err != nil:
			observability.RecordSeatCacheLookup("error")
			log.Printf("seat cache read failed for %s, falling back to store: %v", activityID, err)
		case ok:
			observability.RecordSeatCacheLookup("hit")
			return &domain.Availability{ActivityID: activityID, SeatsLeft: seats}, nil
		default:
			observability.RecordSeatCacheLookup("miss")
		}
	}

	v, err, _ := s.group.Do(activityID, func() (interface{}, error) {
		// generation is read before the store so a commit in between voids the write
		var (
			version    int64
			versionErr error
		)
		if s.cache != nil {
			version, versionErr = s.cache.Version(ctx, activityID)
		}
		activity, err := s.Get(ctx, activityID)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if versionErr != nil {
				log.Printf("seat cache version read failed for %s, skipping write: %v", activityID, versionErr)
			} else if err := s.cache.SetSeats(ctx, activityID, activity.SeatsLeft, version); err != nil {
				log.Printf("seat cache write failed for %s: %v", activityID, err)
			}
		}
		return &domain.Availability{ActivityID: activityID, SeatsLeft: activity.SeatsLeft}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Availability), nil
}
