package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rl1809/activity-enrollment/internal/core/domain"
	"github.com/rl1809/activity-enrollment/internal/core/service"
	"github.com/rl1809/activity-enrollment/internal/port"
)

type ledgerStore interface {
	port.LedgerRepository
	port.CatalogRepository
}

// coordinatorFixture runs the enrollment service against one storage backend.
type coordinatorFixture struct {
	store       ledgerStore
	newActivity func(t *testing.T, capacity int) string
	countFor    func(t *testing.T, activityID string) int
}

func (f coordinatorFixture) service() *service.EnrollmentService {
	return service.NewEnrollmentService(f.store, nil, 3, 10*time.Millisecond)
}

func (f coordinatorFixture) seatsLeft(t *testing.T, activityID string) int {
	t.Helper()
	a, err := f.store.GetActivity(context.Background(), activityID)
	if err != nil || a == nil {
		t.Fatalf("get activity %s: %v", activityID, err)
	}
	return a.SeatsLeft
}

func (f coordinatorFixture) assertBalanced(t *testing.T, activityID string, capacity int) {
	t.Helper()
	seats := f.seatsLeft(t, activityID)
	count := f.countFor(t, activityID)
	if seats+count != capacity {
		t.Errorf("ledger out of balance: seats_left %d + enrollments %d != capacity %d", seats, count, capacity)
	}
}

func runCoordinatorScenarios(t *testing.T, f coordinatorFixture) {
	t.Run("concurrent enroll never oversells", func(t *testing.T) {
		capacity, requests := 5, 25
		activityID := f.newActivity(t, capacity)
		svc := f.service()

		var successCount, soldOutCount atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < requests; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := svc.Enroll(context.Background(), fmt.Sprintf("user-%d", i), activityID)
				switch {
				case err == nil:
					successCount.Add(1)
				case errors.Is(err, domain.ErrNoSeatsLeft):
					soldOutCount.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		if successCount.Load() != int32(capacity) {
			t.Errorf("expected %d successes, got %d", capacity, successCount.Load())
		}
		if soldOutCount.Load() != int32(requests-capacity) {
			t.Errorf("expected %d sold out, got %d", requests-capacity, soldOutCount.Load())
		}
		if seats := f.seatsLeft(t, activityID); seats != 0 {
			t.Errorf("expected seats_left 0, got %d", seats)
		}
		f.assertBalanced(t, activityID, capacity)
	})

	t.Run("concurrent duplicate enroll succeeds once", func(t *testing.T) {
		capacity := 5
		activityID := f.newActivity(t, capacity)
		svc := f.service()

		var successCount, duplicateCount atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.Enroll(context.Background(), "same-user", activityID)
				switch {
				case err == nil:
					successCount.Add(1)
				case errors.Is(err, domain.ErrAlreadyEnrolled):
					duplicateCount.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if successCount.Load() != 1 || duplicateCount.Load() != 9 {
			t.Errorf("expected 1 success and 9 duplicates, got %d/%d", successCount.Load(), duplicateCount.Load())
		}
		if seats := f.seatsLeft(t, activityID); seats != capacity-1 {
			t.Errorf("expected seats_left %d, got %d", capacity-1, seats)
		}
		f.assertBalanced(t, activityID, capacity)
	})

	t.Run("concurrent cancel of one enrollment frees one seat", func(t *testing.T) {
		capacity := 3
		activityID := f.newActivity(t, capacity)
		svc := f.service()
		ctx := context.Background()

		enrollment, err := svc.Enroll(ctx, "owner", activityID)
		if err != nil {
			t.Fatalf("enroll: %v", err)
		}

		var successCount atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := svc.Cancel(ctx, "owner", enrollment.ID)
				switch {
				case err == nil:
					successCount.Add(1)
				case errors.Is(err, domain.ErrEnrollmentNotFound):
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if successCount.Load() != 1 {
			t.Errorf("expected exactly 1 cancel to succeed, got %d", successCount.Load())
		}
		if seats := f.seatsLeft(t, activityID); seats != capacity {
			t.Errorf("expected seats_left %d, got %d", capacity, seats)
		}
		f.assertBalanced(t, activityID, capacity)
	})

	t.Run("capacity two with foreign cancel", func(t *testing.T) {
		activityID := f.newActivity(t, 2)
		svc := f.service()
		ctx := context.Background()

		a, err := svc.Enroll(ctx, "user-a", activityID)
		if err != nil {
			t.Fatalf("user-a enroll: %v", err)
		}
		if _, err := svc.Enroll(ctx, "user-b", activityID); err != nil {
			t.Fatalf("user-b enroll: %v", err)
		}
		if _, err := svc.Enroll(ctx, "user-c", activityID); !errors.Is(err, domain.ErrNoSeatsLeft) {
			t.Fatalf("expected user-c to get ErrNoSeatsLeft, got: %v", err)
		}
		if err := svc.Cancel(ctx, "user-c", a.ID); !errors.Is(err, domain.ErrEnrollmentNotFound) {
			t.Fatalf("expected foreign cancel to be ErrEnrollmentNotFound, got: %v", err)
		}
		if err := svc.Cancel(ctx, "user-a", a.ID); err != nil {
			t.Fatalf("user-a cancel: %v", err)
		}
		if _, err := svc.Enroll(ctx, "user-c", activityID); err != nil {
			t.Errorf("expected user-c to enroll after a seat freed, got: %v", err)
		}
		if seats := f.seatsLeft(t, activityID); seats != 0 {
			t.Errorf("expected seats_left 0, got %d", seats)
		}
		f.assertBalanced(t, activityID, 2)
	})
}
