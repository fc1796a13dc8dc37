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
	"github.com/rl1809/activity-enrollment/internal/port"
)

var errAbort = errors.New("abort")

func newMemoryWithActivity(t *testing.T, activityID string, capacity int) *MemoryAdapter {
	t.Helper()
	m := NewMemoryAdapter(time.Second)
	err := m.CreateActivity(context.Background(), domain.Activity{
		ID:        activityID,
		Title:     "Yoga",
		Capacity:  capacity,
		SeatsLeft: capacity,
	})
	if err != nil {
		t.Fatalf("create activity: %v", err)
	}
	return m
}

func enrollIn(ctx context.Context, m *MemoryAdapter, id, userID, activityID string) error {
	return m.InTx(ctx, func(tx port.LedgerTx) error {
		counter, err := tx.GetForUpdate(ctx, activityID)
		if err != nil {
			return err
		}
		if counter == nil {
			return domain.ErrActivityNotFound
		}
		if err := tx.Insert(ctx, domain.Enrollment{ID: id, UserID: userID, ActivityID: activityID}); err != nil {
			return err
		}
		return tx.AdjustSeats(ctx, activityID, -1)
	})
}

func TestMemoryInTx_CommitAppliesStagedWrites(t *testing.T) {
	ctx := context.Background()
	m := newMemoryWithActivity(t, "act-1", 3)

	if err := enrollIn(ctx, m, "enr-1", "user-1", "act-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, _ := m.GetActivity(ctx, "act-1")
	if a.SeatsLeft != 2 {
		t.Errorf("expected seats_left 2, got %d", a.SeatsLeft)
	}
	if n := m.EnrollmentCount("act-1"); n != 1 {
		t.Errorf("expected 1 enrollment, got %d", n)
	}
}

func TestMemoryInTx_RollbackLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	m := newMemoryWithActivity(t, "act-1", 3)

	err := m.InTx(ctx, func(tx port.LedgerTx) error {
		if _, err := tx.GetForUpdate(ctx, "act-1"); err != nil {
			return err
		}
		if err := tx.Insert(ctx, domain.Enrollment{ID: "enr-1", UserID: "user-1", ActivityID: "act-1"}); err != nil {
			return err
		}
		if err := tx.AdjustSeats(ctx, "act-1", -1); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("expected errAbort, got: %v", err)
	}

	a, _ := m.GetActivity(ctx, "act-1")
	if a.SeatsLeft != 3 {
		t.Errorf("expected seats_left 3 after rollback, got %d", a.SeatsLeft)
	}
	if n := m.EnrollmentCount("act-1"); n != 0 {
		t.Errorf("expected no enrollments after rollback, got %d", n)
	}

	// the unique reservation must be released too
	if err := enrollIn(ctx, m, "enr-2", "user-1", "act-1"); err != nil {
		t.Errorf("expected enroll after rollback to succeed, got: %v", err)
	}
}

func TestMemoryInsert_UniqueViolation(t *testing.T) {
	ctx := context.Background()
	m := newMemoryWithActivity(t, "act-1", 3)

	if err := enrollIn(ctx, m, "enr-1", "user-1", "act-1"); err != nil {
		t.Fatalf("first enroll: %v", err)
	}

	err := enrollIn(ctx, m, "enr-2", "user-1", "act-1")
	if !errors.Is(err, port.ErrUniqueViolation) {
		t.Errorf("expected ErrUniqueViolation, got: %v", err)
	}
}

func TestMemoryInsert_UniqueViolationAcrossInFlightUnits(t *testing.T) {
	ctx := context.Background()
	m := newMemoryWithActivity(t, "act-1", 3)

	reserved := make(chan struct{})
	finish := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- m.InTx(ctx, func(tx port.LedgerTx) error {
			if err := tx.Insert(ctx, domain.Enrollment{ID: "enr-1", UserID: "user-1", ActivityID: "act-1"}); err != nil {
				return err
			}
			close(reserved)
			<-finish
			return nil
		})
	}()

	<-reserved
	err := m.InTx(ctx, func(tx port.LedgerTx) error {
		return tx.Insert(ctx, domain.Enrollment{ID: "enr-2", UserID: "user-1", ActivityID: "act-1"})
	})
	close(finish)

	if !errors.Is(err, port.ErrUniqueViolation) {
		t.Errorf("expected ErrUniqueViolation while the first unit is open, got: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("first unit failed: %v", err)
	}
}

func TestMemoryAdjustSeats_Bounds(t *testing.T) {
	ctx := context.Background()
	m := newMemoryWithActivity(t, "act-1", 1)

	err := m.InTx(ctx, func(tx port.LedgerTx) error {
		if _, err := tx.GetForUpdate(ctx, "act-1"); err != nil {
			return err
		}
		return tx.AdjustSeats(ctx, "act-1", 1)
	})
	if !errors.Is(err, port.ErrSeatBounds) {
		t.Errorf("expected ErrSeatBounds above capacity, got: %v", err)
	}

	err = m.InTx(ctx, func(tx port.LedgerTx) error {
		if _, err := tx.GetForUpdate(ctx, "act-1"); err != nil {
			return err
		}
		return tx.AdjustSeats(ctx, "act-1", -2)
	})
	if !errors.Is(err, port.ErrSeatBounds) {
		t.Errorf("expected ErrSeatBounds below zero, got: %v", err)
	}
}

func TestMemoryAdjustSeats_RequiresLock(t *testing.T) {
	ctx := context.Background()
	m := newMemoryWithActivity(t, "act-1", 1)

	err := m.InTx(ctx, func(tx port.LedgerTx) error {
		return tx.AdjustSeats(ctx, "act-1", -1)
	})
	if err == nil {
		t.Error("expected error when adjusting seats without holding the lock")
	}
}

func TestMemoryGetForUpdate_MissingActivity(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter(time.Second)

	err := m.InTx(ctx, func(tx port.LedgerTx) error {
		counter, err := tx.GetForUpdate(ctx, "nope")
		if err != nil {
			return err
		}
		if counter != nil {
			t.Errorf("expected nil counter, got %+v", counter)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMemoryGetForUpdate_LockWaitTimeoutIsTransient(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter(20 * time.Millisecond)
	_ = m.CreateActivity(ctx, domain.Activity{ID: "act-1", Title: "Run", Capacity: 1, SeatsLeft: 1})

	locked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = m.InTx(ctx, func(tx port.LedgerTx) error {
			if _, err := tx.GetForUpdate(ctx, "act-1"); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	err := m.InTx(ctx, func(tx port.LedgerTx) error {
		_, err := tx.GetForUpdate(ctx, "act-1")
		return err
	})
	close(release)

	if !errors.Is(err, domain.ErrTransient) {
		t.Errorf("expected transient lock wait failure, got: %v", err)
	}
}

func TestMemoryDeleteIfOwned(t *testing.T) {
	ctx := context.Background()
	m := newMemoryWithActivity(t, "act-1", 2)
	if err := enrollIn(ctx, m, "enr-1", "user-1", "act-1"); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	err := m.InTx(ctx, func(tx port.LedgerTx) error {
		found, err := tx.FindOwned(ctx, "enr-1", "user-2")
		if err != nil {
			return err
		}
		if found != nil {
			t.Error("expected other user's enrollment to be invisible")
		}
		deleted, err := tx.DeleteIfOwned(ctx, "enr-1", "user-2")
		if err != nil {
			return err
		}
		if deleted {
			t.Error("expected delete by another user to fail")
		}

		deleted, err = tx.DeleteIfOwned(ctx, "enr-1", "user-1")
		if err != nil {
			return err
		}
		if !deleted {
			t.Error("expected owner delete to succeed")
		}
		again, _ := tx.DeleteIfOwned(ctx, "enr-1", "user-1")
		if again {
			t.Error("expected second delete in the same unit to report false")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := m.EnrollmentCount("act-1"); n != 0 {
		t.Errorf("expected enrollment removed, got %d", n)
	}
}

func TestMemoryInTx_ConcurrentUnitsSerializePerActivity(t *testing.T) {
	ctx := context.Background()
	capacity := 10
	m := newMemoryWithActivity(t, "act-1", capacity)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := m.InTx(ctx, func(tx port.LedgerTx) error {
				counter, err := tx.GetForUpdate(ctx, "act-1")
				if err != nil {
					return err
				}
				if counter.SeatsLeft <= 0 {
					return domain.ErrNoSeatsLeft
				}
				if err := tx.Insert(ctx, domain.Enrollment{
					ID:         "enr-" + string(rune('A'+i)),
					UserID:     "user-" + string(rune('A'+i)),
					ActivityID: "act-1",
				}); err != nil {
					return err
				}
				return tx.AdjustSeats(ctx, "act-1", -1)
			})
			if err == nil {
				successCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if successCount.Load() != int32(capacity) {
		t.Errorf("expected %d successes, got %d", capacity, successCount.Load())
	}
	a, _ := m.GetActivity(ctx, "act-1")
	if a.SeatsLeft != 0 {
		t.Errorf("expected seats_left 0, got %d", a.SeatsLeft)
	}
	if n := m.EnrollmentCount("act-1"); n != capacity {
		t.Errorf("expected %d enrollments, got %d", capacity, n)
	}
}

func TestMemoryAdapter_CoordinatorScenarios(t *testing.T) {
	m := NewMemoryAdapter(5 * time.Second)
	var seq atomic.Int32

	runCoordinatorScenarios(t, coordinatorFixture{
		store: m,
		newActivity: func(t *testing.T, capacity int) string {
			id := fmt.Sprintf("scenario-%d", seq.Add(1))
			if err := m.CreateActivity(context.Background(), domain.Activity{
				ID: id, Title: "Scenario", Capacity: capacity, SeatsLeft: capacity,
			}); err != nil {
				t.Fatalf("create activity: %v", err)
			}
			return id
		},
		countFor: func(t *testing.T, activityID string) int {
			return m.EnrollmentCount(activityID)
		},
	})
}
