package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/rl1809/activity-enrollment/internal/core/domain"
	"github.com/rl1809/activity-enrollment/internal/observability"
	"github.com/rl1809/activity-enrollment/internal/port"
)

const (
	opEnroll = "enroll"
	opCancel = "cancel"
)

// EnrollmentService is the seat ledger coordinator. Every Enroll and Cancel runs as one
// atomic unit that holds the activity row lock from the seat read to the commit.
type EnrollmentService struct {
	ledger       port.LedgerRepository
	cache        port.SeatCache
	maxAttempts  int
	retryBackoff time.Duration
}

// NewEnrollmentService builds the coordinator. cache may be nil. maxAttempts below 1 is
// treated as 1 (no retry).
func NewEnrollmentService(ledger port.LedgerRepository, cache port.SeatCache, maxAttempts int, retryBackoff time.Duration) *EnrollmentService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &EnrollmentService{
		ledger:       ledger,
		cache:        cache,
		maxAttempts:  maxAttempts,
		retryBackoff: retryBackoff,
	}
}

func (s *EnrollmentService) Enroll(ctx context.Context, userID, activityID string) (*domain.Enrollment, error) {
	start := time.Now()
	if userID == "" {
		return nil, errors.New("enroll: missing user id")
	}
	if activityID == "" {
		return nil, domain.ErrActivityNotFound
	}

	enrollment := domain.Enrollment{
		ID:         uuid.NewString(),
		UserID:     userID,
		ActivityID: activityID,
		CreatedAt:  time.Now().UTC(),
	}

	err := s.runUnit(ctx, opEnroll, func(tx port.LedgerTx) error {
		counter, err := tx.GetForUpdate(ctx, activityID)
		if err != nil {
			return fmt.Errorf("lock activity: %w", err)
		}
		if counter == nil {
			return domain.ErrActivityNotFound
		}
		if counter.SeatsLeft <= 0 {
			return domain.ErrNoSeatsLeft
		}

		// duplicates are detected by the unique index only
		if err := tx.Insert(ctx, enrollment); err != nil {
			if errors.Is(err, port.ErrUniqueViolation) {
				return domain.ErrAlreadyEnrolled
			}
			return fmt.Errorf("insert enrollment: %w", err)
		}

		if err := tx.AdjustSeats(ctx, activityID, -1); err != nil {
			return fmt.Errorf("decrement seats: %w", err)
		}
		return nil
	})

	s.finish(ctx, opEnroll, activityID, err, start)
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (s *EnrollmentService) Cancel(ctx context.Context, userID, enrollmentID string) error {
	start := time.Now()
	if userID == "" {
		return errors.New("cancel: missing user id")
	}
	if enrollmentID == "" {
		return domain.ErrEnrollmentNotFound
	}

	var activityID string
	err := s.runUnit(ctx, opCancel, func(tx port.LedgerTx) error {
		enrollment, err := tx.FindOwned(ctx, enrollmentID, userID)
		if err != nil {
			return fmt.Errorf("find enrollment: %w", err)
		}
		if enrollment == nil {
			return domain.ErrEnrollmentNotFound
		}
		activityID = enrollment.ActivityID

		// Same lock as Enroll, taken before any counter mutation.
		counter, err := tx.GetForUpdate(ctx, activityID)
		if err != nil {
			return fmt.Errorf("lock activity: %w", err)
		}
		if counter == nil {
			return fmt.Errorf("enrollment %s references missing activity %s", enrollmentID, activityID)
		}

		deleted, err := tx.DeleteIfOwned(ctx, enrollmentID, userID)
		if err != nil {
			return fmt.Errorf("delete enrollment: %w", err)
		}
		if !deleted {
			// a concurrent cancel removed it after our lookup
			return domain.ErrEnrollmentNotFound
		}

		if err := tx.AdjustSeats(ctx, activityID, 1); err != nil {
			return fmt.Errorf("increment seats: %w", err)
		}
		return nil
	})

	s.finish(ctx, opCancel, activityID, err, start)
	return err
}

// runUnit re-runs fn while it fails transiently, up to maxAttempts. Business and
// internal failures stop the loop at once.
func (s *EnrollmentService) runUnit(ctx context.Context, operation string, fn func(tx port.LedgerTx) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryBackoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	var (
		lastErr error
		attempt int
	)
	op := func() error {
		attempt++
		lastErr = s.ledger.InTx(ctx, fn)
		if lastErr != nil && domain.KindOf(lastErr) != domain.KindTransient {
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}
	notify := func(err error, wait time.Duration) {
		observability.RecordLedgerRetry(operation)
		log.Printf("%s: transient failure on attempt %d/%d, retrying in %s: %v", operation, attempt, s.maxAttempts, wait, err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.maxAttempts-1)), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		// a cancelled context ends the loop with ctx.Err(); report the unit's own failure
		if lastErr != nil {
			return lastErr
		}
		return err
	}
	return nil
}

func (s *EnrollmentService) finish(ctx context.Context, operation, activityID string, err error, start time.Time) {
	outcome := "ok"
	if err != nil {
		outcome = domain.KindOf(err).String()
	}
	observability.RecordLedgerOutcome(operation, outcome, time.Since(start))

	if err != nil {
		if domain.KindOf(err) == domain.KindInternal || domain.KindOf(err) == domain.KindTransient {
			log.Printf("%s: activity %s failed: %v", operation, activityID, err)
		}
		return
	}

	if s.cache != nil {
		if cacheErr := s.cache.Invalidate(ctx, activityID); cacheErr != nil {
			log.Printf("%s: failed to invalidate seat cache for %s: %v", operation, activityID, cacheErr)
		}
	}
}
