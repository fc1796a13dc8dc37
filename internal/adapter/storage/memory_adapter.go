package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/activity-enrollment/internal/core/domain"
	"github.com/rl1809/activity-enrollment/internal/port"
)

type pairKey struct {
	userID     string
	activityID string
}

// MemoryAdapter keeps activities and enrollments in process. Each activity has an exclusive
// lock that a unit holds from GetForUpdate until commit or rollback; writes are staged on the
// unit and applied before the locks are released.
type MemoryAdapter struct {
	mu          sync.RWMutex
	activities  map[string]*domain.Activity
	enrollments map[string]domain.Enrollment
	// committed and in-flight (user, activity) pairs; plays the role of the unique index
	pairs map[pairKey]string

	locksMu  sync.Mutex
	locks    map[string]chan struct{}
	lockWait time.Duration
}

// NewMemoryAdapter returns an empty store. lockWait bounds how long a unit waits for an
// activity lock; zero waits until the context ends.
func NewMemoryAdapter(lockWait time.Duration) *MemoryAdapter {
	return &MemoryAdapter{
		activities:  make(map[string]*domain.Activity),
		enrollments: make(map[string]domain.Enrollment),
		pairs:       make(map[pairKey]string),
		locks:       make(map[string]chan struct{}),
		lockWait:    lockWait,
	}
}

func (m *MemoryAdapter) InTx(ctx context.Context, fn func(tx port.LedgerTx) error) error {
	tx := &memoryTx{
		store:   m,
		held:    make(map[string]bool),
		deletes: make(map[string]domain.Enrollment),
		deltas:  make(map[string]int),
	}

	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return domain.Transient(fmt.Errorf("commit: %w", err))
	}

	tx.commit()
	committed = true
	return nil
}

func (m *MemoryAdapter) lockFor(activityID string) chan struct{} {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	l, ok := m.locks[activityID]
	if !ok {
		l = make(chan struct{}, 1)
		m.locks[activityID] = l
	}
	return l
}

func (m *MemoryAdapter) acquire(ctx context.Context, activityID string) error {
	l := m.lockFor(activityID)

	select {
	case l <- struct{}{}:
		return nil
	default:
	}

	waitCtx := ctx
	if m.lockWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, m.lockWait)
		defer cancel()
	}

	select {
	case l <- struct{}{}:
		return nil
	case <-waitCtx.Done():
		return domain.Transient(fmt.Errorf("lock wait on activity %s: %w", activityID, waitCtx.Err()))
	}
}

func (m *MemoryAdapter) release(activityID string) {
	<-m.lockFor(activityID)
}

func (m *MemoryAdapter) CreateActivity(ctx context.Context, activity domain.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.activities[activity.ID]; exists {
		return fmt.Errorf("activity %s already exists", activity.ID)
	}
	if activity.SeatsLeft < 0 || activity.SeatsLeft > activity.Capacity {
		return port.ErrSeatBounds
	}
	stored := activity
	m.activities[activity.ID] = &stored
	return nil
}

func (m *MemoryAdapter) GetActivity(ctx context.Context, activityID string) (*domain.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.activities[activityID]
	if !ok {
		return nil, nil
	}
	out := *a
	return &out, nil
}

func (m *MemoryAdapter) ListActivities(ctx context.Context) ([]domain.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Activity, 0, len(m.activities))
	for _, a := range m.activities {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryAdapter) FindByUser(ctx context.Context, userID string) ([]domain.EnrollmentView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owned := make([]domain.Enrollment, 0)
	for _, e := range m.enrollments {
		if e.UserID == userID {
			owned = append(owned, e)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID < owned[j].ID
		}
		return owned[i].CreatedAt.Before(owned[j].CreatedAt)
	})

	views := make([]domain.EnrollmentView, 0, len(owned))
	for _, e := range owned {
		a, ok := m.activities[e.ActivityID]
		if !ok {
			continue
		}
		views = append(views, domain.EnrollmentView{
			EnrollmentID: e.ID,
			ActivityID:   a.ID,
			Title:        a.Title,
			Location:     a.Location,
			StartsAt:     a.StartsAt,
			EndsAt:       a.EndsAt,
			Price:        a.Price,
		})
	}
	return views, nil
}

// EnrollmentCount reports committed enrollments for one activity.
func (m *MemoryAdapter) EnrollmentCount(activityID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, e := range m.enrollments {
		if e.ActivityID == activityID {
			n++
		}
	}
	return n
}

type reservation struct {
	key pairKey
	id  string
}

type memoryTx struct {
	store    *MemoryAdapter
	held     map[string]bool
	inserts  []domain.Enrollment
	reserved []reservation
	deletes  map[string]domain.Enrollment
	deltas   map[string]int
}

func (t *memoryTx) GetForUpdate(ctx context.Context, activityID string) (*domain.SeatCounter, error) {
	if !t.held[activityID] {
		t.store.mu.RLock()
		_, exists := t.store.activities[activityID]
		t.store.mu.RUnlock()
		if !exists {
			return nil, nil
		}

		if err := t.store.acquire(ctx, activityID); err != nil {
			return nil, err
		}
		t.held[activityID] = true
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	a := t.store.activities[activityID]
	return &domain.SeatCounter{
		ActivityID: a.ID,
		Capacity:   a.Capacity,
		SeatsLeft:  a.SeatsLeft + t.deltas[activityID],
	}, nil
}

func (t *memoryTx) AdjustSeats(ctx context.Context, activityID string, delta int) error {
	if !t.held[activityID] {
		return fmt.Errorf("adjust seats: activity %s is not locked by this unit", activityID)
	}

	t.store.mu.RLock()
	a := t.store.activities[activityID]
	next := a.SeatsLeft + t.deltas[activityID] + delta
	capacity := a.Capacity
	t.store.mu.RUnlock()

	if next < 0 || next > capacity {
		return port.ErrSeatBounds
	}
	t.deltas[activityID] += delta
	return nil
}

func (t *memoryTx) Insert(ctx context.Context, enrollment domain.Enrollment) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if _, ok := t.store.activities[enrollment.ActivityID]; !ok {
		return fmt.Errorf("insert enrollment: unknown activity %s", enrollment.ActivityID)
	}
	if _, ok := t.store.enrollments[enrollment.ID]; ok {
		return fmt.Errorf("insert enrollment: id %s already used", enrollment.ID)
	}

	key := pairKey{userID: enrollment.UserID, activityID: enrollment.ActivityID}
	if _, taken := t.store.pairs[key]; taken {
		return port.ErrUniqueViolation
	}

	t.store.pairs[key] = enrollment.ID
	t.reserved = append(t.reserved, reservation{key: key, id: enrollment.ID})
	t.inserts = append(t.inserts, enrollment)
	return nil
}

func (t *memoryTx) FindOwned(ctx context.Context, enrollmentID, userID string) (*domain.Enrollment, error) {
	if _, gone := t.deletes[enrollmentID]; gone {
		return nil, nil
	}
	for _, e := range t.inserts {
		if e.ID == enrollmentID && e.UserID == userID {
			out := e
			return &out, nil
		}
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	e, ok := t.store.enrollments[enrollmentID]
	if !ok || e.UserID != userID {
		return nil, nil
	}
	return &e, nil
}

func (t *memoryTx) DeleteIfOwned(ctx context.Context, enrollmentID, userID string) (bool, error) {
	if _, gone := t.deletes[enrollmentID]; gone {
		return false, nil
	}
	for i, e := range t.inserts {
		if e.ID == enrollmentID && e.UserID == userID {
			t.inserts = append(t.inserts[:i], t.inserts[i+1:]...)
			t.deletes[enrollmentID] = e
			return true, nil
		}
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	e, ok := t.store.enrollments[enrollmentID]
	if !ok || e.UserID != userID {
		return false, nil
	}
	t.deletes[enrollmentID] = e
	return true, nil
}

func (t *memoryTx) commit() {
	now := time.Now().UTC()

	t.store.mu.Lock()
	for _, e := range t.inserts {
		t.store.enrollments[e.ID] = e
	}
	for id, e := range t.deletes {
		delete(t.store.enrollments, id)
		key := pairKey{userID: e.UserID, activityID: e.ActivityID}
		if t.store.pairs[key] == id {
			delete(t.store.pairs, key)
		}
	}
	for id, delta := range t.deltas {
		if delta == 0 {
			continue
		}
		a := t.store.activities[id]
		a.SeatsLeft += delta
		a.UpdatedAt = now
	}
	t.store.mu.Unlock()

	t.releaseLocks()
}

func (t *memoryTx) rollback() {
	t.store.mu.Lock()
	for _, r := range t.reserved {
		if t.store.pairs[r.key] == r.id {
			delete(t.store.pairs, r.key)
		}
	}
	t.store.mu.Unlock()

	t.releaseLocks()
}

func (t *memoryTx) releaseLocks() {
	for id := range t.held {
		t.store.release(id)
	}
	t.held = make(map[string]bool)
}
