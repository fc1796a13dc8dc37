package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rl1809/activity-enrollment/internal/adapter/storage"
	"github.com/rl1809/activity-enrollment/internal/core/domain"
	"github.com/rl1809/activity-enrollment/internal/core/service"
)

const (
	activityID    = "stress-activity"
	capacity      = 20
	totalRequests = 50
	lockWait      = 2 * time.Second
)

func main() {
	ctx := context.Background()

	store := storage.NewMemoryAdapter(lockWait)
	activityService := service.NewActivityService(store, nil)
	if _, err := activityService.Create(ctx, domain.Activity{ID: activityID, Title: "Stress run", Capacity: capacity}); err != nil {
		log.Fatalf("failed to create activity: %v", err)
	}

	enrollmentService := service.NewEnrollmentService(store, nil, 3, 10*time.Millisecond)

	// Counters
	var successCount, soldOutCount, otherCount atomic.Int32
	var enrolled sync.Map

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()

			user := fmt.Sprintf("user-%d", userID)
			enrollment, err := enrollmentService.Enroll(ctx, user, activityID)
			switch {
			case err == nil:
				successCount.Add(1)
				enrolled.Store(user, enrollment.ID)
			case errors.Is(err, domain.ErrNoSeatsLeft):
				soldOutCount.Add(1)
			default:
				otherCount.Add(1)
				log.Printf("%s: unexpected error: %v", user, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Capacity:         %d\n", capacity)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Enrolled:         %d\n", success)
	fmt.Printf("No Seats Left:    %d\n", soldOut)
	fmt.Printf("Other Errors:     %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == int32(capacity) && soldOut == int32(totalRequests-capacity) {
		fmt.Printf("PASS: Exactly %d enrollments succeeded, %d sold out\n", capacity, totalRequests-capacity)
	} else {
		fmt.Printf("FAIL: Expected %d enrolled/%d sold out, got %d/%d\n",
			capacity, totalRequests-capacity, success, soldOut)
	}

	verifyLedger(ctx, store, capacity-int(success))

	// Cancel every enrollment concurrently and check the seats come back
	enrolled.Range(func(key, value any) bool {
		wg.Add(1)
		go func(user, enrollmentID string) {
			defer wg.Done()
			if err := enrollmentService.Cancel(ctx, user, enrollmentID); err != nil {
				log.Printf("%s: cancel failed: %v", user, err)
			}
		}(key.(string), value.(string))
		return true
	})
	wg.Wait()

	verifyLedger(ctx, store, capacity)
}

func verifyLedger(ctx context.Context, store *storage.MemoryAdapter, wantSeats int) {
	activity, err := store.GetActivity(ctx, activityID)
	if err != nil || activity == nil {
		log.Fatalf("failed to read activity: %v", err)
	}
	count := store.EnrollmentCount(activityID)

	fmt.Printf("Seats Left: %d, Enrollments: %d\n", activity.SeatsLeft, count)
	if activity.SeatsLeft == wantSeats && activity.SeatsLeft+count == activity.Capacity {
		fmt.Println("PASS: seats_left + enrollments == capacity")
	} else {
		fmt.Printf("FAIL: Expected seats_left %d with seats_left + enrollments == %d\n", wantSeats, activity.Capacity)
	}
}
