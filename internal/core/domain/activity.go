package domain

import "time"

type Activity struct {
	ID          string
	Title       string
	Description string
	Modality    string
	Difficulty  string
	Location    string
	Price       float64
	StartsAt    *time.Time
	EndsAt      *time.Time
	Capacity    int
	SeatsLeft   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SeatCounter is the locked view of an activity's seat ledger.
type SeatCounter struct {
	ActivityID string
	Capacity   int
	SeatsLeft  int
}

type Availability struct {
	ActivityID string
	SeatsLeft  int
}
