package domain

import (
	"strings"
	"time"
)

type Enrollment struct {
	ID         string
	UserID     string
	ActivityID string
	CreatedAt  time.Time
}

// EnrollmentView is an enrollment joined with the activity fields shown to its owner.
type EnrollmentView struct {
	EnrollmentID string
	ActivityID   string
	Title        string
	Location     string
	StartsAt     *time.Time
	EndsAt       *time.Time
	Price        float64
}

type When string

const (
	WhenUpcoming When = "upcoming"
	WhenPast     When = "past"
	WhenAll      When = "all"
)

// ParseWhen is case-insensitive and falls back to WhenUpcoming.
func ParseWhen(raw string) When {
	switch When(strings.ToLower(strings.TrimSpace(raw))) {
	case WhenPast:
		return WhenPast
	case WhenAll:
		return WhenAll
	default:
		return WhenUpcoming
	}
}
