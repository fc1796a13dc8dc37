package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rl1809/activity-enrollment/internal/core/domain"
	"github.com/rl1809/activity-enrollment/internal/core/service"
	"github.com/rl1809/activity-enrollment/internal/port"
)

type seedActivity struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Modality    string     `json:"modality"`
	Difficulty  string     `json:"difficulty"`
	Location    string     `json:"location"`
	Price       float64    `json:"price"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
	Capacity    int        `json:"capacity"`
}

// seedActivities creates every activity in the JSON file that does not exist yet.
func seedActivities(ctx context.Context, path string, catalog port.CatalogRepository, activities *service.ActivityService) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}

	var seeds []seedActivity
	if err := json.Unmarshal(raw, &seeds); err != nil {
		return 0, fmt.Errorf("decode seed file: %w", err)
	}

	created := 0
	for _, s := range seeds {
		if s.ID != "" {
			existing, err := catalog.GetActivity(ctx, s.ID)
			if err != nil {
				return created, err
			}
			if existing != nil {
				continue
			}
		}

		_, err := activities.Create(ctx, domain.Activity{
			ID:          s.ID,
			Title:       s.Title,
			Description: s.Description,
			Modality:    s.Modality,
			Difficulty:  s.Difficulty,
			Location:    s.Location,
			Price:       s.Price,
			StartsAt:    s.StartsAt,
			EndsAt:      s.EndsAt,
			Capacity:    s.Capacity,
		})
		if err != nil {
			return created, fmt.Errorf("seed %q: %w", s.Title, err)
		}
		created++
	}
	return created, nil
}
