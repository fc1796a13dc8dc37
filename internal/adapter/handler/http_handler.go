package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rl1809/activity-enrollment/internal/auth"
	"github.com/rl1809/activity-enrollment/internal/core/domain"
)

const retryAfterSeconds = "1"

type Enroller interface {
	Enroll(ctx context.Context, userID, activityID string) (*domain.Enrollment, error)
	Cancel(ctx context.Context, userID, enrollmentID string) error
}

type EnrollmentLister interface {
	ListMine(ctx context.Context, userID string, when domain.When) ([]domain.EnrollmentView, error)
}

type ActivityReader interface {
	List(ctx context.Context) ([]domain.Activity, error)
	Get(ctx context.Context, activityID string) (*domain.Activity, error)
	Availability(ctx context.Context, activityID string) (*domain.Availability, error)
}

type HTTPHandler struct {
	enrollments Enroller
	queries     EnrollmentLister
	activities  ActivityReader
	validate    *validator.Validate
}

// FlexibleID accepts a JSON string or number.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("activity id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("activity id must be an integer: %w", err)
	}
	*f = FlexibleID(n.String())
	return nil
}

type EnrollHTTPRequest struct {
	ActivityID FlexibleID `json:"activity_id" validate:"required"`
}

type EnrollHTTPResponse struct {
	Status       string `json:"status"`
	EnrollmentID string `json:"enrollment_id"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type EnrollmentItem struct {
	EnrollmentID string     `json:"enrollment_id"`
	ActivityID   string     `json:"activity_id"`
	Title        string     `json:"title"`
	Location     string     `json:"location"`
	StartsAt     *time.Time `json:"starts_at"`
	EndsAt       *time.Time `json:"ends_at"`
	Price        float64    `json:"price"`
}

type ListMineResponse struct {
	Items []EnrollmentItem `json:"items"`
}

type ActivityItem struct {
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
	SeatsLeft   int        `json:"seats_left"`
}

type SeatsResponse struct {
	ActivityID string `json:"activity_id"`
	SeatsLeft  int    `json:"seats_left"`
}

func NewHTTPHandler(enrollments Enroller, queries EnrollmentLister, activities ActivityReader) *HTTPHandler {
	return &HTTPHandler{
		enrollments: enrollments,
		queries:     queries,
		activities:  activities,
		validate:    validator.New(),
	}
}

// Register mounts every route on mux. Authentication is applied by the caller.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/enrollments", h.Enroll)
	mux.HandleFunc("DELETE /api/enrollments/{id}", h.Cancel)
	mux.HandleFunc("GET /api/enrollments/mine", h.ListMine)
	mux.HandleFunc("GET /api/activities", h.ListActivities)
	mux.HandleFunc("GET /api/activities/{id}", h.GetActivity)
	mux.HandleFunc("GET /api/activities/{id}/seats", h.Seats)
	mux.HandleFunc("GET /api/health", h.HealthCheck)
}

func (h *HTTPHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Missing token"})
		return
	}

	var req EnrollHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "activity_id is required"})
		return
	}

	enrollment, err := h.enrollments.Enroll(r.Context(), claims.UserID, string(req.ActivityID))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, EnrollHTTPResponse{
		Status:       "ok",
		EnrollmentID: enrollment.ID,
	})
}

func (h *HTTPHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Missing token"})
		return
	}

	if err := h.enrollments.Cancel(r.Context(), claims.UserID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (h *HTTPHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Missing token"})
		return
	}

	when := domain.ParseWhen(r.URL.Query().Get("when"))
	views, err := h.queries.ListMine(r.Context(), claims.UserID, when)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ListMineResponse{Items: toEnrollmentItems(views)})
}

func (h *HTTPHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	activities, err := h.activities.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]ActivityItem, 0, len(activities))
	for _, a := range activities {
		items = append(items, toActivityItem(a))
	}
	writeJSON(w, http.StatusOK, map[string][]ActivityItem{"items": items})
}

func (h *HTTPHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	activity, err := h.activities.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityItem(*activity))
}

func (h *HTTPHandler) Seats(w http.ResponseWriter, r *http.Request) {
	availability, err := h.activities.Availability(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SeatsResponse{
		ActivityID: availability.ActivityID,
		SeatsLeft:  availability.SeatsLeft,
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func toEnrollmentItems(views []domain.EnrollmentView) []EnrollmentItem {
	items := make([]EnrollmentItem, 0, len(views))
	for _, v := range views {
		items = append(items, EnrollmentItem{
			EnrollmentID: v.EnrollmentID,
			ActivityID:   v.ActivityID,
			Title:        v.Title,
			Location:     v.Location,
			StartsAt:     v.StartsAt,
			EndsAt:       v.EndsAt,
			Price:        v.Price,
		})
	}
	return items
}

func toActivityItem(a domain.Activity) ActivityItem {
	return ActivityItem{
		ID:          a.ID,
		Title:       a.Title,
		Description: a.Description,
		Modality:    a.Modality,
		Difficulty:  a.Difficulty,
		Location:    a.Location,
		Price:       a.Price,
		StartsAt:    a.StartsAt,
		EndsAt:      a.EndsAt,
		Capacity:    a.Capacity,
		SeatsLeft:   a.SeatsLeft,
	}
}

// writeError maps a domain error to a status code. Internal details are logged, never returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		message := "Not found"
		if errors.Is(err, domain.ErrActivityNotFound) {
			message = "Activity not found"
		} else if errors.Is(err, domain.ErrEnrollmentNotFound) {
			message = "Enrollment not found"
		}
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: message})
	case domain.KindConflict:
		message := "Conflict"
		if errors.Is(err, domain.ErrNoSeatsLeft) {
			message = "No seats left"
		} else if errors.Is(err, domain.ErrAlreadyEnrolled) {
			message = "Already enrolled"
		}
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: message})
	case domain.KindTransient:
		log.Printf("%s %s: transient failure: %v", r.Method, r.URL.Path, err)
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "Temporarily unavailable, retry"})
	default:
		log.Printf("%s %s: internal error: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
