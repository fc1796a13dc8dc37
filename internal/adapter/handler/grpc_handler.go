package handler

import (
	"context"
	"errors"
	"log"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/activity-enrollment/internal/auth"
	"github.com/rl1809/activity-enrollment/internal/core/domain"
)

type GRPCHandler struct {
	enrollments Enroller
	queries     EnrollmentLister
}

func NewGRPCHandler(enrollments Enroller, queries EnrollmentLister) *GRPCHandler {
	return &GRPCHandler{enrollments: enrollments, queries: queries}
}

func (h *GRPCHandler) Enroll(ctx context.Context, req *EnrollRequest) (*EnrollResponse, error) {
	claims, ok := auth.FromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "Missing token")
	}
	if req.ActivityID == "" {
		return nil, status.Error(codes.InvalidArgument, "activity_id is required")
	}

	enrollment, err := h.enrollments.Enroll(ctx, claims.UserID, string(req.ActivityID))
	if err != nil {
		return nil, grpcError("Enroll", err)
	}
	return &EnrollResponse{Status: "ok", EnrollmentID: enrollment.ID}, nil
}

func (h *GRPCHandler) Cancel(ctx context.Context, req *CancelRequest) (*CancelResponse, error) {
	claims, ok := auth.FromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "Missing token")
	}

	if err := h.enrollments.Cancel(ctx, claims.UserID, req.EnrollmentID); err != nil {
		return nil, grpcError("Cancel", err)
	}
	return &CancelResponse{Status: "ok"}, nil
}

func (h *GRPCHandler) ListMine(ctx context.Context, req *ListMineRequest) (*ListMineResponse, error) {
	claims, ok := auth.FromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "Missing token")
	}

	views, err := h.queries.ListMine(ctx, claims.UserID, domain.ParseWhen(req.When))
	if err != nil {
		return nil, grpcError("ListMine", err)
	}

	return &ListMineResponse{Items: toEnrollmentItems(views)}, nil
}

func grpcError(method string, err error) error {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		if errors.Is(err, domain.ErrActivityNotFound) {
			return status.Error(codes.NotFound, "Activity not found")
		}
		if errors.Is(err, domain.ErrEnrollmentNotFound) {
			return status.Error(codes.NotFound, "Enrollment not found")
		}
		return status.Error(codes.NotFound, "Not found")
	case domain.KindConflict:
		if errors.Is(err, domain.ErrAlreadyEnrolled) {
			return status.Error(codes.AlreadyExists, "Already enrolled")
		}
		return status.Error(codes.FailedPrecondition, "No seats left")
	case domain.KindTransient:
		log.Printf("grpc %s: transient failure: %v", method, err)
		return status.Error(codes.Unavailable, "temporarily unavailable, retry")
	default:
		log.Printf("grpc %s: internal error: %v", method, err)
		return status.Error(codes.Internal, "internal error")
	}
}
