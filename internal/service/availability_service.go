package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/training-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/training-scheduler-api/pkg/errors"
)

type qualifiedPersonLister interface {
	ListQualified(ctx context.Context, role models.PersonRole, courseID, branchID string) ([]models.Person, error)
}

type busyPersonLister interface {
	BusyPersonIDs(ctx context.Context, window models.DateRange) ([]string, error)
}

// AvailabilityService answers which qualified persons are free in a window.
type AvailabilityService struct {
	persons   qualifiedPersonLister
	batches   busyPersonLister
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAvailabilityService constructs an AvailabilityService.
func NewAvailabilityService(persons qualifiedPersonLister, batches busyPersonLister, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{persons: persons, batches: batches, validator: validate, logger: logger}
}

// FindAvailable returns persons of role qualified for the course (and
// assigned to the branch when given) that hold no batch overlapping the
// window. Any booking counts as busy regardless of its course or branch.
// Qualified order is preserved.
func (s *AvailabilityService) FindAvailable(ctx context.Context, role models.PersonRole, req models.AvailabilityRequest) ([]models.Person, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid availability query")
	}
	window, err := models.ParseDateRange(req.FromDate, req.ToDate)
	if err != nil {
		return nil, appErrors.Validation(err, err.Error())
	}

	qualified, err := s.persons.ListQualified(ctx, role, req.CourseID, req.BranchID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list qualified "+role.Label()+"s")
	}
	available := make([]models.Person, 0, len(qualified))
	if len(qualified) == 0 {
		return available, nil
	}

	busyIDs, err := s.batches.BusyPersonIDs(ctx, window)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list booked persons")
	}
	busy := make(map[string]struct{}, len(busyIDs))
	for _, id := range busyIDs {
		busy[id] = struct{}{}
	}

	for _, person := range qualified {
		if _, ok := busy[person.ID]; ok {
			continue
		}
		available = append(available, person)
	}
	s.logger.Debug("availability computed",
		zap.String("role", string(role)),
		zap.String("course_id", req.CourseID),
		zap.Int("qualified", len(qualified)),
		zap.Int("available", len(available)),
	)
	return available, nil
}
