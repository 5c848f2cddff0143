package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/training-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/training-scheduler-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context) ([]models.Course, error)
	ListByBranch(ctx context.Context, branchID string) ([]models.Course, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Course, error)
	Create(ctx context.Context, exec sqlx.ExtContext, course *models.Course) error
	Update(ctx context.Context, exec sqlx.ExtContext, course *models.Course) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type courseBatchCounter interface {
	CountByCourse(ctx context.Context, courseID string) (int, error)
}

// CourseService manages courses and keeps branches and persons pointing back at them.
type CourseService struct {
	repo      courseRepository
	branches  branchLookup
	persons   idLister
	batches   courseBatchCounter
	relations *RelationSynchronizer
	tx        txProvider
	summary   *SummaryService
	validator *validator.Validate
	logger    *zap.Logger
}

type branchLookup interface {
	FindByID(ctx context.Context, id string) (*models.Branch, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// NewCourseService constructs a CourseService.
func NewCourseService(
	repo courseRepository,
	branches branchLookup,
	persons idLister,
	batches courseBatchCounter,
	relations *RelationSynchronizer,
	tx txProvider,
	summary *SummaryService,
	validate *validator.Validate,
	logger *zap.Logger,
) *CourseService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{
		repo:      repo,
		branches:  branches,
		persons:   persons,
		batches:   batches,
		relations: relations,
		tx:        tx,
		summary:   summary,
		validator: validate,
		logger:    logger,
	}
}

// List returns every course.
func (s *CourseService) List(ctx context.Context) ([]models.Course, error) {
	courses, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list courses")
	}
	if courses == nil {
		courses = []models.Course{}
	}
	return courses, nil
}

// ListByBranch returns the courses offered at an existing branch.
func (s *CourseService) ListByBranch(ctx context.Context, branchID string) ([]models.Course, error) {
	if _, err := s.branches.FindByID(ctx, branchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "branch not found")
		}
		return nil, appErrors.Internal(err, "failed to load branch")
	}
	courses, err := s.repo.ListByBranch(ctx, branchID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list courses")
	}
	if courses == nil {
		courses = []models.Course{}
	}
	return courses, nil
}

// Get returns a course by ID.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Internal(err, "failed to load course")
	}
	return course, nil
}

// Create stores a course and registers it on its branches and persons.
func (s *CourseService) Create(ctx context.Context, req models.CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid course payload")
	}
	branchIDs, err := expandIDs(ctx, req.BranchIDs, req.AssignPolicy, s.branches)
	if err != nil {
		return nil, err
	}
	personIDs, err := expandIDs(ctx, req.PersonIDs, req.AssignPolicy, s.persons)
	if err != nil {
		return nil, err
	}

	course := &models.Course{
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		DurationDays: req.DurationDays,
		BranchIDs:    branchIDs,
		PersonIDs:    personIDs,
	}

	err = runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.relations.RequireTargets(ctx, tx, models.CourseBranches, branchIDs); err != nil {
			return err
		}
		if err := s.relations.RequireTargets(ctx, tx, models.CoursePersons, personIDs); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, tx, course); err != nil {
			return appErrors.Internal(err, "failed to create course")
		}
		if err := s.relations.Sync(ctx, tx, models.CourseBranches, course.ID, nil, branchIDs); err != nil {
			return err
		}
		return s.relations.Sync(ctx, tx, models.CoursePersons, course.ID, nil, personIDs)
	})
	if err != nil {
		return nil, err
	}

	s.summary.Invalidate(ctx)
	return course, nil
}

// Update edits a course and resynchronises the reference lists it replaces.
// Lists the request leaves out are taken from the row locked in the
// transaction.
func (s *CourseService) Update(ctx context.Context, id string, req models.UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid course payload")
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		course.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		course.Description = req.Description
	}
	if req.DurationDays != nil {
		course.DurationDays = *req.DurationDays
	}
	if req.BranchIDs != nil {
		if course.BranchIDs, err = expandIDs(ctx, *req.BranchIDs, req.AssignPolicy, s.branches); err != nil {
			return nil, err
		}
	}
	if req.PersonIDs != nil {
		if course.PersonIDs, err = expandIDs(ctx, *req.PersonIDs, req.AssignPolicy, s.persons); err != nil {
			return nil, err
		}
	}

	err = runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		locked, err := s.lockRow(ctx, tx, id)
		if err != nil {
			return err
		}
		oldBranches, oldPersons := locked.BranchIDs, locked.PersonIDs
		if req.BranchIDs == nil {
			course.BranchIDs = locked.BranchIDs
		}
		if req.PersonIDs == nil {
			course.PersonIDs = locked.PersonIDs
		}
		if req.BranchIDs != nil {
			if err := s.relations.RequireTargets(ctx, tx, models.CourseBranches, course.BranchIDs); err != nil {
				return err
			}
		}
		if req.PersonIDs != nil {
			if err := s.relations.RequireTargets(ctx, tx, models.CoursePersons, course.PersonIDs); err != nil {
				return err
			}
		}
		if err := s.repo.Update(ctx, tx, course); err != nil {
			return appErrors.Internal(err, "failed to update course")
		}
		if err := s.relations.Sync(ctx, tx, models.CourseBranches, course.ID, oldBranches, course.BranchIDs); err != nil {
			return err
		}
		return s.relations.Sync(ctx, tx, models.CoursePersons, course.ID, oldPersons, course.PersonIDs)
	})
	if err != nil {
		return nil, err
	}
	return course, nil
}

// Delete removes a course no batch refers to and detaches it everywhere.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	booked, err := s.batches.CountByCourse(ctx, id)
	if err != nil {
		return appErrors.Internal(err, "failed to count batches")
	}
	if booked > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "course still has batches")
	}

	err = runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		course, err := s.lockRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.relations.Sync(ctx, tx, models.CourseBranches, id, course.BranchIDs, nil); err != nil {
			return err
		}
		if err := s.relations.Sync(ctx, tx, models.CoursePersons, id, course.PersonIDs, nil); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, tx, id); err != nil {
			return appErrors.Internal(err, "failed to delete course")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.summary.Invalidate(ctx)
	return nil
}

func (s *CourseService) lockRow(ctx context.Context, tx sqlx.ExtContext, id string) (*models.Course, error) {
	course, err := s.repo.FindForUpdate(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Internal(err, "failed to lock course")
	}
	return course, nil
}
