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

type branchRepository interface {
	List(ctx context.Context) ([]models.Branch, error)
	FindByID(ctx context.Context, id string) (*models.Branch, error)
	FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Branch, error)
	ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, branch *models.Branch) error
	Update(ctx context.Context, exec sqlx.ExtContext, branch *models.Branch) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type branchBatchCounter interface {
	CountByBranch(ctx context.Context, branchID string) (int, error)
}

// BranchService manages branches.
type BranchService struct {
	repo      branchRepository
	courses   idLister
	batches   branchBatchCounter
	relations *RelationSynchronizer
	tx        txProvider
	summary   *SummaryService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBranchService constructs a BranchService.
func NewBranchService(
	repo branchRepository,
	courses idLister,
	batches branchBatchCounter,
	relations *RelationSynchronizer,
	tx txProvider,
	summary *SummaryService,
	validate *validator.Validate,
	logger *zap.Logger,
) *BranchService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BranchService{
		repo:      repo,
		courses:   courses,
		batches:   batches,
		relations: relations,
		tx:        tx,
		summary:   summary,
		validator: validate,
		logger:    logger,
	}
}

// List returns every branch.
func (s *BranchService) List(ctx context.Context) ([]models.Branch, error) {
	branches, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list branches")
	}
	if branches == nil {
		branches = []models.Branch{}
	}
	return branches, nil
}

// Get returns a branch by ID.
func (s *BranchService) Get(ctx context.Context, id string) (*models.Branch, error) {
	branch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "branch not found")
		}
		return nil, appErrors.Internal(err, "failed to load branch")
	}
	return branch, nil
}

// Create stores a branch with a unique code.
func (s *BranchService) Create(ctx context.Context, req models.CreateBranchRequest) (*models.Branch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid branch payload")
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if err := s.ensureCodeAvailable(ctx, code, ""); err != nil {
		return nil, err
	}
	courseIDs, err := expandIDs(ctx, req.CourseIDs, req.AssignPolicy, s.courses)
	if err != nil {
		return nil, err
	}

	branch := &models.Branch{
		Name:      strings.TrimSpace(req.Name),
		Country:   strings.TrimSpace(req.Country),
		Code:      code,
		Address:   req.Address,
		CourseIDs: courseIDs,
	}
	err = runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.relations.RequireTargets(ctx, tx, models.BranchCourses, courseIDs); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, tx, branch); err != nil {
			if isUniqueViolation(err) {
				return appErrors.Clone(appErrors.ErrConflict, "branch code already exists")
			}
			return appErrors.Internal(err, "failed to create branch")
		}
		return s.relations.Sync(ctx, tx, models.BranchCourses, branch.ID, nil, courseIDs)
	})
	if err != nil {
		return nil, err
	}

	s.summary.Invalidate(ctx)
	return branch, nil
}

// Update edits a branch. Course links are re-read under a row lock when the
// request does not replace them.
func (s *BranchService) Update(ctx context.Context, id string, req models.UpdateBranchRequest) (*models.Branch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid branch payload")
	}
	branch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		branch.Name = strings.TrimSpace(*req.Name)
	}
	if req.Country != nil {
		branch.Country = strings.TrimSpace(*req.Country)
	}
	if req.Code != nil {
		code := strings.ToUpper(strings.TrimSpace(*req.Code))
		if code != branch.Code {
			if err := s.ensureCodeAvailable(ctx, code, id); err != nil {
				return nil, err
			}
		}
		branch.Code = code
	}
	if req.Address != nil {
		branch.Address = req.Address
	}
	if req.CourseIDs != nil {
		if branch.CourseIDs, err = expandIDs(ctx, *req.CourseIDs, req.AssignPolicy, s.courses); err != nil {
			return nil, err
		}
	}

	err = runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		locked, err := s.lockRow(ctx, tx, id)
		if err != nil {
			return err
		}
		oldCourses := locked.CourseIDs
		if req.CourseIDs == nil {
			branch.CourseIDs = locked.CourseIDs
		}
		if req.CourseIDs != nil {
			if err := s.relations.RequireTargets(ctx, tx, models.BranchCourses, branch.CourseIDs); err != nil {
				return err
			}
		}
		if err := s.repo.Update(ctx, tx, branch); err != nil {
			if isUniqueViolation(err) {
				return appErrors.Clone(appErrors.ErrConflict, "branch code already exists")
			}
			return appErrors.Internal(err, "failed to update branch")
		}
		return s.relations.Sync(ctx, tx, models.BranchCourses, branch.ID, oldCourses, branch.CourseIDs)
	})
	if err != nil {
		return nil, err
	}
	return branch, nil
}

// Delete removes a branch no batch refers to, detaching it from its courses
// and from every person listing it.
func (s *BranchService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	booked, err := s.batches.CountByBranch(ctx, id)
	if err != nil {
		return appErrors.Internal(err, "failed to count batches")
	}
	if booked > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "branch still has batches")
	}

	err = runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		branch, err := s.lockRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.relations.Sync(ctx, tx, models.BranchCourses, id, branch.CourseIDs, nil); err != nil {
			return err
		}
		if err := s.relations.Detach(ctx, tx, models.BranchPersons, id); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, tx, id); err != nil {
			return appErrors.Internal(err, "failed to delete branch")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.summary.Invalidate(ctx)
	return nil
}

func (s *BranchService) lockRow(ctx context.Context, tx sqlx.ExtContext, id string) (*models.Branch, error) {
	branch, err := s.repo.FindForUpdate(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "branch not found")
		}
		return nil, appErrors.Internal(err, "failed to lock branch")
	}
	return branch, nil
}

func (s *BranchService) ensureCodeAvailable(ctx context.Context, code, excludeID string) error {
	exists, err := s.repo.ExistsByCode(ctx, code, excludeID)
	if err != nil {
		return appErrors.Internal(err, "failed to check branch code")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "branch code already exists")
	}
	return nil
}
