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

type personRepository interface {
	List(ctx context.Context, filter models.PersonFilter) ([]models.Person, int, error)
	FindByID(ctx context.Context, id string) (*models.Person, error)
	FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Person, error)
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, person *models.Person) error
	Update(ctx context.Context, exec sqlx.ExtContext, person *models.Person) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type courseRefLister interface {
	ListRefs(ctx context.Context, ids []string) ([]models.CourseRef, error)
	ListIDs(ctx context.Context) ([]string, error)
}

type idLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

type personBatchCounter interface {
	CountByPerson(ctx context.Context, personID string) (int, error)
}

// PersonService manages instructors and inspectors. Every operation is scoped
// to a role; a person of the other role is reported as not found.
type PersonService struct {
	repo      personRepository
	courses   courseRefLister
	branches  idLister
	batches   personBatchCounter
	relations *RelationSynchronizer
	tx        txProvider
	summary   *SummaryService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPersonService constructs a PersonService.
func NewPersonService(
	repo personRepository,
	courses courseRefLister,
	branches idLister,
	batches personBatchCounter,
	relations *RelationSynchronizer,
	tx txProvider,
	summary *SummaryService,
	validate *validator.Validate,
	logger *zap.Logger,
) *PersonService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PersonService{
		repo:      repo,
		courses:   courses,
		branches:  branches,
		batches:   batches,
		relations: relations,
		tx:        tx,
		summary:   summary,
		validator: validate,
		logger:    logger,
	}
}

// List returns persons of role with their course names attached.
func (s *PersonService) List(ctx context.Context, role models.PersonRole, filter models.PersonFilter) ([]models.Person, *models.Pagination, error) {
	filter.Role = role
	persons, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list "+role.Label()+"s")
	}
	if persons == nil {
		persons = []models.Person{}
	}
	if err := s.attachCourses(ctx, persons); err != nil {
		return nil, nil, err
	}

	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return persons, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a person of role by ID.
func (s *PersonService) Get(ctx context.Context, role models.PersonRole, id string) (*models.Person, error) {
	person, err := s.load(ctx, role, id)
	if err != nil {
		return nil, err
	}
	list := []models.Person{*person}
	if err := s.attachCourses(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// Create registers a person and links it to its courses.
func (s *PersonService) Create(ctx context.Context, role models.PersonRole, req models.CreatePersonRequest) (*models.Person, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid "+role.Label()+" payload")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.ensureEmailAvailable(ctx, email, ""); err != nil {
		return nil, err
	}
	courseIDs, err := expandIDs(ctx, req.CourseIDs, req.AssignPolicy, s.courses)
	if err != nil {
		return nil, err
	}
	branchIDs, err := expandIDs(ctx, req.BranchIDs, req.AssignPolicy, s.branches)
	if err != nil {
		return nil, err
	}

	person := &models.Person{
		Role:      role,
		Name:      strings.TrimSpace(req.Name),
		Email:     email,
		Phone:     strPtr(strings.TrimSpace(req.Phone)),
		CourseIDs: courseIDs,
		BranchIDs: branchIDs,
	}

	err = runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.relations.RequireTargets(ctx, tx, models.PersonCourses, courseIDs); err != nil {
			return err
		}
		if err := s.relations.RequireTargets(ctx, tx, models.CourseBranches, branchIDs); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, tx, person); err != nil {
			if isUniqueViolation(err) {
				return appErrors.Clone(appErrors.ErrConflict, "email already exists")
			}
			return appErrors.Internal(err, "failed to create "+role.Label())
		}
		return s.relations.Sync(ctx, tx, models.PersonCourses, person.ID, nil, courseIDs)
	})
	if err != nil {
		return nil, err
	}

	s.summary.Invalidate(ctx)
	return s.Get(ctx, role, person.ID)
}

// Update edits a person and resynchronises course links when they change.
// Reference lists are re-read under a row lock, so links added concurrently
// from the course side are kept unless the request replaces them. The batch
// counter cannot be written through this path.
func (s *PersonService) Update(ctx context.Context, role models.PersonRole, id string, req models.UpdatePersonRequest) (*models.Person, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid "+role.Label()+" payload")
	}
	person, err := s.load(ctx, role, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		person.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email != strings.ToLower(person.Email) {
			if err := s.ensureEmailAvailable(ctx, email, id); err != nil {
				return nil, err
			}
		}
		person.Email = email
	}
	if req.Phone != nil {
		person.Phone = strPtr(strings.TrimSpace(*req.Phone))
	}
	if req.CourseIDs != nil {
		if person.CourseIDs, err = expandIDs(ctx, *req.CourseIDs, req.AssignPolicy, s.courses); err != nil {
			return nil, err
		}
	}
	if req.BranchIDs != nil {
		if person.BranchIDs, err = expandIDs(ctx, *req.BranchIDs, req.AssignPolicy, s.branches); err != nil {
			return nil, err
		}
	}

	err = runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		locked, err := s.lockRow(ctx, tx, role, id)
		if err != nil {
			return err
		}
		oldCourses := locked.CourseIDs
		if req.CourseIDs == nil {
			person.CourseIDs = locked.CourseIDs
		}
		if req.BranchIDs == nil {
			person.BranchIDs = locked.BranchIDs
		}
		if req.CourseIDs != nil {
			if err := s.relations.RequireTargets(ctx, tx, models.PersonCourses, person.CourseIDs); err != nil {
				return err
			}
		}
		if req.BranchIDs != nil {
			if err := s.relations.RequireTargets(ctx, tx, models.CourseBranches, person.BranchIDs); err != nil {
				return err
			}
		}
		if err := s.repo.Update(ctx, tx, person); err != nil {
			if isUniqueViolation(err) {
				return appErrors.Clone(appErrors.ErrConflict, "email already exists")
			}
			return appErrors.Internal(err, "failed to update "+role.Label())
		}
		return s.relations.Sync(ctx, tx, models.PersonCourses, person.ID, oldCourses, person.CourseIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, role, id)
}

// Delete removes a person without batches and detaches it from its courses.
func (s *PersonService) Delete(ctx context.Context, role models.PersonRole, id string) error {
	if _, err := s.load(ctx, role, id); err != nil {
		return err
	}
	booked, err := s.batches.CountByPerson(ctx, id)
	if err != nil {
		return appErrors.Internal(err, "failed to count batches")
	}
	if booked > 0 {
		return appErrors.Clone(appErrors.ErrConflict, role.Label()+" still has batches")
	}

	err = runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		locked, err := s.lockRow(ctx, tx, role, id)
		if err != nil {
			return err
		}
		if err := s.relations.Sync(ctx, tx, models.PersonCourses, id, locked.CourseIDs, nil); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, tx, id); err != nil {
			return appErrors.Internal(err, "failed to delete "+role.Label())
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.summary.Invalidate(ctx)
	return nil
}

func (s *PersonService) load(ctx context.Context, role models.PersonRole, id string) (*models.Person, error) {
	person, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, role.Label()+" not found")
		}
		return nil, appErrors.Internal(err, "failed to load "+role.Label())
	}
	if person.Role != role {
		return nil, appErrors.Clone(appErrors.ErrNotFound, role.Label()+" not found")
	}
	return person, nil
}

// lockRow re-reads a person inside tx and holds its row lock until commit.
func (s *PersonService) lockRow(ctx context.Context, tx sqlx.ExtContext, role models.PersonRole, id string) (*models.Person, error) {
	person, err := s.repo.FindForUpdate(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, role.Label()+" not found")
		}
		return nil, appErrors.Internal(err, "failed to lock "+role.Label())
	}
	return person, nil
}

func (s *PersonService) ensureEmailAvailable(ctx context.Context, email, excludeID string) error {
	exists, err := s.repo.ExistsByEmail(ctx, email, excludeID)
	if err != nil {
		return appErrors.Internal(err, "failed to check email uniqueness")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "email already exists")
	}
	return nil
}

func (s *PersonService) attachCourses(ctx context.Context, persons []models.Person) error {
	var ids []string
	for _, p := range persons {
		ids = append(ids, p.CourseIDs...)
	}
	refs, err := s.courses.ListRefs(ctx, uniqueIDs(ids))
	if err != nil {
		return appErrors.Internal(err, "failed to load courses")
	}
	byID := make(map[string]models.CourseRef, len(refs))
	for _, ref := range refs {
		byID[ref.ID] = ref
	}
	for i := range persons {
		persons[i].Courses = make([]models.CourseRef, 0, len(persons[i].CourseIDs))
		for _, id := range persons[i].CourseIDs {
			if ref, ok := byID[id]; ok {
				persons[i].Courses = append(persons[i].Courses, ref)
			}
		}
	}
	return nil
}

// expandIDs deduplicates ids and, under AssignAll, replaces an empty list
// with every ID the lister knows.
func expandIDs(ctx context.Context, ids []string, policy models.AssignPolicy, all idLister) ([]string, error) {
	ids = uniqueIDs(ids)
	if len(ids) > 0 || !policy.ExpandsEmpty() {
		return ids, nil
	}
	every, err := all.ListIDs(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to expand assignment")
	}
	return uniqueIDs(every), nil
}

// runInTx commits fn's work or rolls it back when fn or the commit fails.
func runInTx(ctx context.Context, provider txProvider, fn func(tx *sqlx.Tx) error) (err error) {
	if provider == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := provider.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Internal(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		if isLockConflict(err) {
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "record changed concurrently, retry the request")
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Internal(err, "failed to commit transaction")
	}
	return nil
}
