package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/training-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/training-scheduler-api/pkg/errors"
)

type bookingBatchRepository interface {
	List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, error)
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Batch, error)
	FindOverlapping(ctx context.Context, exec sqlx.ExtContext, filter models.BatchOverlapFilter) ([]models.Batch, error)
	Create(ctx context.Context, exec sqlx.ExtContext, batch *models.Batch) error
	Update(ctx context.Context, exec sqlx.ExtContext, batch *models.Batch) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id, personID string) (bool, error)
	UpdateStatus(ctx context.Context, id string, window models.DateRange, status models.BatchStatus) error
}

type bookingPersonRepository interface {
	FindByID(ctx context.Context, id string) (*models.Person, error)
	Lock(ctx context.Context, exec sqlx.ExtContext, id string) (models.PersonRole, error)
	AdjustTotalBatches(ctx context.Context, exec sqlx.ExtContext, id string, delta int) error
}

type courseFinder interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type branchFinder interface {
	FindByID(ctx context.Context, id string) (*models.Branch, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// BookingConfig declares the conflict scope per role and the counter strategy.
type BookingConfig struct {
	InstructorScope models.ConflictScope
	InspectorScope  models.ConflictScope
	// ComputedCounter disables writes to persons.total_batches.
	ComputedCounter bool
}

// AuditMeta describes the caller of a write for audit logging.
type AuditMeta struct {
	ActorID   string
	IP        string
	UserAgent string
}

// BookingService creates, updates and deletes batches while keeping persons
// free of overlapping bookings and their batch counters exact.
type BookingService struct {
	batches   bookingBatchRepository
	persons   bookingPersonRepository
	courses   courseFinder
	branches  branchFinder
	audit     auditWriter
	tx        txProvider
	summary   *SummaryService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       BookingConfig
	statuses  statusPersister
	now       func() time.Time
}

// NewBookingService wires booking dependencies.
func NewBookingService(
	batches bookingBatchRepository,
	persons bookingPersonRepository,
	courses courseFinder,
	branches branchFinder,
	audit auditWriter,
	tx txProvider,
	summary *SummaryService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg BookingConfig,
) *BookingService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.InstructorScope.Valid() {
		cfg.InstructorScope = models.ConflictScopePerson
	}
	if !cfg.InspectorScope.Valid() {
		cfg.InspectorScope = models.ConflictScopePerson
	}
	return &BookingService{
		batches:   batches,
		persons:   persons,
		courses:   courses,
		branches:  branches,
		audit:     audit,
		tx:        tx,
		summary:   summary,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		statuses:  inlineStatusWriter{repo: batches},
		now:       time.Now,
	}
}

// UseStatusWriter moves status persistence off the request path.
func (s *BookingService) UseStatusWriter(w *StatusWriter) {
	if w != nil {
		s.statuses = w
	}
}

// ScopeFor returns the conflict scope configured for role.
func (s *BookingService) ScopeFor(role models.PersonRole) models.ConflictScope {
	if role == models.PersonRoleInspector {
		return s.cfg.InspectorScope
	}
	return s.cfg.InstructorScope
}

func (s *BookingService) overlapFilter(role models.PersonRole, personID, courseID string, branchID *string, window models.DateRange, excludeID string) models.BatchOverlapFilter {
	filter := models.BatchOverlapFilter{PersonID: personID, Range: window, ExcludeID: excludeID}
	switch s.ScopeFor(role) {
	case models.ConflictScopePersonCourse:
		filter.CourseID = courseID
	case models.ConflictScopePersonCourseBranch:
		filter.CourseID = courseID
		if branchID != nil {
			filter.BranchID = *branchID
		}
	}
	return filter
}

// CheckConflicts lists existing batches that would collide with the proposed
// booking. It takes no locks and never writes.
func (s *BookingService) CheckConflicts(ctx context.Context, q models.ConflictQuery) (*models.ConflictResult, error) {
	if err := s.validator.Struct(q); err != nil {
		return nil, appErrors.Validation(err, "invalid conflict query")
	}
	window, err := models.ParseDateRange(q.FromDate, q.ToDate)
	if err != nil {
		return nil, appErrors.Validation(err, err.Error())
	}
	person, err := s.persons.FindByID(ctx, q.PersonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return nil, appErrors.Internal(err, "failed to load person")
	}

	filter := s.overlapFilter(person.Role, q.PersonID, q.CourseID, strPtr(q.BranchID), window, q.ExcludeBatchID)
	conflicts, err := s.batches.FindOverlapping(ctx, nil, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check conflicts")
	}
	if conflicts == nil {
		conflicts = []models.Batch{}
	}
	return &models.ConflictResult{Conflict: len(conflicts) > 0, Scope: s.ScopeFor(person.Role), Conflicts: conflicts}, nil
}

// HasConflict reports whether the proposed booking overlaps an existing one.
func (s *BookingService) HasConflict(ctx context.Context, q models.ConflictQuery) (bool, error) {
	result, err := s.CheckConflicts(ctx, q)
	if err != nil {
		return false, err
	}
	return result.Conflict, nil
}

// Book creates a batch for a person of role. The person row stays locked
// from the conflict scan until commit, so concurrent bookings for the same
// person are serialised.
func (s *BookingService) Book(ctx context.Context, role models.PersonRole, req models.BookBatchRequest, meta AuditMeta) (batch *models.Batch, err error) {
	defer func() { s.record(role, OutcomeBooked, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid booking payload")
	}
	window, err := models.ParseDateRange(req.FromDate, req.ToDate)
	if err != nil {
		return nil, appErrors.Validation(err, err.Error())
	}
	if err := s.requirePerson(ctx, role, req.PersonID); err != nil {
		return nil, err
	}
	if err := s.requireCourse(ctx, req.CourseID); err != nil {
		return nil, err
	}
	if err := s.requireBranch(ctx, req.BranchID); err != nil {
		return nil, err
	}

	batch = &models.Batch{
		BranchID:    strPtr(req.BranchID),
		CourseID:    req.CourseID,
		PersonID:    req.PersonID,
		FromDate:    models.Day(window.From),
		ToDate:      models.Day(window.To),
		Code:        req.Code,
		Name:        req.Name,
		ScheduledBy: strPtr(meta.ActorID),
		Status:      models.DeriveBatchStatus(window.From, window.To, s.now()),
	}

	err = s.inTx(ctx, "book", func(tx *sqlx.Tx) error {
		if _, err := s.lockPersons(ctx, tx, batch.PersonID); err != nil {
			return err
		}
		if err := s.ensureFree(ctx, tx, role, batch, ""); err != nil {
			return err
		}
		if err := s.batches.Create(ctx, tx, batch); err != nil {
			return appErrors.Internal(err, "failed to create batch")
		}
		return s.adjustCounter(ctx, tx, batch.PersonID, 1)
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, models.AuditActionBatchBook, batch, meta)
	return batch, nil
}

// Update edits a batch. The batch row is locked and re-read inside the
// transaction, so the counter transfer and the conflict scan always start
// from the committed owner. The scan runs again only when the person, the
// dates or a scope-relevant reference changed, and always excludes the batch
// itself. Moving a batch to another person transfers one unit of
// total_batches between them; the new person must hold the same role.
func (s *BookingService) Update(ctx context.Context, id string, req models.UpdateBatchRequest, meta AuditMeta) (updated *models.Batch, err error) {
	role := models.PersonRole("")
	defer func() { s.record(role, OutcomeUpdated, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid batch payload")
	}

	var next models.Batch
	err = s.inTx(ctx, "update", func(tx *sqlx.Tx) error {
		current, err := s.lockBatch(ctx, tx, id)
		if err != nil {
			return err
		}
		if next, err = applyBatchUpdate(*current, req); err != nil {
			return err
		}
		next.Status = models.DeriveBatchStatus(next.FromDate, next.ToDate, s.now())

		roles, err := s.lockPersons(ctx, tx, current.PersonID, next.PersonID)
		if err != nil {
			return err
		}
		role = roles[current.PersonID]
		if roles[next.PersonID] != role {
			return appErrors.Clone(appErrors.ErrNotFound, role.Label()+" not found")
		}
		if next.CourseID != current.CourseID {
			if err := s.requireCourse(ctx, next.CourseID); err != nil {
				return err
			}
		}
		if next.BranchID != nil && !sameRef(next.BranchID, current.BranchID) {
			if err := s.requireBranch(ctx, *next.BranchID); err != nil {
				return err
			}
		}

		personChanged := next.PersonID != current.PersonID
		recheck := personChanged ||
			!next.FromDate.Equal(current.FromDate) ||
			!next.ToDate.Equal(current.ToDate)
		switch s.ScopeFor(role) {
		case models.ConflictScopePersonCourse:
			recheck = recheck || next.CourseID != current.CourseID
		case models.ConflictScopePersonCourseBranch:
			recheck = recheck || next.CourseID != current.CourseID || !sameRef(next.BranchID, current.BranchID)
		}
		if recheck {
			if err := s.ensureFree(ctx, tx, role, &next, next.ID); err != nil {
				return err
			}
		}
		if err := s.batches.Update(ctx, tx, &next); err != nil {
			return appErrors.Internal(err, "failed to update batch")
		}
		if !personChanged {
			return nil
		}
		if err := s.adjustCounter(ctx, tx, current.PersonID, -1); err != nil {
			return err
		}
		return s.adjustCounter(ctx, tx, next.PersonID, 1)
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, models.AuditActionBatchUpdate, &next, meta)
	return &next, nil
}

// applyBatchUpdate overlays the request on the stored batch. An empty
// branch_id clears the branch.
func applyBatchUpdate(next models.Batch, req models.UpdateBatchRequest) (models.Batch, error) {
	if req.PersonID != nil {
		next.PersonID = *req.PersonID
	}
	if req.CourseID != nil {
		next.CourseID = *req.CourseID
	}
	if req.BranchID != nil {
		next.BranchID = strPtr(*req.BranchID)
	}
	if req.Code != nil {
		next.Code = *req.Code
	}
	if req.Name != nil {
		next.Name = *req.Name
	}
	from, to := next.FromDate.Format(models.DateLayout), next.ToDate.Format(models.DateLayout)
	if req.FromDate != nil {
		from = *req.FromDate
	}
	if req.ToDate != nil {
		to = *req.ToDate
	}
	window, err := models.ParseDateRange(from, to)
	if err != nil {
		return next, appErrors.Validation(err, err.Error())
	}
	next.FromDate, next.ToDate = models.Day(window.From), models.Day(window.To)
	return next, nil
}

// Delete removes a batch and decrements its person's counter, floored at zero.
func (s *BookingService) Delete(ctx context.Context, id string, meta AuditMeta) (err error) {
	role := models.PersonRole("")
	defer func() { s.record(role, OutcomeDeleted, err) }()

	var existing *models.Batch
	err = s.inTx(ctx, "delete", func(tx *sqlx.Tx) error {
		locked, err := s.lockBatch(ctx, tx, id)
		if err != nil {
			return err
		}
		existing = locked
		roles, err := s.lockPersons(ctx, tx, existing.PersonID)
		if err != nil {
			return err
		}
		role = roles[existing.PersonID]
		deleted, err := s.batches.Delete(ctx, tx, existing.ID, existing.PersonID)
		if err != nil {
			return appErrors.Internal(err, "failed to delete batch")
		}
		if !deleted {
			return appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return s.adjustCounter(ctx, tx, existing.PersonID, -1)
	})
	if err != nil {
		return err
	}

	s.afterWrite(ctx, models.AuditActionBatchDelete, existing, meta)
	return nil
}

// List returns batches with their status refreshed against today.
func (s *BookingService) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, error) {
	batches, err := s.batches.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list batches")
	}
	if batches == nil {
		batches = []models.Batch{}
	}
	s.refreshStatuses(ctx, batches)
	return batches, nil
}

// ListByPerson returns a person's batches, newest first.
func (s *BookingService) ListByPerson(ctx context.Context, role models.PersonRole, personID string) ([]models.Batch, error) {
	if err := s.requirePerson(ctx, role, personID); err != nil {
		return nil, err
	}
	return s.List(ctx, models.BatchFilter{PersonID: personID, Newest: true})
}

// Get returns one batch with its status refreshed.
func (s *BookingService) Get(ctx context.Context, id string) (*models.Batch, error) {
	batch, err := s.loadBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	batches := []models.Batch{*batch}
	s.refreshStatuses(ctx, batches)
	return &batches[0], nil
}

// refreshStatuses derives each status and persists only the ones that changed.
// A failed write is logged; the derived value is still returned.
func (s *BookingService) refreshStatuses(ctx context.Context, batches []models.Batch) {
	today := s.now()
	for i := range batches {
		derived := models.DeriveBatchStatus(batches[i].FromDate, batches[i].ToDate, today)
		if derived == batches[i].Status {
			continue
		}
		if err := s.statuses.PersistStatus(ctx, batches[i], derived); err != nil {
			s.logger.Warn("failed to persist batch status", zap.String("batch_id", batches[i].ID), zap.Error(err))
		}
		batches[i].Status = derived
	}
}

func (s *BookingService) inTx(ctx context.Context, operation string, fn func(tx *sqlx.Tx) error) error {
	start := time.Now()
	defer func() { s.metrics.ObserveTransaction(operation, time.Since(start)) }()
	return runInTx(ctx, s.tx, fn)
}

// lockPersons locks each distinct person row in ID order so two transactions
// touching the same pair cannot deadlock, and returns their roles.
func (s *BookingService) lockPersons(ctx context.Context, tx sqlx.ExtContext, ids ...string) (map[string]models.PersonRole, error) {
	roles := make(map[string]models.PersonRole, len(ids))
	for _, id := range sortedUnique(ids...) {
		role, err := s.persons.Lock(ctx, tx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
			}
			return nil, appErrors.Internal(err, "failed to lock person")
		}
		roles[id] = role
	}
	return roles, nil
}

// lockBatch re-reads a batch under a row lock. Batch locks are always taken
// before person locks.
func (s *BookingService) lockBatch(ctx context.Context, tx sqlx.ExtContext, id string) (*models.Batch, error) {
	batch, err := s.batches.FindForUpdate(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Internal(err, "failed to lock batch")
	}
	return batch, nil
}

func (s *BookingService) ensureFree(ctx context.Context, tx sqlx.ExtContext, role models.PersonRole, batch *models.Batch, excludeID string) error {
	filter := s.overlapFilter(role, batch.PersonID, batch.CourseID, batch.BranchID, batch.Range(), excludeID)
	conflicts, err := s.batches.FindOverlapping(ctx, tx, filter)
	if err != nil {
		return appErrors.Internal(err, "failed to check conflicts")
	}
	if len(conflicts) == 0 {
		return nil
	}
	conflictErr := &models.BatchConflictError{PersonID: batch.PersonID, Existing: conflicts[0]}
	label := role.Label()
	if label == "" {
		label = "person"
	}
	return appErrors.Wrap(conflictErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, fmt.Sprintf("%s already booked in this range", label))
}

func (s *BookingService) adjustCounter(ctx context.Context, tx sqlx.ExtContext, personID string, delta int) error {
	if s.cfg.ComputedCounter {
		return nil
	}
	if err := s.persons.AdjustTotalBatches(ctx, tx, personID, delta); err != nil {
		return appErrors.Internal(err, "failed to update batch counter")
	}
	return nil
}

func (s *BookingService) requirePerson(ctx context.Context, role models.PersonRole, id string) error {
	person, err := s.persons.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, role.Label()+" not found")
		}
		return appErrors.Internal(err, "failed to load "+role.Label())
	}
	if person.Role != role {
		return appErrors.Clone(appErrors.ErrNotFound, role.Label()+" not found")
	}
	return nil
}

func (s *BookingService) requireCourse(ctx context.Context, id string) error {
	if _, err := s.courses.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Internal(err, "failed to load course")
	}
	return nil
}

func (s *BookingService) requireBranch(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := s.branches.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "branch not found")
		}
		return appErrors.Internal(err, "failed to load branch")
	}
	return nil
}

func (s *BookingService) loadBatch(ctx context.Context, id string) (*models.Batch, error) {
	batch, err := s.batches.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Internal(err, "failed to load batch")
	}
	return batch, nil
}

func (s *BookingService) record(role models.PersonRole, success string, err error) {
	outcome := success
	if err != nil {
		var conflict *models.BatchConflictError
		appErr := appErrors.FromError(err)
		switch {
		case errors.As(err, &conflict):
			outcome = OutcomeConflict
		case appErr.Status < 500:
			outcome = OutcomeRejected
		default:
			outcome = OutcomeFailed
		}
	}
	s.metrics.RecordBooking(role, outcome)
}

func (s *BookingService) afterWrite(ctx context.Context, action string, batch *models.Batch, meta AuditMeta) {
	s.summary.Invalidate(ctx)

	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"person_id": batch.PersonID,
		"course_id": batch.CourseID,
		"branch_id": batch.BranchID,
		"from_date": batch.FromDate.Format(models.DateLayout),
		"to_date":   batch.ToDate.Format(models.DateLayout),
	})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     strPtr(meta.ActorID),
		Action:     action,
		Resource:   "batches",
		ResourceID: &batch.ID,
		NewValues:  payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record batch audit log", zap.String("action", action), zap.Error(err))
	}
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
