package service

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/training-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/training-scheduler-api/pkg/errors"
)

type bookingFixture struct {
	svc     *BookingService
	batches *stubBatchRepo
	persons *stubPersonRepo
	audit   *stubAuditWriter
	metrics *MetricsService
	mock    sqlmock.Sqlmock
}

func newBookingFixture(t *testing.T, cfg BookingConfig, existing ...models.Batch) *bookingFixture {
	t.Helper()
	tx, mock := newTxProviderMock(t)
	batches := newStubBatchRepo(existing...)
	persons := newStubPersonRepo(
		models.Person{ID: instructorA, Role: models.PersonRoleInstructor, Name: "Alya", TotalBatches: len(existing)},
		models.Person{ID: instructorB, Role: models.PersonRoleInstructor, Name: "Bima"},
		models.Person{ID: inspectorA, Role: models.PersonRoleInspector, Name: "Citra"},
	)
	courses := newStubCourseRepo(models.Course{ID: courseGo, Name: "Go"}, models.Course{ID: courseSQL, Name: "SQL"})
	branches := newStubBranchRepo(models.Branch{ID: branchNorth, Code: "N"}, models.Branch{ID: branchSouth, Code: "S"})
	audit := &stubAuditWriter{}
	metrics := NewMetricsService()

	svc := NewBookingService(batches, persons, courses, branches, audit, tx, nil, metrics, NewValidator(), zap.NewNop(), cfg)
	svc.now = func() time.Time { return day(t, "2024-03-01") }
	t.Cleanup(func() { require.NoError(t, mock.ExpectationsWereMet()) })
	return &bookingFixture{svc: svc, batches: batches, persons: persons, audit: audit, metrics: metrics, mock: mock}
}

func existingBatch(t *testing.T, id, personID, courseID, from, to string) models.Batch {
	return models.Batch{
		ID:       id,
		PersonID: personID,
		CourseID: courseID,
		FromDate: day(t, from),
		ToDate:   day(t, to),
		Code:     id,
		Name:     id,
		Status:   models.BatchStatusUpcoming,
	}
}

func bookRequest(personID, courseID, from, to string) models.BookBatchRequest {
	return models.BookBatchRequest{PersonID: personID, CourseID: courseID, FromDate: from, ToDate: to, Code: "GO-01", Name: "Go basics"}
}

func TestBookRejectsTouchingBoundary(t *testing.T) {
	f := newBookingFixture(t, BookingConfig{}, existingBatch(t, "b1", instructorA, courseGo, "2024-03-10", "2024-03-15"))
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Book(context.Background(), models.PersonRoleInstructor, bookRequest(instructorA, courseGo, "2024-03-15", "2024-03-20"), AuditMeta{ActorID: "u1"})
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "instructor already booked in this range", appErr.Message)
	var conflict *models.BatchConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "b1", conflict.Existing.ID)

	assert.Len(t, f.batches.batches, 1)
	assert.Equal(t, 1, f.persons.persons[instructorA].TotalBatches)
	assert.Empty(t, f.audit.logs)
	assert.Equal(t, uint64(1), f.metrics.Snapshot().ConflictsTotal)
}

func TestBookSucceedsWhenRangesDoNotTouch(t *testing.T) {
	f := newBookingFixture(t, BookingConfig{}, existingBatch(t, "b1", instructorA, courseGo, "2024-03-10", "2024-03-15"))
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	batch, err := f.svc.Book(context.Background(), models.PersonRoleInstructor, bookRequest(instructorA, courseGo, "2024-03-16", "2024-03-20"), AuditMeta{ActorID: "u1"})
	require.NoError(t, err)
	assert.NotEmpty(t, batch.ID)
	assert.Equal(t, models.BatchStatusUpcoming, batch.Status)
	require.NotNil(t, batch.ScheduledBy)
	assert.Equal(t, "u1", *batch.ScheduledBy)

	assert.Equal(t, []string{instructorA}, f.persons.locked)
	assert.Equal(t, 2, f.persons.persons[instructorA].TotalBatches)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionBatchBook, f.audit.logs[0].Action)
	assert.Equal(t, uint64(1), f.metrics.Snapshot().BookingsTotal)
}

func TestBookOtherPersonIsIndependent(t *testing.T) {
	f := newBookingFixture(t, BookingConfig{}, existingBatch(t, "b1", instructorA, courseGo, "2024-03-10", "2024-03-15"))
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	_, err := f.svc.Book(context.Background(), models.PersonRoleInstructor, bookRequest(instructorB, courseGo, "2024-03-10", "2024-03-15"), AuditMeta{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.persons.persons[instructorB].TotalBatches)
}

func TestBookCourseScopeIgnoresOtherCourses(t *testing.T) {
	cfg := BookingConfig{InstructorScope: models.ConflictScopePersonCourse}
	f := newBookingFixture(t, cfg, existingBatch(t, "b1", instructorA, courseSQL, "2024-03-10", "2024-03-15"))
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	_, err := f.svc.Book(context.Background(), models.PersonRoleInstructor, bookRequest(instructorA, courseGo, "2024-03-12", "2024-03-13"), AuditMeta{})
	require.NoError(t, err)
}

func TestBookRejectsRoleMismatch(t *testing.T) {
	f := newBookingFixture(t, BookingConfig{})

	_, err := f.svc.Book(context.Background(), models.PersonRoleInstructor, bookRequest(inspectorA, courseGo, "2024-03-10", "2024-03-12"), AuditMeta{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Equal(t, "instructor not found", appErr.Message)
}

func TestBookValidatesDates(t *testing.T) {
	f := newBookingFixture(t, BookingConfig{})

	_, err := f.svc.Book(context.Background(), models.PersonRoleInstructor, bookRequest(instructorA, courseGo, "2024-03-12", "2024-03-10"), AuditMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Book(context.Background(), models.PersonRoleInstructor, bookRequest(instructorA, courseGo, "12/03/2024", "2024-03-10"), AuditMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Zero(t, f.metrics.Snapshot().BookingsTotal)
}

func TestBookUnknownBranch(t *testing.T) {
	f := newBookingFixture(t, BookingConfig{})
	req := bookRequest(instructorA, courseGo, "2024-03-10", "2024-03-12")
	req.BranchID = "88888888-8888-4888-8888-888888888888"

	_, err := f.svc.Book(context.Background(), models.PersonRoleInstructor, req, AuditMeta{})
	require.Error(t, err)
	assert.Equal(t, "branch not found", appErrors.FromError(err).Message)
}

func TestBookComputedCounterSkipsAdjust(t *testing.T) {
	f := newBookingFixture(t, BookingConfig{ComputedCounter: true})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	_, err := f.svc.Book(context.Background(), models.PersonRoleInstructor, bookRequest(instructorB, courseGo, "2024-03-10", "2024-03-12"), AuditMeta{})
	require.NoError(t, err)
	assert.Empty(t, f.persons.deltas)
}

func TestUpdateExcludesItself(t *testing.T) {
	f := newBookingFixture(t, BookingConfig{}, existingBatch(t, "b1", instructorA, courseGo, "2024-03-10", "2024-03-15"))
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	to := "2024-03-17"

	updated, err := f.svc.Update(context.Background(), "b1", models.UpdateBatchRequest{ToDate: &to}, AuditMeta{})
	require.NoError(t, err)
	assert.Equal(t, day(t, "2024-03-17"), updated.ToDate)
	assert.Empty(t, f.persons.deltas)
}

func TestUpdateRejectsOverlapWithAnotherBatch(t *testing.T) {
	f := newBookingFixture(t, BookingConfig{},
		existingBatch(t, "b1", instructorA, courseGo, "2024-03-10", "2024-03-15"),
		existingBatch(t, "b2", instructorA, courseGo, "2024-03-20", "2024-03-25"),
	)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	to := "2024-03-20"

	_, err := f.svc.Update(context.Background(), "b1", models.UpdateBatchRequest{ToDate: &to}, AuditMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Equal(t, day(t, "2024-03-15"), f.batches.batches["b1"].ToDate)
}

func TestUpdateFieldEditSkipsConflictCheck(t *testing.T) {
	f := newBookingFixture(t, BookingConfig{}, existingBatch(t, "b1", instructorA, courseGo, "2024-03-10", "2024-03-15"))
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	name := "Renamed"

	updated, err := f.svc.Update(context.Background(), "b1", models.UpdateBatchRequest{Name: &name}, AuditMeta{})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Empty(t, f.persons.deltas)
}

func TestUpdateTransfersCounterBetweenPersons(t *testing.T) {
	f := newBookingFixture(t, BookingConfig{}, existingBatch(t, "b1", instructorB, courseGo, "2024-03-10", "2024-03-15"))
	f.persons.persons[instructorA].TotalBatches = 0
	f.persons.persons[instructorB].TotalBatches = 1
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	target := instructorA

	updated, err := f.svc.Update(context.Background(), "b1", models.UpdateBatchRequest{PersonID: &target}, AuditMeta{})
	require.NoError(t, err)
	assert.Equal(t, instructorA, updated.PersonID)
	assert.Equal(t, []string{instructorA, instructorB}, f.persons.locked)
	assert.Equal(t, 1, f.persons.persons[instructorA].TotalBatches)
	assert.Equal(t, 0, f.persons.persons[instructorB].TotalBatches)
}

func TestUpdateMovesFromLockedOwnerNotStaleRead(t *testing.T) {
	const instructorC = "88888888-8888-4888-8888-888888888888"
	f := newBookingFixture(t, BookingConfig{}, existingBatch(t, "b1", instructorA, courseGo, "2024-03-10", "2024-03-15"))
	f.persons.persons[instructorC] = &models.Person{ID: instructorC, Role: models.PersonRoleInstructor, Name: "Dewi"}
	f.persons.persons[instructorA].TotalBatches = 1
	f.persons.persons[instructorB].TotalBatches = 0
	// A concurrent move from B to A has committed; unlocked reads still see B.
	f.batches.stale = map[string]models.Batch{"b1": existingBatch(t, "b1", instructorB, courseGo, "2024-03-10", "2024-03-15")}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	target := instructorC

	updated, err := f.svc.Update(context.Background(), "b1", models.UpdateBatchRequest{PersonID: &target}, AuditMeta{})
	require.NoError(t, err)
	assert.Equal(t, instructorC, updated.PersonID)
	assert.Equal(t, []string{instructorA, instructorC}, f.persons.locked)
	assert.Equal(t, 0, f.persons.persons[instructorA].TotalBatches)
	assert.Equal(t, 0, f.persons.persons[instructorB].TotalBatches)
	assert.Equal(t, 1, f.persons.persons[instructorC].TotalBatches)
	assert.Empty(t, f.persons.deltas[instructorB])
}

func TestUpdateRejectsMoveToOtherRole(t *testing.T) {
	f := newBookingFixture(t, BookingConfig{}, existingBatch(t, "b1", instructorA, courseGo, "2024-03-10", "2024-03-15"))
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	target := inspectorA

	_, err := f.svc.Update(context.Background(), "b1", models.UpdateBatchRequest{PersonID: &target}, AuditMeta{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Equal(t, "instructor not found", appErr.Message)
	assert.Equal(t, instructorA, f.batches.batches["b1"].PersonID)
	assert.Empty(t, f.persons.deltas)
}

func TestUpdateEmptyBranchClearsIt(t *testing.T) {
	existing := existingBatch(t, "b1", instructorA, courseGo, "2024-03-10", "2024-03-15")
	existing.BranchID = strPtr(branchNorth)
	f := newBookingFixture(t, BookingConfig{}, existing)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	empty := ""

	updated, err := f.svc.Update(context.Background(), "b1", models.UpdateBatchRequest{BranchID: &empty}, AuditMeta{})
	require.NoError(t, err)
	assert.Nil(t, updated.BranchID)
	assert.Nil(t, f.batches.batches["b1"].BranchID)
}

func TestDeleteDecrementsCounter(t *testing.T) {
	f := newBookingFixture(t, BookingConfig{}, existingBatch(t, "b1", instructorA, courseGo, "2024-03-10", "2024-03-15"))
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	require.NoError(t, f.svc.Delete(context.Background(), "b1", AuditMeta{}))
	assert.Empty(t, f.batches.batches)
	assert.Equal(t, []int{-1}, f.persons.deltas[instructorA])
	assert.Equal(t, 0, f.persons.persons[instructorA].TotalBatches)
}

func TestDeleteCounterNeverNegative(t *testing.T) {
	f := newBookingFixture(t, BookingConfig{}, existingBatch(t, "b1", instructorA, courseGo, "2024-03-10", "2024-03-15"))
	f.persons.persons[instructorA].TotalBatches = 0
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	require.NoError(t, f.svc.Delete(context.Background(), "b1", AuditMeta{}))
	assert.Equal(t, 0, f.persons.persons[instructorA].TotalBatches)
}

func TestDeleteMissingBatch(t *testing.T) {
	f := newBookingFixture(t, BookingConfig{})
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	err := f.svc.Delete(context.Background(), "nope", AuditMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCheckConflictsListsOverlaps(t *testing.T) {
	const batchID = "99999999-9999-4999-8999-999999999999"
	f := newBookingFixture(t, BookingConfig{}, existingBatch(t, batchID, instructorA, courseGo, "2024-03-10", "2024-03-15"))

	result, err := f.svc.CheckConflicts(context.Background(), models.ConflictQuery{PersonID: instructorA, FromDate: "2024-03-01", ToDate: "2024-03-10"})
	require.NoError(t, err)
	assert.True(t, result.Conflict)
	assert.Equal(t, models.ConflictScopePerson, result.Scope)
	require.Len(t, result.Conflicts, 1)

	free, err := f.svc.HasConflict(context.Background(), models.ConflictQuery{PersonID: instructorA, FromDate: "2024-03-10", ToDate: "2024-03-15", ExcludeBatchID: batchID})
	require.NoError(t, err)
	assert.False(t, free)
}

func TestListPersistsOnlyChangedStatuses(t *testing.T) {
	stale := existingBatch(t, "b1", instructorA, courseGo, "2024-02-01", "2024-02-05")
	current := existingBatch(t, "b2", instructorA, courseGo, "2024-03-10", "2024-03-15")
	f := newBookingFixture(t, BookingConfig{}, stale, current)

	batches, err := f.svc.List(context.Background(), models.BatchFilter{})
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, models.BatchStatusCompleted, batches[0].Status)
	assert.Equal(t, models.BatchStatusUpcoming, batches[1].Status)
	assert.Equal(t, map[string]models.BatchStatus{"b1": models.BatchStatusCompleted}, f.batches.statusUpdates)
}

func TestListEmptyIsNotAnError(t *testing.T) {
	f := newBookingFixture(t, BookingConfig{})

	batches, err := f.svc.List(context.Background(), models.BatchFilter{})
	require.NoError(t, err)
	assert.NotNil(t, batches)
	assert.Empty(t, batches)
}

func TestListByPersonNewestFirst(t *testing.T) {
	f := newBookingFixture(t, BookingConfig{},
		existingBatch(t, "b1", instructorA, courseGo, "2024-03-10", "2024-03-15"),
		existingBatch(t, "b2", instructorA, courseGo, "2024-04-10", "2024-04-15"),
	)

	batches, err := f.svc.ListByPerson(context.Background(), models.PersonRoleInstructor, instructorA)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "b2", batches[0].ID)

	_, err = f.svc.ListByPerson(context.Background(), models.PersonRoleInspector, instructorA)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestScopeForFallsBackToPerson(t *testing.T) {
	f := newBookingFixture(t, BookingConfig{InstructorScope: "BOGUS", InspectorScope: models.ConflictScopePersonCourseBranch})
	assert.Equal(t, models.ConflictScopePerson, f.svc.ScopeFor(models.PersonRoleInstructor))
	assert.Equal(t, models.ConflictScopePersonCourseBranch, f.svc.ScopeFor(models.PersonRoleInspector))
}
