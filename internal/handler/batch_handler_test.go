package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/training-scheduler-api/internal/models"
	"github.com/noah-isme/training-scheduler-api/internal/service"
	appErrors "github.com/noah-isme/training-scheduler-api/pkg/errors"
)

type bookingServiceMock struct {
	batch     *models.Batch
	batches   []models.Batch
	conflicts *models.ConflictResult
	err       error

	bookedRole models.PersonRole
	meta       service.AuditMeta
	filter     models.BatchFilter
	deletedID  string
}

func (m *bookingServiceMock) Book(_ context.Context, role models.PersonRole, _ models.BookBatchRequest, meta service.AuditMeta) (*models.Batch, error) {
	m.bookedRole, m.meta = role, meta
	return m.batch, m.err
}

func (m *bookingServiceMock) Update(_ context.Context, _ string, _ models.UpdateBatchRequest, meta service.AuditMeta) (*models.Batch, error) {
	m.meta = meta
	return m.batch, m.err
}

func (m *bookingServiceMock) Delete(_ context.Context, id string, _ service.AuditMeta) error {
	m.deletedID = id
	return m.err
}

func (m *bookingServiceMock) List(_ context.Context, filter models.BatchFilter) ([]models.Batch, error) {
	m.filter = filter
	return m.batches, m.err
}

func (m *bookingServiceMock) Get(context.Context, string) (*models.Batch, error) {
	return m.batch, m.err
}

func (m *bookingServiceMock) CheckConflicts(context.Context, models.ConflictQuery) (*models.ConflictResult, error) {
	return m.conflicts, m.err
}

type summaryStub struct {
	totals *models.SummaryTotals
	err    error
}

func (s summaryStub) Totals(context.Context) (*models.SummaryTotals, error) {
	return s.totals, s.err
}

func TestBatchHandlerBookUsesRoleAndCaller(t *testing.T) {
	mock := &bookingServiceMock{batch: &models.Batch{ID: "b1"}}
	h := NewBatchHandler(mock, nil)

	body := mustJSON(t, models.BookBatchRequest{PersonID: "p", CourseID: "c", FromDate: "2024-03-01", ToDate: "2024-03-05", Code: "B1", Name: "Batch"})
	c, w := newGinContext(http.MethodPost, "/inspectors/batches", body)
	asUser(c, "scheduler-1", models.RoleScheduler)

	h.Book(models.PersonRoleInspector)(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.PersonRoleInspector, mock.bookedRole)
	assert.Equal(t, "scheduler-1", mock.meta.ActorID)
	assert.Equal(t, "Batch booked successfully", decode(t, w).Message)
}

func TestBatchHandlerBookConflictCarriesExistingBatch(t *testing.T) {
	existing := models.Batch{ID: "existing-1", PersonID: "p"}
	conflictErr := appErrors.Wrap(&models.BatchConflictError{PersonID: "p", Existing: existing},
		appErrors.ErrConflict.Code, http.StatusConflict, "instructor already booked in this range")
	h := NewBatchHandler(&bookingServiceMock{err: conflictErr}, nil)

	body := mustJSON(t, models.BookBatchRequest{PersonID: "p"})
	c, w := newGinContext(http.MethodPost, "/instructors/batches", body)
	h.Book(models.PersonRoleInstructor)(c)

	require.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w)
	assert.False(t, env.Success)
	assert.Equal(t, "CONFLICT", env.Error.Code)
	conflict, ok := env.Meta["conflict"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "existing-1", conflict["id"])
}

func TestBatchHandlerBookRejectsMalformedBody(t *testing.T) {
	h := NewBatchHandler(&bookingServiceMock{}, nil)
	c, w := newGinContext(http.MethodPost, "/instructors/batches", []byte("{"))
	h.Book(models.PersonRoleInstructor)(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatchHandlerListEmptyIsOKWithTotals(t *testing.T) {
	mock := &bookingServiceMock{batches: []models.Batch{}}
	h := NewBatchHandler(mock, summaryStub{totals: &models.SummaryTotals{Courses: 3}})

	c, w := newGinContext(http.MethodGet, "/batches", nil)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.JSONEq(t, "[]", string(env.Data))
	totals, ok := env.Meta["totals"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 3, totals["courses"])
}

func TestBatchHandlerListSummaryFailureStillLists(t *testing.T) {
	mock := &bookingServiceMock{batches: []models.Batch{{ID: "b1"}}}
	h := NewBatchHandler(mock, summaryStub{err: fmt.Errorf("db down")})

	c, w := newGinContext(http.MethodGet, "/batches", nil)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode(t, w).Meta)
}

func TestBatchHandlerListParsesWindow(t *testing.T) {
	mock := &bookingServiceMock{batches: []models.Batch{}}
	h := NewBatchHandler(mock, nil)

	c, w := newGinContext(http.MethodGet, "/batches?person_id=p1&from=2024-01-01&to=2024-01-31", nil)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "p1", mock.filter.PersonID)
	require.NotNil(t, mock.filter.Window)
	assert.Equal(t, 31, mock.filter.Window.Days())

	c, w = newGinContext(http.MethodGet, "/batches?from=2024-02-01&to=2024-01-01", nil)
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatchHandlerConflicts(t *testing.T) {
	mock := &bookingServiceMock{conflicts: &models.ConflictResult{Conflict: true, Scope: models.ConflictScopePerson, Conflicts: []models.Batch{{ID: "b1"}}}}
	h := NewBatchHandler(mock, nil)

	c, w := newGinContext(http.MethodPost, "/batches/conflicts", mustJSON(t, models.ConflictQuery{PersonID: "p"}))
	h.Conflicts(c)

	require.Equal(t, http.StatusOK, w.Code)
	var result models.ConflictResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &result))
	assert.True(t, result.Conflict)
	assert.Len(t, result.Conflicts, 1)
}

func TestBatchHandlerDeleteNotFound(t *testing.T) {
	mock := &bookingServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "batch not found")}
	h := NewBatchHandler(mock, nil)

	c, w := newGinContext(http.MethodDelete, "/batches/b9", nil)
	c.Params = gin.Params{{Key: "id", Value: "b9"}}
	h.Delete(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "b9", mock.deletedID)
}

func TestBatchHandlerUpdate(t *testing.T) {
	mock := &bookingServiceMock{batch: &models.Batch{ID: "b1", Name: "Renamed"}}
	h := NewBatchHandler(mock, nil)

	name := "Renamed"
	c, w := newGinContext(http.MethodPut, "/batches/b1", mustJSON(t, models.UpdateBatchRequest{Name: &name}))
	c.Params = gin.Params{{Key: "id", Value: "b1"}}
	asUser(c, "admin-1", models.RoleAdmin)
	h.Update(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin-1", mock.meta.ActorID)
}
