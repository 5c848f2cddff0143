package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/training-scheduler-api/internal/models"
	"github.com/noah-isme/training-scheduler-api/internal/service"
	appErrors "github.com/noah-isme/training-scheduler-api/pkg/errors"
	"github.com/noah-isme/training-scheduler-api/pkg/response"
)

type bookingService interface {
	Book(ctx context.Context, role models.PersonRole, req models.BookBatchRequest, meta service.AuditMeta) (*models.Batch, error)
	Update(ctx context.Context, id string, req models.UpdateBatchRequest, meta service.AuditMeta) (*models.Batch, error)
	Delete(ctx context.Context, id string, meta service.AuditMeta) error
	List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, error)
	Get(ctx context.Context, id string) (*models.Batch, error)
	CheckConflicts(ctx context.Context, q models.ConflictQuery) (*models.ConflictResult, error)
}

type summaryProvider interface {
	Totals(ctx context.Context) (*models.SummaryTotals, error)
}

// BatchHandler exposes booking endpoints.
type BatchHandler struct {
	bookings bookingService
	summary  summaryProvider
}

// NewBatchHandler constructs a batch handler. summary may be nil.
func NewBatchHandler(bookings bookingService, summary summaryProvider) *BatchHandler {
	return &BatchHandler{bookings: bookings, summary: summary}
}

// List godoc
// @Summary List batches
// @Description Lists batches with refreshed statuses; meta carries dashboard totals
// @Tags Batches
// @Produce json
// @Param person_id query string false "Person ID"
// @Param from query string false "Window start (YYYY-MM-DD)"
// @Param to query string false "Window end (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /batches [get]
func (h *BatchHandler) List(c *gin.Context) {
	filter := models.BatchFilter{PersonID: c.Query("person_id")}
	from, to := c.Query("from"), c.Query("to")
	if from != "" || to != "" {
		window, err := models.ParseDateRange(from, to)
		if err != nil {
			response.Error(c, appErrors.Validation(err, err.Error()))
			return
		}
		filter.Window = &window
	}

	batches, err := h.bookings.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	var meta map[string]interface{}
	if h.summary != nil {
		if totals, err := h.summary.Totals(c.Request.Context()); err == nil {
			meta = map[string]interface{}{"totals": totals}
		} else {
			_ = c.Error(err)
		}
	}
	response.JSON(c, http.StatusOK, "", batches, nil, meta)
}

// Get godoc
// @Summary Get batch
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /batches/{id} [get]
func (h *BatchHandler) Get(c *gin.Context) {
	batch, err := h.bookings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "", batch)
}

// Conflicts godoc
// @Summary Check a proposed booking for conflicts
// @Tags Batches
// @Accept json
// @Produce json
// @Param payload body models.ConflictQuery true "Proposed booking"
// @Success 200 {object} response.Envelope
// @Router /batches/conflicts [post]
func (h *BatchHandler) Conflicts(c *gin.Context) {
	var q models.ConflictQuery
	if !bindJSON(c, &q, "invalid conflict query") {
		return
	}
	result, err := h.bookings.CheckConflicts(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "", result)
}

// Book returns a handler booking batches for role.
// @Summary Book a batch
// @Tags Batches
// @Accept json
// @Produce json
// @Param payload body models.BookBatchRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /instructors/batches [post]
// @Router /inspectors/batches [post]
func (h *BatchHandler) Book(role models.PersonRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BookBatchRequest
		if !bindJSON(c, &req, "invalid booking payload") {
			return
		}
		batch, err := h.bookings.Book(c.Request.Context(), role, req, auditMeta(c))
		if err != nil {
			writeBatchError(c, err)
			return
		}
		response.Created(c, "Batch booked successfully", batch)
	}
}

// Update godoc
// @Summary Update batch
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param payload body models.UpdateBatchRequest true "Batch payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /batches/{id} [put]
func (h *BatchHandler) Update(c *gin.Context) {
	var req models.UpdateBatchRequest
	if !bindJSON(c, &req, "invalid batch payload") {
		return
	}
	batch, err := h.bookings.Update(c.Request.Context(), c.Param("id"), req, auditMeta(c))
	if err != nil {
		writeBatchError(c, err)
		return
	}
	response.OK(c, "Batch updated successfully", batch)
}

// Delete godoc
// @Summary Delete batch
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /batches/{id} [delete]
func (h *BatchHandler) Delete(c *gin.Context) {
	if err := h.bookings.Delete(c.Request.Context(), c.Param("id"), auditMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "Batch deleted successfully", nil)
}

func writeBatchError(c *gin.Context, err error) {
	var conflict *models.BatchConflictError
	if errors.As(err, &conflict) {
		response.ErrorWithMeta(c, err, map[string]interface{}{"conflict": conflict.Existing})
		return
	}
	response.Error(c, err)
}
