package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/training-scheduler-api/internal/models"
	"github.com/noah-isme/training-scheduler-api/pkg/response"
)

type branchService interface {
	List(ctx context.Context) ([]models.Branch, error)
	Get(ctx context.Context, id string) (*models.Branch, error)
	Create(ctx context.Context, req models.CreateBranchRequest) (*models.Branch, error)
	Update(ctx context.Context, id string, req models.UpdateBranchRequest) (*models.Branch, error)
	Delete(ctx context.Context, id string) error
}

// BranchHandler exposes branch endpoints.
type BranchHandler struct {
	service branchService
}

// NewBranchHandler constructs a branch handler.
func NewBranchHandler(svc branchService) *BranchHandler {
	return &BranchHandler{service: svc}
}

// List godoc
// @Summary List branches
// @Tags Branches
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /branches [get]
func (h *BranchHandler) List(c *gin.Context) {
	branches, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "", branches)
}

// Get godoc
// @Summary Get branch
// @Tags Branches
// @Produce json
// @Param id path string true "Branch ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /branches/{id} [get]
func (h *BranchHandler) Get(c *gin.Context) {
	branch, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "", branch)
}

// Create godoc
// @Summary Create branch
// @Tags Branches
// @Accept json
// @Produce json
// @Param payload body models.CreateBranchRequest true "Branch payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /branches [post]
func (h *BranchHandler) Create(c *gin.Context) {
	var req models.CreateBranchRequest
	if !bindJSON(c, &req, "invalid branch payload") {
		return
	}
	branch, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "Branch created successfully", branch)
}

// Update godoc
// @Summary Update branch
// @Tags Branches
// @Accept json
// @Produce json
// @Param id path string true "Branch ID"
// @Param payload body models.UpdateBranchRequest true "Branch payload"
// @Success 200 {object} response.Envelope
// @Router /branches/{id} [put]
func (h *BranchHandler) Update(c *gin.Context) {
	var req models.UpdateBranchRequest
	if !bindJSON(c, &req, "invalid branch payload") {
		return
	}
	branch, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "Branch updated successfully", branch)
}

// Delete godoc
// @Summary Delete branch
// @Tags Branches
// @Produce json
// @Param id path string true "Branch ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /branches/{id} [delete]
func (h *BranchHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "Branch deleted successfully", nil)
}
