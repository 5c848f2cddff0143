package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/training-scheduler-api/internal/models"
	"github.com/noah-isme/training-scheduler-api/internal/service"
	appErrors "github.com/noah-isme/training-scheduler-api/pkg/errors"
	"github.com/noah-isme/training-scheduler-api/pkg/response"
)

type userService interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.User, error)
	Register(ctx context.Context, req models.CreateUserRequest, meta service.AuditMeta) (*models.User, error)
	Update(ctx context.Context, id string, req models.UpdateUserRequest, meta service.AuditMeta) (*models.User, error)
	Delete(ctx context.Context, id string, meta service.AuditMeta) error
}

type passwordChanger interface {
	ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error
}

// UserHandler handles user management endpoints.
type UserHandler struct {
	service   userService
	passwords passwordChanger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc userService, passwords passwordChanger) *UserHandler {
	return &UserHandler{service: svc, passwords: passwords}
}

// Register godoc
// @Summary Register user
// @Description Create a new scheduler or admin account
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body models.CreateUserRequest true "User payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/register [post]
func (h *UserHandler) Register(c *gin.Context) {
	var req models.CreateUserRequest
	if !bindJSON(c, &req, "invalid user payload") {
		return
	}

	user, err := h.service.Register(c.Request.Context(), req, auditMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, "User registered successfully", user)
}

// List godoc
// @Summary List users
// @Description List users with pagination and filtering
// @Tags Users
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param role query string false "Role filter"
// @Param active query bool false "Active filter"
// @Param search query string false "Search term"
// @Param sort_by query string false "Sort by"
// @Param sort_order query string false "Sort order"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	filter := models.UserFilter{
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "page_size", 20),
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if role := c.Query("role"); role != "" {
		r := models.UserRole(role)
		filter.Role = &r
	}
	if active := c.Query("active"); active != "" {
		if val, err := strconv.ParseBool(active); err == nil {
			filter.Active = &val
		}
	}

	users, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, "", users, pagination)
}

// Get godoc
// @Summary Get user
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "", user)
}

// Update godoc
// @Summary Update user
// @Description Update profile fields; passwords are changed via /users/{id}/password
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body models.UpdateUserRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /users/{id} [put]
func (h *UserHandler) Update(c *gin.Context) {
	var req models.UpdateUserRequest
	if !bindJSON(c, &req, "invalid user payload") {
		return
	}

	claims := claimsFromContext(c)
	if claims != nil && claims.Role == models.RoleScheduler && (req.Role != nil || req.Active != nil) {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only admins can change role or status"))
		return
	}

	user, err := h.service.Update(c.Request.Context(), c.Param("id"), req, auditMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "User updated successfully", user)
}

// UpdatePassword godoc
// @Summary Change password
// @Description Change the password of the given user; the old password is required
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body models.ChangePasswordRequest true "Password payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users/{id}/password [put]
func (h *UserHandler) UpdatePassword(c *gin.Context) {
	var req models.ChangePasswordRequest
	if !bindJSON(c, &req, "invalid password payload") {
		return
	}

	if err := h.passwords.ChangePassword(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Password updated successfully", nil)
}

// Delete godoc
// @Summary Delete user
// @Description Soft delete a user by marking it inactive
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), auditMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "User deleted successfully", nil)
}
