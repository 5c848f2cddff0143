package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/training-scheduler-api/internal/models"
	"github.com/noah-isme/training-scheduler-api/pkg/response"
)

type personService interface {
	List(ctx context.Context, role models.PersonRole, filter models.PersonFilter) ([]models.Person, *models.Pagination, error)
	Get(ctx context.Context, role models.PersonRole, id string) (*models.Person, error)
	Create(ctx context.Context, role models.PersonRole, req models.CreatePersonRequest) (*models.Person, error)
	Update(ctx context.Context, role models.PersonRole, id string, req models.UpdatePersonRequest) (*models.Person, error)
	Delete(ctx context.Context, role models.PersonRole, id string) error
}

type availabilityFinder interface {
	FindAvailable(ctx context.Context, role models.PersonRole, req models.AvailabilityRequest) ([]models.Person, error)
}

type personBatchLister interface {
	ListByPerson(ctx context.Context, role models.PersonRole, personID string) ([]models.Batch, error)
}

// PersonHandler serves one person role. The same handler type is mounted
// at /instructors and /inspectors.
type PersonHandler struct {
	role         models.PersonRole
	persons      personService
	availability availabilityFinder
	batches      personBatchLister
	label        string
}

// NewPersonHandler builds a handler bound to role.
func NewPersonHandler(role models.PersonRole, persons personService, availability availabilityFinder, batches personBatchLister) *PersonHandler {
	label := role.Label()
	if label != "" {
		label = strings.ToUpper(label[:1]) + label[1:]
	}
	return &PersonHandler{role: role, persons: persons, availability: availability, batches: batches, label: label}
}

// List godoc
// @Summary List persons of a role
// @Tags Persons
// @Produce json
// @Param course_id query string false "Qualified for course"
// @Param branch_id query string false "Assigned to branch"
// @Param search query string false "Name or email"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /instructors [get]
// @Router /inspectors [get]
func (h *PersonHandler) List(c *gin.Context) {
	filter := models.PersonFilter{
		CourseID: c.Query("course_id"),
		BranchID: c.Query("branch_id"),
		Search:   c.Query("search"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}
	persons, pagination, err := h.persons.List(c.Request.Context(), h.role, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, "", persons, pagination)
}

// Get godoc
// @Summary Get person
// @Tags Persons
// @Produce json
// @Param id path string true "Person ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /instructors/{id} [get]
// @Router /inspectors/{id} [get]
func (h *PersonHandler) Get(c *gin.Context) {
	person, err := h.persons.Get(c.Request.Context(), h.role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "", person)
}

// Create godoc
// @Summary Create person
// @Tags Persons
// @Accept json
// @Produce json
// @Param payload body models.CreatePersonRequest true "Person payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /instructors [post]
// @Router /inspectors [post]
func (h *PersonHandler) Create(c *gin.Context) {
	var req models.CreatePersonRequest
	if !bindJSON(c, &req, "invalid "+h.role.Label()+" payload") {
		return
	}
	person, err := h.persons.Create(c.Request.Context(), h.role, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, h.label+" created successfully", person)
}

// Update godoc
// @Summary Update person
// @Tags Persons
// @Accept json
// @Produce json
// @Param id path string true "Person ID"
// @Param payload body models.UpdatePersonRequest true "Person payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /instructors/{id} [put]
// @Router /inspectors/{id} [put]
func (h *PersonHandler) Update(c *gin.Context) {
	var req models.UpdatePersonRequest
	if !bindJSON(c, &req, "invalid "+h.role.Label()+" payload") {
		return
	}
	person, err := h.persons.Update(c.Request.Context(), h.role, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, h.label+" updated successfully", person)
}

// Delete godoc
// @Summary Delete person
// @Description Rejected with 409 while batches reference the person
// @Tags Persons
// @Produce json
// @Param id path string true "Person ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /instructors/{id} [delete]
// @Router /inspectors/{id} [delete]
func (h *PersonHandler) Delete(c *gin.Context) {
	if err := h.persons.Delete(c.Request.Context(), h.role, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, h.label+" deleted successfully", nil)
}

// Available godoc
// @Summary Find available persons
// @Description Persons qualified for the course with no batch overlapping the window
// @Tags Persons
// @Accept json
// @Produce json
// @Param payload body models.AvailabilityRequest true "Window"
// @Success 200 {object} response.Envelope
// @Router /instructors/available [post]
// @Router /inspectors/available [post]
func (h *PersonHandler) Available(c *gin.Context) {
	var req models.AvailabilityRequest
	if !bindJSON(c, &req, "invalid availability query") {
		return
	}
	persons, err := h.availability.FindAvailable(c.Request.Context(), h.role, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, "", persons, nil, map[string]interface{}{"count": len(persons)})
}

// Batches godoc
// @Summary List a person's batches
// @Tags Persons
// @Produce json
// @Param id path string true "Person ID"
// @Success 200 {object} response.Envelope
// @Router /instructors/{id}/batches [get]
// @Router /inspectors/{id}/batches [get]
func (h *PersonHandler) Batches(c *gin.Context) {
	batches, err := h.batches.ListByPerson(c.Request.Context(), h.role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "", batches)
}
