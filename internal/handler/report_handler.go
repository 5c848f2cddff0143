package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/training-scheduler-api/internal/models"
	"github.com/noah-isme/training-scheduler-api/internal/service"
	"github.com/noah-isme/training-scheduler-api/pkg/response"
)

type reportService interface {
	Workload(ctx context.Context, req models.WorkloadRequest) (*models.WorkloadReport, error)
	PersonBatches(ctx context.Context, personID string, req models.WorkloadRequest) (*models.PersonBatchesReport, error)
	AllPersonBatches(ctx context.Context, personID string) (*models.PersonBatchesReport, error)
	ExportWorkload(ctx context.Context, req models.WorkloadRequest, format string) (*service.ExportFile, error)
}

// ReportHandler exposes workload reporting endpoints.
type ReportHandler struct {
	reports reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(reports reportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Workload godoc
// @Summary Workload per person
// @Description Batch count and booked days per person in a window
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body models.WorkloadRequest true "Window"
// @Success 200 {object} response.Envelope
// @Router /reports/workload [post]
func (h *ReportHandler) Workload(c *gin.Context) {
	var req models.WorkloadRequest
	if !bindJSON(c, &req, "invalid report window") {
		return
	}
	report, err := h.reports.Workload(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "", report)
}

// PersonBatches godoc
// @Summary A person's batches in a window
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Person ID"
// @Param payload body models.WorkloadRequest true "Window"
// @Success 200 {object} response.Envelope
// @Router /reports/persons/{id}/batches [post]
func (h *ReportHandler) PersonBatches(c *gin.Context) {
	var req models.WorkloadRequest
	if !bindJSON(c, &req, "invalid report window") {
		return
	}
	report, err := h.reports.PersonBatches(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "", report)
}

// AllPersonBatches godoc
// @Summary All of a person's batches, newest first
// @Tags Reports
// @Produce json
// @Param id path string true "Person ID"
// @Success 200 {object} response.Envelope
// @Router /reports/persons/{id}/batches [get]
func (h *ReportHandler) AllPersonBatches(c *gin.Context) {
	report, err := h.reports.AllPersonBatches(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "", report)
}

// ExportWorkload godoc
// @Summary Export workload report
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param from query string true "Window start (YYYY-MM-DD)"
// @Param to query string true "Window end (YYYY-MM-DD)"
// @Param role query string false "INSTRUCTOR or INSPECTOR"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /reports/workload/export [get]
func (h *ReportHandler) ExportWorkload(c *gin.Context) {
	req := models.WorkloadRequest{
		FromDate: c.Query("from"),
		ToDate:   c.Query("to"),
		Role:     models.PersonRole(c.Query("role")),
	}
	file, err := h.reports.ExportWorkload(c.Request.Context(), req, c.DefaultQuery("format", service.ReportFormatCSV))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
