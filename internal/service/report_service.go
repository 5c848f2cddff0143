package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/training-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/training-scheduler-api/pkg/errors"
	"github.com/noah-isme/training-scheduler-api/pkg/export"
)

// Export formats accepted by ExportWorkload.
const (
	ReportFormatCSV = "csv"
	ReportFormatPDF = "pdf"
)

type workloadRepository interface {
	Workload(ctx context.Context, window models.DateRange, role models.PersonRole) ([]models.WorkloadRow, error)
}

type batchLister interface {
	List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, error)
}

type personFinder interface {
	FindByID(ctx context.Context, id string) (*models.Person, error)
}

type tableRenderer interface {
	Render(table export.Table) ([]byte, error)
}

// ExportFile is a rendered report ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ReportService builds workload reports over booked batches.
type ReportService struct {
	workload  workloadRepository
	batches   batchLister
	persons   personFinder
	csv       tableRenderer
	pdf       tableRenderer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewReportService constructs a ReportService. Nil renderers fall back to
// the default CSV and PDF exporters.
func NewReportService(workload workloadRepository, batches batchLister, persons personFinder, csv, pdf tableRenderer, validate *validator.Validate, logger *zap.Logger) *ReportService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ReportService{
		workload:  workload,
		batches:   batches,
		persons:   persons,
		csv:       csv,
		pdf:       pdf,
		validator: validate,
		logger:    logger,
	}
}

// Workload returns per-person batch and day totals for batches overlapping the window.
func (s *ReportService) Workload(ctx context.Context, req models.WorkloadRequest) (*models.WorkloadReport, error) {
	window, err := s.window(req)
	if err != nil {
		return nil, err
	}
	rows, err := s.workload.Workload(ctx, window, req.Role)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to build workload report")
	}
	if rows == nil {
		rows = []models.WorkloadRow{}
	}
	return &models.WorkloadReport{FromDate: req.FromDate, ToDate: req.ToDate, Rows: rows}, nil
}

// PersonBatches lists a person's batches overlapping the window.
func (s *ReportService) PersonBatches(ctx context.Context, personID string, req models.WorkloadRequest) (*models.PersonBatchesReport, error) {
	window, err := s.window(req)
	if err != nil {
		return nil, err
	}
	return s.personReport(ctx, personID, models.BatchFilter{PersonID: personID, Window: &window})
}

// AllPersonBatches lists every batch of a person, newest first.
func (s *ReportService) AllPersonBatches(ctx context.Context, personID string) (*models.PersonBatchesReport, error) {
	return s.personReport(ctx, personID, models.BatchFilter{PersonID: personID, Newest: true})
}

// ExportWorkload renders the workload report as CSV or PDF.
func (s *ReportService) ExportWorkload(ctx context.Context, req models.WorkloadRequest, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	var renderer tableRenderer
	contentType := ""
	switch format {
	case ReportFormatCSV:
		renderer, contentType = s.csv, "text/csv"
	case ReportFormatPDF:
		renderer, contentType = s.pdf, "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}

	report, err := s.Workload(ctx, req)
	if err != nil {
		return nil, err
	}
	body, err := renderer.Render(workloadTable(report))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render workload report")
	}
	s.logger.Debug("workload exported", zap.String("format", format), zap.Int("rows", len(report.Rows)))
	return &ExportFile{
		Filename:    fmt.Sprintf("workload_%s_%s.%s", report.FromDate, report.ToDate, format),
		ContentType: contentType,
		Body:        body,
	}, nil
}

func (s *ReportService) window(req models.WorkloadRequest) (models.DateRange, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.DateRange{}, appErrors.Validation(err, "invalid report window")
	}
	window, err := models.ParseDateRange(req.FromDate, req.ToDate)
	if err != nil {
		return models.DateRange{}, appErrors.Validation(err, err.Error())
	}
	return window, nil
}

func (s *ReportService) personReport(ctx context.Context, personID string, filter models.BatchFilter) (*models.PersonBatchesReport, error) {
	person, err := s.persons.FindByID(ctx, personID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return nil, appErrors.Internal(err, "failed to load person")
	}
	batches, err := s.batches.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	report := &models.PersonBatchesReport{Person: *person, Batches: batches}
	for _, b := range batches {
		report.TotalBatches++
		report.TotalDays += b.Range().Days()
	}
	return report, nil
}

func workloadTable(report *models.WorkloadReport) export.Table {
	table := export.Table{
		Title:    "Workload Report",
		Subtitle: report.FromDate + " to " + report.ToDate,
		Columns: []export.Column{
			{Key: "name", Title: "Name", Width: 3},
			{Key: "email", Title: "Email", Width: 3},
			{Key: "role", Title: "Role", Width: 2},
			{Key: "batches", Title: "Batches", Width: 1},
			{Key: "days", Title: "Days", Width: 1},
		},
		Rows: make([]map[string]string, 0, len(report.Rows)),
	}
	for _, row := range report.Rows {
		table.Rows = append(table.Rows, map[string]string{
			"name":    row.PersonName,
			"email":   row.Email,
			"role":    string(row.Role),
			"batches": strconv.Itoa(row.TotalBatches),
			"days":    strconv.Itoa(row.TotalDays),
		})
	}
	return table
}
