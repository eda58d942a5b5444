package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/messhall-api/internal/models"
	"github.com/noah-isme/messhall-api/internal/repository"
	appErrors "github.com/noah-isme/messhall-api/pkg/errors"
	"github.com/noah-isme/messhall-api/pkg/export"
	"github.com/noah-isme/messhall-api/pkg/jobs"
	"github.com/noah-isme/messhall-api/pkg/storage"
)

type reportStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
}

type recordLister interface {
	ListForDate(ctx context.Context, date time.Time) ([]models.AttendanceRecord, error)
}

// ReportService builds daily attendance exports. Requests only persist a
// queued job row; rendering runs on the report queue so a slow PDF never
// blocks an admin request. Downloads go through short-lived signed tokens.
type ReportService struct {
	reports  reportStore
	records  recordLister
	students studentReader
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	files    *storage.LocalStorage
	signer   *storage.SignedURLSigner
	queue    enqueuer
	logger   *zap.Logger
}

// NewReportService constructs the service.
func NewReportService(reports reportStore, records recordLister, students studentReader, files *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		reports:  reports,
		records:  records,
		students: students,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		files:    files,
		signer:   signer,
		logger:   logger,
	}
}

// AttachQueue wires the render queue. The queue's handler is HandleRenderJob,
// so it cannot exist before the service does; main attaches it after both are
// built.
func (s *ReportService) AttachQueue(queue enqueuer) {
	s.queue = queue
}

// Request queues a report for one calendar day and returns the job row.
func (s *ReportService) Request(ctx context.Context, date time.Time, format models.ReportFormat) (*models.ReportJob, error) {
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown report format %q", format))
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "report queue not attached")
	}
	job := &models.ReportJob{
		Date:   models.CalendarDate(date),
		Format: format,
		Status: models.ReportStatusQueued,
	}
	if err := s.reports.Create(ctx, job); err != nil {
		return nil, storageError(err, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "report.render", Payload: job.ID}); err != nil {
		s.fail(ctx, job.ID, fmt.Sprintf("enqueue failed: %v", err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue report")
	}
	return job, nil
}

// Status returns the current job row.
func (s *ReportService) Status(ctx context.Context, id string) (*models.ReportJob, error) {
	job, err := s.reports.FindByID(ctx, id)
	if err != nil {
		return nil, storageError(err, "failed to load report job")
	}
	if job == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
	}
	return job, nil
}

// DownloadToken issues a signed token for a finished report.
func (s *ReportService) DownloadToken(ctx context.Context, id string) (string, time.Time, error) {
	job, err := s.Status(ctx, id)
	if err != nil {
		return "", time.Time{}, err
	}
	if job.Status != models.ReportStatusDone || job.FilePath == nil {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrConflict, "report is not ready")
	}
	token, expiresAt, err := s.signer.Generate(job.ID, *job.FilePath)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download")
	}
	return token, expiresAt, nil
}

// OpenDownload validates a signed token and opens the referenced file.
func (s *ReportService) OpenDownload(token string) (*os.File, *models.ReportJob, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid or expired download token")
	}
	job, err := s.Status(context.Background(), jobID)
	if err != nil {
		return nil, nil, err
	}
	file, err := s.files.Open(relPath)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "report file missing")
	}
	return file, job, nil
}

// HandleRenderJob is the queue handler: it loads the job row, renders the
// file, and records the terminal status. Returning an error triggers the
// queue's retry.
func (s *ReportService) HandleRenderJob(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok {
		s.logger.Error("report job with malformed payload", zap.String("job_id", job.ID))
		return nil
	}
	row, err := s.reports.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if row == nil || row.Status == models.ReportStatusDone {
		return nil
	}

	processing := models.ReportStatusProcessing
	if err := s.reports.Update(ctx, id, repository.UpdateReportJobParams{Status: &processing}); err != nil {
		return err
	}

	relPath, err := s.render(ctx, row)
	if err != nil {
		s.fail(ctx, id, err.Error())
		return err
	}

	done := models.ReportStatusDone
	now := time.Now().UTC()
	err = s.reports.Update(ctx, id, repository.UpdateReportJobParams{
		Status:     &done,
		FilePath:   &relPath,
		FinishedAt: &now,
	})
	if err != nil {
		return err
	}
	s.logger.Info("report rendered",
		zap.String("report_id", id),
		zap.String("format", string(row.Format)),
		zap.String("path", relPath))
	return nil
}

func (s *ReportService) render(ctx context.Context, job *models.ReportJob) (string, error) {
	dataset, err := s.dataset(ctx, job.Date)
	if err != nil {
		return "", err
	}

	var payload []byte
	switch job.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, "Mess attendance "+job.Date.Format("2006-01-02"))
	default:
		err = fmt.Errorf("unknown report format %q", job.Format)
	}
	if err != nil {
		return "", err
	}

	relPath := fmt.Sprintf("reports/%s/%s.%s", job.Date.Format("2006-01-02"), job.ID, job.Format)
	return s.files.Save(relPath, payload)
}

// dataset joins the day's records with the active roster so students with no
// record still appear with empty flags.
func (s *ReportService) dataset(ctx context.Context, date time.Time) (export.Dataset, error) {
	records, err := s.records.ListForDate(ctx, date)
	if err != nil {
		return export.Dataset{}, err
	}
	students, err := s.students.ListActiveOn(ctx, date)
	if err != nil {
		return export.Dataset{}, err
	}

	byStudent := make(map[string]models.AttendanceRecord, len(records))
	for _, record := range records {
		byStudent[record.StudentID] = record
	}

	mark := func(flag bool) string {
		if flag {
			return "present"
		}
		return ""
	}

	dataset := export.Dataset{
		Headers: []string{"Student", "Room", "Breakfast", "Lunch", "Dinner", "Scanned At"},
	}
	for _, student := range students {
		record := byStudent[student.ID]
		scanned := ""
		if record.ScannedAt != nil {
			scanned = record.ScannedAt.UTC().Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":    student.FullName,
			"Room":       student.RoomNo,
			"Breakfast":  mark(record.Breakfast),
			"Lunch":      mark(record.Lunch),
			"Dinner":     mark(record.Dinner),
			"Scanned At": scanned,
		})
	}
	return dataset, nil
}

func (s *ReportService) fail(ctx context.Context, id, message string) {
	failed := models.ReportStatusFailed
	now := time.Now().UTC()
	err := s.reports.Update(ctx, id, repository.UpdateReportJobParams{
		Status:       &failed,
		ErrorMessage: &message,
		FinishedAt:   &now,
	})
	if err != nil {
		s.logger.Error("failed to record report failure", zap.String("report_id", id), zap.Error(err))
	}
}
