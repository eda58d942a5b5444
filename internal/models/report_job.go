package models

import "time"

// ReportFormat selects the rendered file type.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// Valid returns true for supported formats.
func (f ReportFormat) Valid() bool {
	return f == ReportFormatCSV || f == ReportFormatPDF
}

// ReportStatus tracks a report job through the queue.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "queued"
	ReportStatusProcessing ReportStatus = "processing"
	ReportStatusDone       ReportStatus = "done"
	ReportStatusFailed     ReportStatus = "failed"
)

// ReportJob is a queued daily attendance export.
type ReportJob struct {
	ID           string       `db:"id" json:"id"`
	Date         time.Time    `db:"date" json:"date"`
	Format       ReportFormat `db:"format" json:"format"`
	Status       ReportStatus `db:"status" json:"status"`
	FilePath     *string      `db:"file_path" json:"-"`
	ErrorMessage *string      `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time   `db:"finished_at" json:"finished_at,omitempty"`
}
