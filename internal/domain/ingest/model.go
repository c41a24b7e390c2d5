package ingest

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnreadableWorkbook is returned when the uploaded container cannot
	// be opened as a spreadsheet.
	ErrUnreadableWorkbook = errors.New("unreadable workbook")
	ErrInvalidRequest     = errors.New("invalid upload request")
	ErrInvalidTransition  = errors.New("invalid upload status transition")
	ErrNotFound           = errors.New("upload not found")
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusFailed   Status = "failed"
	StatusRejected Status = "rejected"
)

// CanTransition reports whether an upload may move from one status to
// another. Ingestion takes pending to approved or failed; review takes
// approved to rejected.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusApproved || to == StatusFailed
	case StatusApproved:
		return to == StatusRejected
	}
	return false
}

// UploadRecord tracks one ingestion attempt.
type UploadRecord struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	UploadedBy       string     `db:"uploaded_by" json:"uploaded_by"`
	PeriodID         *uuid.UUID `db:"period_id" json:"period_id,omitempty"`
	Quarter          string     `db:"quarter" json:"quarter"`
	Year             int        `db:"year" json:"year"`
	Filename         string     `db:"filename" json:"filename"`
	Status           Status     `db:"status" json:"status"`
	RecordsProcessed int        `db:"records_processed" json:"records_processed"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Result is returned to the uploader once the row loop completes.
type Result struct {
	Success          bool      `json:"success"`
	RecordsProcessed int       `json:"recordsProcessed"`
	UploadID         uuid.UUID `json:"uploadId"`
}
