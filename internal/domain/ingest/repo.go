package ingest

import (
	"context"

	"github.com/google/uuid"
)

type UploadRepository interface {
	Create(ctx context.Context, u *UploadRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*UploadRecord, error)
	List(ctx context.Context, limit, offset int) ([]*UploadRecord, int, error)
	// Transition moves the upload from one status to another and records
	// processed. It returns ErrInvalidTransition when the upload is no
	// longer in from.
	Transition(ctx context.Context, id uuid.UUID, from, to Status, processed int) (*UploadRecord, error)
}
