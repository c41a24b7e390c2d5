package program

import (
	"context"

	"github.com/google/uuid"
)

type HospitalRepository interface {
	// UpsertByPID creates the hospital or renames the existing one.
	UpsertByPID(ctx context.Context, pid, name string) (*Hospital, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error)
	GetByPID(ctx context.Context, pid string) (*Hospital, error)
	// GetByName returns ErrNotFound unless exactly one hospital has name.
	GetByName(ctx context.Context, name string) (*Hospital, error)
	List(ctx context.Context, filter HospitalFilter, limit, offset int) ([]*Hospital, int, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Hospital, error)
}

type PharmacyRepository interface {
	UpsertByPID(ctx context.Context, pid, name string, hospitalID uuid.UUID) (*Pharmacy, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Pharmacy, error)
	GetByPID(ctx context.Context, pid string) (*Pharmacy, error)
	List(ctx context.Context, hospitalID *uuid.UUID, limit, offset int) ([]*Pharmacy, int, error)
	ListByHospitals(ctx context.Context, hospitalIDs []uuid.UUID) ([]*Pharmacy, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Pharmacy, error)
}

type PeriodRepository interface {
	// Ensure registers the period if absent and sets p.ID.
	Ensure(ctx context.Context, p *Period) error
	List(ctx context.Context) ([]*Period, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Period, error)
}

// MetricsRepository persists the four period-scoped tables. Every upsert is
// keyed on (owner, quarter, year) and overwrites existing values.
type MetricsRepository interface {
	UpsertHospitalMetrics(ctx context.Context, m *HospitalMetrics) error
	UpsertHospitalQualification(ctx context.Context, q *HospitalQualification) error
	UpsertPharmacyQualification(ctx context.Context, q *PharmacyQualification) error
	UpsertPharmacyMetrics(ctx context.Context, m *PharmacyMetrics) error

	ListHospitalMetrics(ctx context.Context, q MetricsQuery) ([]*HospitalMetrics, error)
	ListHospitalQualifications(ctx context.Context, q MetricsQuery) ([]*HospitalQualification, error)
	ListPharmacyMetrics(ctx context.Context, q MetricsQuery) ([]*PharmacyMetrics, error)
	ListPharmacyQualifications(ctx context.Context, q MetricsQuery) ([]*PharmacyQualification, error)
}
