package program

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Service owns the program entities: hospitals, pharmacies, periods and
// their period-scoped metrics. Ingestion writes through it and the read
// APIs and exports query through it.
type Service struct {
	hospitals  HospitalRepository
	pharmacies PharmacyRepository
	periods    PeriodRepository
	metrics    MetricsRepository
}

func NewService(hospitals HospitalRepository, pharmacies PharmacyRepository, periods PeriodRepository, metrics MetricsRepository) *Service {
	return &Service{hospitals: hospitals, pharmacies: pharmacies, periods: periods, metrics: metrics}
}

// -- Writes --

func (s *Service) RegisterPeriod(ctx context.Context, p *Period) error {
	if _, err := ParsePeriod(p.Quarter, fmt.Sprint(p.Year)); err != nil {
		return err
	}
	return s.periods.Ensure(ctx, p)
}

func (s *Service) UpsertHospital(ctx context.Context, pid, name string) (*Hospital, error) {
	pid = strings.TrimSpace(pid)
	if pid == "" {
		return nil, fmt.Errorf("hospital pid is required")
	}
	return s.hospitals.UpsertByPID(ctx, pid, strings.TrimSpace(name))
}

func (s *Service) UpsertPharmacy(ctx context.Context, pid, name string, hospitalID uuid.UUID) (*Pharmacy, error) {
	pid = strings.TrimSpace(pid)
	if pid == "" {
		return nil, fmt.Errorf("pharmacy pid is required")
	}
	if hospitalID == uuid.Nil {
		return nil, fmt.Errorf("pharmacy hospital is required")
	}
	return s.pharmacies.UpsertByPID(ctx, pid, name, hospitalID)
}

func (s *Service) SaveHospitalMetrics(ctx context.Context, m *HospitalMetrics) error {
	return s.metrics.UpsertHospitalMetrics(ctx, m)
}

func (s *Service) SaveHospitalQualification(ctx context.Context, q *HospitalQualification) error {
	return s.metrics.UpsertHospitalQualification(ctx, q)
}

func (s *Service) SavePharmacyQualification(ctx context.Context, q *PharmacyQualification) error {
	return s.metrics.UpsertPharmacyQualification(ctx, q)
}

func (s *Service) SavePharmacyMetrics(ctx context.Context, m *PharmacyMetrics) error {
	return s.metrics.UpsertPharmacyMetrics(ctx, m)
}

// -- Lookups --

func (s *Service) HospitalByPID(ctx context.Context, pid string) (*Hospital, error) {
	pid = strings.TrimSpace(pid)
	if pid == "" {
		return nil, ErrNotFound
	}
	return s.hospitals.GetByPID(ctx, pid)
}

func (s *Service) HospitalByName(ctx context.Context, name string) (*Hospital, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNotFound
	}
	return s.hospitals.GetByName(ctx, name)
}

func (s *Service) PharmacyByPID(ctx context.Context, pid string) (*Pharmacy, error) {
	pid = strings.TrimSpace(pid)
	if pid == "" {
		return nil, ErrNotFound
	}
	return s.pharmacies.GetByPID(ctx, pid)
}

func (s *Service) ListPeriods(ctx context.Context) ([]*Period, error) {
	return s.periods.List(ctx)
}

func (s *Service) PeriodsByIDs(ctx context.Context, ids []uuid.UUID) ([]*Period, error) {
	return s.periods.ListByIDs(ctx, ids)
}

func (s *Service) HospitalsByIDs(ctx context.Context, ids []uuid.UUID) ([]*Hospital, error) {
	return s.hospitals.ListByIDs(ctx, ids)
}

func (s *Service) PharmaciesByIDs(ctx context.Context, ids []uuid.UUID) ([]*Pharmacy, error) {
	return s.pharmacies.ListByIDs(ctx, ids)
}

func (s *Service) HospitalMetrics(ctx context.Context, q MetricsQuery) ([]*HospitalMetrics, error) {
	return s.metrics.ListHospitalMetrics(ctx, q)
}

func (s *Service) HospitalQualifications(ctx context.Context, q MetricsQuery) ([]*HospitalQualification, error) {
	return s.metrics.ListHospitalQualifications(ctx, q)
}

func (s *Service) PharmacyMetrics(ctx context.Context, q MetricsQuery) ([]*PharmacyMetrics, error) {
	return s.metrics.ListPharmacyMetrics(ctx, q)
}

func (s *Service) PharmacyQualifications(ctx context.Context, q MetricsQuery) ([]*PharmacyQualification, error) {
	return s.metrics.ListPharmacyQualifications(ctx, q)
}

// -- Read APIs --

// ListHospitals returns hospitals matching f with their metrics and
// pharmacy ids. When f names a quarter or year, only metrics in that
// period are attached.
func (s *Service) ListHospitals(ctx context.Context, f HospitalFilter, limit, offset int) ([]*HospitalSummary, int, error) {
	hospitals, total, err := s.hospitals.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if len(hospitals) == 0 {
		return []*HospitalSummary{}, total, nil
	}

	ids := make([]uuid.UUID, len(hospitals))
	byID := make(map[uuid.UUID]*HospitalSummary, len(hospitals))
	out := make([]*HospitalSummary, len(hospitals))
	for i, h := range hospitals {
		ids[i] = h.ID
		out[i] = &HospitalSummary{Hospital: *h, Metrics: []*HospitalMetrics{}, PharmacyIDs: []uuid.UUID{}}
		byID[h.ID] = out[i]
	}

	metrics, err := s.metrics.ListHospitalMetrics(ctx, MetricsQuery{OwnerIDs: ids})
	if err != nil {
		return nil, 0, err
	}
	for _, m := range metrics {
		if f.Quarter != "" && m.Quarter != f.Quarter {
			continue
		}
		if f.Year != 0 && m.Year != f.Year {
			continue
		}
		if hs := byID[m.HospitalID]; hs != nil {
			hs.Metrics = append(hs.Metrics, m)
		}
	}

	pharmacies, err := s.pharmacies.ListByHospitals(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for _, p := range pharmacies {
		if hs := byID[p.HospitalID]; hs != nil {
			hs.PharmacyIDs = append(hs.PharmacyIDs, p.ID)
		}
	}
	return out, total, nil
}

func (s *Service) GetHospital(ctx context.Context, id uuid.UUID) (*HospitalDetail, error) {
	h, err := s.hospitals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	q := MetricsQuery{OwnerIDs: []uuid.UUID{id}}
	metrics, err := s.metrics.ListHospitalMetrics(ctx, q)
	if err != nil {
		return nil, err
	}
	quals, err := s.metrics.ListHospitalQualifications(ctx, q)
	if err != nil {
		return nil, err
	}
	pharmacies, err := s.pharmacies.ListByHospitals(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	return &HospitalDetail{
		Hospital:       *h,
		Metrics:        nonNil(metrics),
		Qualifications: nonNil(quals),
		Pharmacies:     nonNil(pharmacies),
	}, nil
}

func (s *Service) ListPharmacies(ctx context.Context, hospitalID *uuid.UUID, limit, offset int) ([]*Pharmacy, int, error) {
	out, total, err := s.pharmacies.List(ctx, hospitalID, limit, offset)
	return nonNil(out), total, err
}

func (s *Service) GetPharmacy(ctx context.Context, id uuid.UUID) (*PharmacyDetail, error) {
	p, err := s.pharmacies.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	q := MetricsQuery{OwnerIDs: []uuid.UUID{id}}
	metrics, err := s.metrics.ListPharmacyMetrics(ctx, q)
	if err != nil {
		return nil, err
	}
	quals, err := s.metrics.ListPharmacyQualifications(ctx, q)
	if err != nil {
		return nil, err
	}
	return &PharmacyDetail{Pharmacy: *p, Metrics: nonNil(metrics), Qualifications: nonNil(quals)}, nil
}

// nonNil keeps empty collections rendering as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
