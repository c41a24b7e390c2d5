package program

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// -- Mock Repositories --

type mockHospitalRepo struct {
	byID map[uuid.UUID]*Hospital
}

func newMockHospitalRepo() *mockHospitalRepo {
	return &mockHospitalRepo{byID: make(map[uuid.UUID]*Hospital)}
}

func (m *mockHospitalRepo) UpsertByPID(_ context.Context, pid, name string) (*Hospital, error) {
	for _, h := range m.byID {
		if h.PID == pid {
			h.Name = name
			h.UpdatedAt = time.Now()
			return h, nil
		}
	}
	h := &Hospital{ID: uuid.New(), PID: pid, Name: name, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.byID[h.ID] = h
	return h, nil
}

func (m *mockHospitalRepo) GetByID(_ context.Context, id uuid.UUID) (*Hospital, error) {
	h, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return h, nil
}

func (m *mockHospitalRepo) GetByPID(_ context.Context, pid string) (*Hospital, error) {
	for _, h := range m.byID {
		if h.PID == pid {
			return h, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockHospitalRepo) GetByName(_ context.Context, name string) (*Hospital, error) {
	var found []*Hospital
	for _, h := range m.byID {
		if h.Name == name {
			found = append(found, h)
		}
	}
	if len(found) != 1 {
		return nil, ErrNotFound
	}
	return found[0], nil
}

func (m *mockHospitalRepo) sorted() []*Hospital {
	var out []*Hospital
	for _, h := range m.byID {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// metrics is consulted for the EXISTS-style filter.
func (m *mockHospitalRepo) listWith(metrics *mockMetricsRepo, f HospitalFilter, limit, offset int) ([]*Hospital, int, error) {
	var matched []*Hospital
	for _, h := range m.sorted() {
		if f.Search != "" && !strings.Contains(strings.ToLower(h.Name), strings.ToLower(f.Search)) {
			continue
		}
		if f.HasMetricsFilter() && !metrics.hospitalMatches(h.ID, f) {
			continue
		}
		matched = append(matched, h)
	}
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *mockHospitalRepo) List(ctx context.Context, f HospitalFilter, limit, offset int) ([]*Hospital, int, error) {
	return m.listWith(&mockMetricsRepo{}, f, limit, offset)
}

func (m *mockHospitalRepo) ListByIDs(_ context.Context, ids []uuid.UUID) ([]*Hospital, error) {
	var out []*Hospital
	for _, id := range ids {
		if h, ok := m.byID[id]; ok {
			out = append(out, h)
		}
	}
	return out, nil
}

// filteringHospitalRepo binds the hospital mock to the metrics mock so
// List can evaluate metrics filters.
type filteringHospitalRepo struct {
	*mockHospitalRepo
	metrics *mockMetricsRepo
}

func (r *filteringHospitalRepo) List(_ context.Context, f HospitalFilter, limit, offset int) ([]*Hospital, int, error) {
	return r.listWith(r.metrics, f, limit, offset)
}

type mockPharmacyRepo struct {
	byID map[uuid.UUID]*Pharmacy
}

func newMockPharmacyRepo() *mockPharmacyRepo {
	return &mockPharmacyRepo{byID: make(map[uuid.UUID]*Pharmacy)}
}

func (m *mockPharmacyRepo) UpsertByPID(_ context.Context, pid, name string, hospitalID uuid.UUID) (*Pharmacy, error) {
	for _, p := range m.byID {
		if p.PID == pid {
			p.Name = name
			p.HospitalID = hospitalID
			return p, nil
		}
	}
	p := &Pharmacy{ID: uuid.New(), PID: pid, Name: name, HospitalID: hospitalID, CreatedAt: time.Now()}
	m.byID[p.ID] = p
	return p, nil
}

func (m *mockPharmacyRepo) GetByID(_ context.Context, id uuid.UUID) (*Pharmacy, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockPharmacyRepo) GetByPID(_ context.Context, pid string) (*Pharmacy, error) {
	for _, p := range m.byID {
		if p.PID == pid {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockPharmacyRepo) List(_ context.Context, hospitalID *uuid.UUID, limit, offset int) ([]*Pharmacy, int, error) {
	var out []*Pharmacy
	for _, p := range m.byID {
		if hospitalID == nil || p.HospitalID == *hospitalID {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func (m *mockPharmacyRepo) ListByHospitals(_ context.Context, ids []uuid.UUID) ([]*Pharmacy, error) {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*Pharmacy
	for _, p := range m.byID {
		if want[p.HospitalID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPharmacyRepo) ListByIDs(_ context.Context, ids []uuid.UUID) ([]*Pharmacy, error) {
	var out []*Pharmacy
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockPeriodRepo struct {
	periods []*Period
}

func (m *mockPeriodRepo) Ensure(_ context.Context, p *Period) error {
	for _, existing := range m.periods {
		if existing.Quarter == p.Quarter && existing.Year == p.Year {
			p.ID = existing.ID
			return nil
		}
	}
	p.ID = uuid.New()
	cp := *p
	m.periods = append(m.periods, &cp)
	return nil
}

func (m *mockPeriodRepo) List(_ context.Context) ([]*Period, error) {
	return m.periods, nil
}

func (m *mockPeriodRepo) ListByIDs(_ context.Context, ids []uuid.UUID) ([]*Period, error) {
	var out []*Period
	for _, p := range m.periods {
		for _, id := range ids {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

type mockMetricsRepo struct {
	hospitalMetrics []*HospitalMetrics
	hospitalQuals   []*HospitalQualification
	pharmacyQuals   []*PharmacyQualification
	pharmacyMetrics []*PharmacyMetrics
}

func (m *mockMetricsRepo) hospitalMatches(id uuid.UUID, f HospitalFilter) bool {
	for _, hm := range m.hospitalMetrics {
		if hm.HospitalID != id {
			continue
		}
		if f.Quarter != "" && hm.Quarter != f.Quarter {
			continue
		}
		if f.Year != 0 && hm.Year != f.Year {
			continue
		}
		if f.MinSavingsPct != nil && hm.SavingsToSpendPct.LessThan(*f.MinSavingsPct) {
			continue
		}
		if f.MaxSavingsPct != nil && hm.SavingsToSpendPct.GreaterThan(*f.MaxSavingsPct) {
			continue
		}
		return true
	}
	return false
}

func (m *mockMetricsRepo) UpsertHospitalMetrics(_ context.Context, hm *HospitalMetrics) error {
	for i, existing := range m.hospitalMetrics {
		if existing.HospitalID == hm.HospitalID && existing.Period() == hm.Period() {
			hm.ID = existing.ID
			m.hospitalMetrics[i] = hm
			return nil
		}
	}
	hm.ID = uuid.New()
	m.hospitalMetrics = append(m.hospitalMetrics, hm)
	return nil
}

func (m *mockMetricsRepo) UpsertHospitalQualification(_ context.Context, q *HospitalQualification) error {
	q.ID = uuid.New()
	m.hospitalQuals = append(m.hospitalQuals, q)
	return nil
}

func (m *mockMetricsRepo) UpsertPharmacyQualification(_ context.Context, q *PharmacyQualification) error {
	q.ID = uuid.New()
	m.pharmacyQuals = append(m.pharmacyQuals, q)
	return nil
}

func (m *mockMetricsRepo) UpsertPharmacyMetrics(_ context.Context, pm *PharmacyMetrics) error {
	pm.ID = uuid.New()
	m.pharmacyMetrics = append(m.pharmacyMetrics, pm)
	return nil
}

func owned(ids []uuid.UUID, id uuid.UUID) bool {
	if len(ids) == 0 {
		return true
	}
	for _, want := range ids {
		if want == id {
			return true
		}
	}
	return false
}

func inPeriods(periods []PeriodKey, k PeriodKey) bool {
	if len(periods) == 0 {
		return true
	}
	for _, p := range periods {
		if p == k {
			return true
		}
	}
	return false
}

func (m *mockMetricsRepo) ListHospitalMetrics(_ context.Context, q MetricsQuery) ([]*HospitalMetrics, error) {
	var out []*HospitalMetrics
	for _, hm := range m.hospitalMetrics {
		if owned(q.OwnerIDs, hm.HospitalID) && inPeriods(q.Periods, hm.Period()) {
			out = append(out, hm)
		}
	}
	return out, nil
}

func (m *mockMetricsRepo) ListHospitalQualifications(_ context.Context, q MetricsQuery) ([]*HospitalQualification, error) {
	var out []*HospitalQualification
	for _, hq := range m.hospitalQuals {
		if owned(q.OwnerIDs, hq.HospitalID) && inPeriods(q.Periods, PeriodKey{hq.Quarter, hq.Year}) {
			out = append(out, hq)
		}
	}
	return out, nil
}

func (m *mockMetricsRepo) ListPharmacyMetrics(_ context.Context, q MetricsQuery) ([]*PharmacyMetrics, error) {
	var out []*PharmacyMetrics
	for _, pm := range m.pharmacyMetrics {
		if owned(q.OwnerIDs, pm.PharmacyID) && inPeriods(q.Periods, pm.Period()) {
			out = append(out, pm)
		}
	}
	return out, nil
}

func (m *mockMetricsRepo) ListPharmacyQualifications(_ context.Context, q MetricsQuery) ([]*PharmacyQualification, error) {
	var out []*PharmacyQualification
	for _, pq := range m.pharmacyQuals {
		if owned(q.OwnerIDs, pq.PharmacyID) && inPeriods(q.Periods, PeriodKey{pq.Quarter, pq.Year}) {
			out = append(out, pq)
		}
	}
	return out, nil
}

type testRepos struct {
	hospitals  *mockHospitalRepo
	pharmacies *mockPharmacyRepo
	periods    *mockPeriodRepo
	metrics    *mockMetricsRepo
}

func newTestService() (*Service, *testRepos) {
	r := &testRepos{
		hospitals:  newMockHospitalRepo(),
		pharmacies: newMockPharmacyRepo(),
		periods:    &mockPeriodRepo{},
		metrics:    &mockMetricsRepo{},
	}
	hospitals := &filteringHospitalRepo{mockHospitalRepo: r.hospitals, metrics: r.metrics}
	return NewService(hospitals, r.pharmacies, r.periods, r.metrics), r
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// -- Tests --

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		quarter, year string
		want          PeriodKey
		wantErr       bool
	}{
		{"Q1", "2024", PeriodKey{"Q1", 2024}, false},
		{"q3", "2023", PeriodKey{"Q3", 2023}, false},
		{"4", " 2022 ", PeriodKey{"Q4", 2022}, false},
		{" Q2 ", "2024", PeriodKey{"Q2", 2024}, false},
		{"Q5", "2024", PeriodKey{}, true},
		{"Q0", "2024", PeriodKey{}, true},
		{"first", "2024", PeriodKey{}, true},
		{"", "2024", PeriodKey{}, true},
		{"Q1", "", PeriodKey{}, true},
		{"Q1", "24", PeriodKey{}, true},
		{"Q1", "twenty", PeriodKey{}, true},
	}

	for _, tt := range tests {
		got, err := ParsePeriod(tt.quarter, tt.year)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidPeriod) {
				t.Errorf("ParsePeriod(%q, %q): expected ErrInvalidPeriod, got %v", tt.quarter, tt.year, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePeriod(%q, %q): unexpected error %v", tt.quarter, tt.year, err)
			continue
		}
		if got.Key() != tt.want {
			t.Errorf("ParsePeriod(%q, %q) = %+v, want %+v", tt.quarter, tt.year, got.Key(), tt.want)
		}
	}
}

func TestPeriod_Label(t *testing.T) {
	if got := (Period{Quarter: "Q2", Year: 2024}).Label(); got != "Q2 2024" {
		t.Errorf("expected 'Q2 2024', got %q", got)
	}
}

func TestService_RegisterPeriod_Idempotent(t *testing.T) {
	svc, repos := newTestService()
	ctx := context.Background()

	p1 := &Period{Quarter: "Q1", Year: 2024}
	p2 := &Period{Quarter: "Q1", Year: 2024}
	if err := svc.RegisterPeriod(ctx, p1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.RegisterPeriod(ctx, p2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p1.ID != p2.ID {
		t.Errorf("expected same period id, got %s and %s", p1.ID, p2.ID)
	}
	if len(repos.periods.periods) != 1 {
		t.Errorf("expected 1 period row, got %d", len(repos.periods.periods))
	}
}

func TestService_RegisterPeriod_Invalid(t *testing.T) {
	svc, _ := newTestService()
	err := svc.RegisterPeriod(context.Background(), &Period{Quarter: "Q9", Year: 2024})
	if !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestService_UpsertHospital(t *testing.T) {
	svc, repos := newTestService()
	ctx := context.Background()

	h1, err := svc.UpsertHospital(ctx, " P100 ", "GenHosp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h2, err := svc.UpsertHospital(ctx, "P100", "General Hospital")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h1.ID != h2.ID {
		t.Error("expected upsert by PID to reuse the hospital")
	}
	if h2.Name != "General Hospital" {
		t.Errorf("expected rename, got %q", h2.Name)
	}
	if len(repos.hospitals.byID) != 1 {
		t.Errorf("expected 1 hospital, got %d", len(repos.hospitals.byID))
	}
}

func TestService_UpsertHospital_RequiresPID(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.UpsertHospital(context.Background(), "  ", "GenHosp"); err == nil {
		t.Error("expected error for blank PID")
	}
}

func TestService_UpsertPharmacy_RequiresHospital(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.UpsertPharmacy(context.Background(), "RX1", "GenHosp Pharmacy", uuid.Nil); err == nil {
		t.Error("expected error for missing hospital")
	}
}

func TestService_HospitalByName_Ambiguous(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	svc.UpsertHospital(ctx, "P1", "Mercy")
	svc.UpsertHospital(ctx, "P2", "Mercy")

	if _, err := svc.HospitalByName(ctx, "Mercy"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for duplicate names, got %v", err)
	}
	if _, err := svc.HospitalByName(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for blank name, got %v", err)
	}
}

func TestService_ListHospitals(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	gen, _ := svc.UpsertHospital(ctx, "P100", "GenHosp")
	mercy, _ := svc.UpsertHospital(ctx, "P200", "Mercy")
	svc.SaveHospitalMetrics(ctx, &HospitalMetrics{HospitalID: gen.ID, Quarter: "Q1", Year: 2024, SavingsToSpendPct: dec("25")})
	svc.SaveHospitalMetrics(ctx, &HospitalMetrics{HospitalID: gen.ID, Quarter: "Q2", Year: 2024, SavingsToSpendPct: dec("30")})
	svc.SaveHospitalMetrics(ctx, &HospitalMetrics{HospitalID: mercy.ID, Quarter: "Q1", Year: 2024, SavingsToSpendPct: dec("10")})
	rx, _ := svc.UpsertPharmacy(ctx, "RX1", "GenHosp Pharmacy", gen.ID)

	all, total, err := svc.ListHospitals(ctx, HospitalFilter{}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(all) != 2 {
		t.Fatalf("expected 2 hospitals, got %d/%d", len(all), total)
	}
	if all[0].Name != "GenHosp" || len(all[0].Metrics) != 2 {
		t.Errorf("expected GenHosp with 2 metrics rows, got %s with %d", all[0].Name, len(all[0].Metrics))
	}
	if len(all[0].PharmacyIDs) != 1 || all[0].PharmacyIDs[0] != rx.ID {
		t.Errorf("expected pharmacy ids [%s], got %v", rx.ID, all[0].PharmacyIDs)
	}
	if len(all[1].PharmacyIDs) != 0 || all[1].PharmacyIDs == nil {
		t.Errorf("expected empty non-nil pharmacy ids for Mercy, got %v", all[1].PharmacyIDs)
	}

	floor := dec("20")
	filtered, total, err := svc.ListHospitals(ctx, HospitalFilter{Quarter: "Q1", MinSavingsPct: &floor}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || filtered[0].ID != gen.ID {
		t.Fatalf("expected only GenHosp, got %d results", total)
	}
	if len(filtered[0].Metrics) != 1 || filtered[0].Metrics[0].Quarter != "Q1" {
		t.Errorf("expected only Q1 metrics attached, got %d rows", len(filtered[0].Metrics))
	}

	searched, _, _ := svc.ListHospitals(ctx, HospitalFilter{Search: "merc"}, 20, 0)
	if len(searched) != 1 || searched[0].ID != mercy.ID {
		t.Errorf("expected case-insensitive search to find Mercy, got %d", len(searched))
	}
}

func TestService_GetHospital(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	h, _ := svc.UpsertHospital(ctx, "P100", "GenHosp")
	svc.SaveHospitalQualification(ctx, &HospitalQualification{HospitalID: h.ID, Quarter: "Q1", Year: 2024,
		Qualification: Qualification{QualifiedPct: dec("80")}})

	detail, err := svc.GetHospital(ctx, h.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(detail.Qualifications) != 1 || !detail.Qualifications[0].QualifiedPct.Equal(dec("80")) {
		t.Errorf("expected one qualification row at 80, got %+v", detail.Qualifications)
	}
	if detail.Metrics == nil || detail.Pharmacies == nil {
		t.Error("expected empty collections to be non-nil")
	}

	if _, err := svc.GetHospital(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_GetPharmacy(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	h, _ := svc.UpsertHospital(ctx, "P100", "GenHosp")
	p, _ := svc.UpsertPharmacy(ctx, "RX1", "GenHosp Pharmacy", h.ID)
	svc.SavePharmacyMetrics(ctx, &PharmacyMetrics{PharmacyID: p.ID, Quarter: "Q1", Year: 2024, Scripts: 1200})

	detail, err := svc.GetPharmacy(ctx, p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(detail.Metrics) != 1 || detail.Metrics[0].Scripts != 1200 {
		t.Errorf("expected scripts 1200, got %+v", detail.Metrics)
	}
}
