package export

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/beanphv/QBR-Dashboard/internal/domain/program"
)

// Source is the read side of the program service an export draws from.
type Source interface {
	PeriodsByIDs(ctx context.Context, ids []uuid.UUID) ([]*program.Period, error)
	HospitalsByIDs(ctx context.Context, ids []uuid.UUID) ([]*program.Hospital, error)
	PharmaciesByIDs(ctx context.Context, ids []uuid.UUID) ([]*program.Pharmacy, error)
	HospitalMetrics(ctx context.Context, q program.MetricsQuery) ([]*program.HospitalMetrics, error)
	HospitalQualifications(ctx context.Context, q program.MetricsQuery) ([]*program.HospitalQualification, error)
	PharmacyMetrics(ctx context.Context, q program.MetricsQuery) ([]*program.PharmacyMetrics, error)
	PharmacyQualifications(ctx context.Context, q program.MetricsQuery) ([]*program.PharmacyQualification, error)
}

type Service struct {
	src Source
}

func NewService(src Source) *Service {
	return &Service{src: src}
}

var qualificationHeaders = []string{
	"Qualified %", "Inpatient %", "Medicaid %", "Orphan %",
	"Non-340B Drug %", "Drug Exclude %", "Disqualified %",
}

// Build assembles the table for req. It returns ErrInvalidType for an
// unknown type and ErrNoData when nothing matches.
func (s *Service) Build(ctx context.Context, req Request) (*Table, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, req.Type)
	}
	periods, err := s.src.PeriodsByIDs(ctx, req.Periods)
	if err != nil {
		return nil, fmt.Errorf("load periods: %w", err)
	}
	if len(periods) == 0 {
		return nil, ErrNoData
	}
	keys := make([]program.PeriodKey, len(periods))
	for i, p := range periods {
		keys[i] = p.Key()
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	var t *Table
	switch req.Type {
	case TypeHospitalData:
		t, err = s.hospitalData(ctx, keys, req.Hospitals)
	case TypePharmacyData:
		t, err = s.pharmacyData(ctx, keys, req.Pharmacies)
	case TypeSummaryReport:
		t, err = s.summaryReport(ctx, keys, req.Hospitals)
	}
	if err != nil {
		return nil, err
	}
	if len(t.Rows) == 0 {
		return nil, ErrNoData
	}
	return t, nil
}

func (s *Service) hospitalData(ctx context.Context, keys []program.PeriodKey, ids []uuid.UUID) (*Table, error) {
	q := program.MetricsQuery{OwnerIDs: ids, Periods: keys}
	metrics, err := s.src.HospitalMetrics(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load hospital metrics: %w", err)
	}
	quals, err := s.src.HospitalQualifications(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load hospital qualifications: %w", err)
	}
	hospitals, err := s.hospitals(ctx, metrics)
	if err != nil {
		return nil, err
	}

	qualByOwner := make(map[ownerPeriod]program.Qualification, len(quals))
	for _, hq := range quals {
		qualByOwner[ownerPeriod{hq.HospitalID, program.PeriodKey{Quarter: hq.Quarter, Year: hq.Year}}] = hq.Qualification
	}

	known := make([]*program.HospitalMetrics, 0, len(metrics))
	for _, m := range metrics {
		if hospitals[m.HospitalID] != nil {
			known = append(known, m)
		}
	}
	metrics = known
	sort.SliceStable(metrics, func(i, j int) bool {
		a, b := metrics[i], metrics[j]
		if a.Period() != b.Period() {
			return a.Period().Before(b.Period())
		}
		return hospitals[a.HospitalID].Name < hospitals[b.HospitalID].Name
	})

	t := &Table{
		Title: "Hospital Data",
		Headers: append([]string{
			"Hospital", "PID", "Quarter", "Savings", "Drug Spend",
			"Savings to Spend %", "Eligible %", "Medicaid %",
		}, qualificationHeaders...),
	}
	for _, m := range metrics {
		h := hospitals[m.HospitalID]
		row := []interface{}{
			h.Name, h.PID, m.Period().Label(),
			m.Savings, m.DrugSpend, m.SavingsToSpendPct, m.EligiblePct, m.MedicaidPct,
		}
		t.Rows = append(t.Rows, append(row, qualificationCells(qualByOwner[ownerPeriod{h.ID, m.Period()}])...))
	}
	return t, nil
}

func (s *Service) pharmacyData(ctx context.Context, keys []program.PeriodKey, ids []uuid.UUID) (*Table, error) {
	q := program.MetricsQuery{OwnerIDs: ids, Periods: keys}
	metrics, err := s.src.PharmacyMetrics(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load pharmacy metrics: %w", err)
	}
	quals, err := s.src.PharmacyQualifications(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load pharmacy qualifications: %w", err)
	}

	pharmacyIDs := make([]uuid.UUID, 0, len(metrics))
	for _, m := range metrics {
		pharmacyIDs = append(pharmacyIDs, m.PharmacyID)
	}
	pharmacies := make(map[uuid.UUID]*program.Pharmacy)
	if len(pharmacyIDs) > 0 {
		list, err := s.src.PharmaciesByIDs(ctx, dedupe(pharmacyIDs))
		if err != nil {
			return nil, fmt.Errorf("load pharmacies: %w", err)
		}
		for _, p := range list {
			pharmacies[p.ID] = p
		}
	}
	hospitalIDs := make([]uuid.UUID, 0, len(pharmacies))
	for _, p := range pharmacies {
		hospitalIDs = append(hospitalIDs, p.HospitalID)
	}
	hospitals, err := s.hospitalsByID(ctx, hospitalIDs)
	if err != nil {
		return nil, err
	}

	qualByOwner := make(map[ownerPeriod]program.Qualification, len(quals))
	for _, pq := range quals {
		qualByOwner[ownerPeriod{pq.PharmacyID, program.PeriodKey{Quarter: pq.Quarter, Year: pq.Year}}] = pq.Qualification
	}

	known := make([]*program.PharmacyMetrics, 0, len(metrics))
	for _, m := range metrics {
		if pharmacies[m.PharmacyID] != nil {
			known = append(known, m)
		}
	}
	metrics = known
	sort.SliceStable(metrics, func(i, j int) bool {
		a, b := metrics[i], metrics[j]
		if a.Period() != b.Period() {
			return a.Period().Before(b.Period())
		}
		return pharmacies[a.PharmacyID].Name < pharmacies[b.PharmacyID].Name
	})

	t := &Table{
		Title: "Pharmacy Data",
		Headers: append([]string{
			"Pharmacy", "Pharmacy PID", "Hospital", "Hospital PID", "Quarter",
			"Scripts", "Dispensing Fee", "CE Revenue", "Drug Cost",
			"Current Profit", "Current Profit Median", "Brand Profit", "Brand Profit Avg",
			"Generic Profit", "Generic Profit Avg", "EP Added 340B Benefit", "EP 340B Bucket Split",
		}, qualificationHeaders...),
	}
	for _, m := range metrics {
		p := pharmacies[m.PharmacyID]
		var hospitalName, hospitalPID string
		if h := hospitals[p.HospitalID]; h != nil {
			hospitalName, hospitalPID = h.Name, h.PID
		}
		row := []interface{}{
			p.Name, p.PID, hospitalName, hospitalPID, m.Period().Label(),
			m.Scripts, m.DispensingFee, m.CERevenue, m.DrugCost,
			m.CurrentProfit, m.CurrentProfitMedian, m.BrandProfit, m.BrandProfitAvg,
			m.GenericProfit, m.GenericProfitAvg, m.EPAdded340BBenefit, m.EP340BBucketSplit,
		}
		t.Rows = append(t.Rows, append(row, qualificationCells(qualByOwner[ownerPeriod{p.ID, m.Period()}])...))
	}
	return t, nil
}

// summaryReport emits one row per period, including periods without
// hospital metrics.
func (s *Service) summaryReport(ctx context.Context, keys []program.PeriodKey, ids []uuid.UUID) (*Table, error) {
	metrics, err := s.src.HospitalMetrics(ctx, program.MetricsQuery{OwnerIDs: ids, Periods: keys})
	if err != nil {
		return nil, fmt.Errorf("load hospital metrics: %w", err)
	}
	hospitals, err := s.hospitals(ctx, metrics)
	if err != nil {
		return nil, err
	}

	type summary struct {
		count       int64
		savings     decimal.Decimal
		drugSpend   decimal.Decimal
		pctSum      decimal.Decimal
		topHospital string
		topSavings  decimal.Decimal
	}
	byPeriod := make(map[program.PeriodKey]*summary, len(keys))
	for _, k := range keys {
		byPeriod[k] = &summary{}
	}
	for _, m := range metrics {
		sum := byPeriod[m.Period()]
		if sum == nil {
			continue
		}
		sum.count++
		sum.savings = sum.savings.Add(m.Savings)
		sum.drugSpend = sum.drugSpend.Add(m.DrugSpend)
		sum.pctSum = sum.pctSum.Add(m.SavingsToSpendPct)
		if m.Savings.GreaterThan(sum.topSavings) {
			sum.topSavings = m.Savings
			if h := hospitals[m.HospitalID]; h != nil {
				sum.topHospital = h.Name
			}
		}
	}

	t := &Table{
		Title: "Summary Report",
		Headers: []string{
			"Quarter", "Total Hospitals", "Total Savings", "Total Drug Spend",
			"Avg Savings %", "Top Hospital", "Top Savings",
		},
	}
	for _, k := range keys {
		sum := byPeriod[k]
		avg := decimal.Zero
		if sum.count > 0 {
			avg = sum.pctSum.Div(decimal.NewFromInt(sum.count)).Round(2)
		}
		t.Rows = append(t.Rows, []interface{}{
			k.Label(), sum.count, sum.savings, sum.drugSpend, avg, sum.topHospital, sum.topSavings,
		})
	}
	return t, nil
}

type ownerPeriod struct {
	owner  uuid.UUID
	period program.PeriodKey
}

func (s *Service) hospitals(ctx context.Context, metrics []*program.HospitalMetrics) (map[uuid.UUID]*program.Hospital, error) {
	ids := make([]uuid.UUID, 0, len(metrics))
	for _, m := range metrics {
		ids = append(ids, m.HospitalID)
	}
	return s.hospitalsByID(ctx, ids)
}

func (s *Service) hospitalsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*program.Hospital, error) {
	out := make(map[uuid.UUID]*program.Hospital)
	if len(ids) == 0 {
		return out, nil
	}
	list, err := s.src.HospitalsByIDs(ctx, dedupe(ids))
	if err != nil {
		return nil, fmt.Errorf("load hospitals: %w", err)
	}
	for _, h := range list {
		out[h.ID] = h
	}
	return out, nil
}

func qualificationCells(q program.Qualification) []interface{} {
	return []interface{}{
		q.QualifiedPct, q.InpatientPct, q.MedicaidPct, q.OrphanPct,
		q.Non340BDrugPct, q.DrugExcludePct, q.DisqualifiedPct,
	}
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
