package program

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidPeriod = errors.New("invalid period")
)

// Hospital is a 340B covered entity identified by its program PID.
type Hospital struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PID       string    `db:"pid" json:"pid"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Pharmacy is a contract (retail) pharmacy owned by a hospital.
type Pharmacy struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PID        string    `db:"pid" json:"pid"`
	Name       string    `db:"name" json:"name"`
	HospitalID uuid.UUID `db:"hospital_id" json:"hospital_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Period is a reporting quarter.
type Period struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Quarter   string    `db:"quarter" json:"quarter"`
	Year      int       `db:"year" json:"year"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Label renders the period as "Q1 2024".
func (p Period) Label() string {
	return p.Key().Label()
}

// Key identifies a period independent of its row id.
func (p Period) Key() PeriodKey {
	return PeriodKey{Quarter: p.Quarter, Year: p.Year}
}

// PeriodKey is the scalar quarter/year pair carried by every metrics row.
type PeriodKey struct {
	Quarter string
	Year    int
}

func (k PeriodKey) Label() string {
	return fmt.Sprintf("%s %d", k.Quarter, k.Year)
}

// Before orders keys chronologically.
func (k PeriodKey) Before(o PeriodKey) bool {
	if k.Year != o.Year {
		return k.Year < o.Year
	}
	return k.Quarter < o.Quarter
}

// ParsePeriod maps caller-supplied quarter and year tokens to a Period.
// Quarters are accepted as "Q1", "q1" or "1"; the year must be a positive
// four-digit integer. The returned Period has no ID until it is registered.
func ParsePeriod(quarter, year string) (Period, error) {
	q, err := ParseQuarter(quarter)
	if err != nil {
		return Period{}, err
	}
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil || y < 1000 || y > 9999 {
		return Period{}, fmt.Errorf("%w: year %q", ErrInvalidPeriod, year)
	}
	return Period{Quarter: q, Year: y}, nil
}

// ParseQuarter normalizes "Q1", "q1" or "1" to "Q1".
func ParseQuarter(quarter string) (string, error) {
	q := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(quarter)), "Q")
	n, err := strconv.Atoi(q)
	if err != nil || n < 1 || n > 4 {
		return "", fmt.Errorf("%w: quarter %q", ErrInvalidPeriod, quarter)
	}
	return "Q" + strconv.Itoa(n), nil
}

// Qualification holds the qualification percentage breakdown shared by
// hospitals and pharmacies.
type Qualification struct {
	QualifiedPct    decimal.Decimal `db:"qualified_pct" json:"qualified_pct"`
	InpatientPct    decimal.Decimal `db:"inpatient_pct" json:"inpatient_pct"`
	MedicaidPct     decimal.Decimal `db:"medicaid_pct" json:"medicaid_pct"`
	OrphanPct       decimal.Decimal `db:"orphan_pct" json:"orphan_pct"`
	Non340BDrugPct  decimal.Decimal `db:"non_340b_drug_pct" json:"non_340b_drug_pct"`
	DrugExcludePct  decimal.Decimal `db:"drug_exclude_pct" json:"drug_exclude_pct"`
	DisqualifiedPct decimal.Decimal `db:"disqualified_pct" json:"disqualified_pct"`
}

type HospitalMetrics struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	HospitalID        uuid.UUID       `db:"hospital_id" json:"hospital_id"`
	Quarter           string          `db:"quarter" json:"quarter"`
	Year              int             `db:"year" json:"year"`
	Savings           decimal.Decimal `db:"savings" json:"savings"`
	DrugSpend         decimal.Decimal `db:"drug_spend" json:"drug_spend"`
	SavingsToSpendPct decimal.Decimal `db:"savings_to_spend_pct" json:"savings_to_spend_pct"`
	EligiblePct       decimal.Decimal `db:"eligible_pct" json:"eligible_pct"`
	MedicaidPct       decimal.Decimal `db:"medicaid_pct" json:"medicaid_pct"`
	MacroSavings      decimal.Decimal `db:"macro_savings" json:"macro_savings"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

func (m *HospitalMetrics) Period() PeriodKey { return PeriodKey{Quarter: m.Quarter, Year: m.Year} }

type HospitalQualification struct {
	ID         uuid.UUID `db:"id" json:"id"`
	HospitalID uuid.UUID `db:"hospital_id" json:"hospital_id"`
	Quarter    string    `db:"quarter" json:"quarter"`
	Year       int       `db:"year" json:"year"`
	Qualification
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type PharmacyQualification struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PharmacyID uuid.UUID `db:"pharmacy_id" json:"pharmacy_id"`
	Quarter    string    `db:"quarter" json:"quarter"`
	Year       int       `db:"year" json:"year"`
	Qualification
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PharmacyMetrics holds retail profit figures for one pharmacy and quarter.
type PharmacyMetrics struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	PharmacyID          uuid.UUID       `db:"pharmacy_id" json:"pharmacy_id"`
	Quarter             string          `db:"quarter" json:"quarter"`
	Year                int             `db:"year" json:"year"`
	Scripts             int64           `db:"scripts" json:"scripts"`
	DispensingFee       decimal.Decimal `db:"dispensing_fee" json:"dispensing_fee"`
	CERevenue           decimal.Decimal `db:"ce_revenue" json:"ce_revenue"`
	DrugCost            decimal.Decimal `db:"drug_cost" json:"drug_cost"`
	CurrentProfit       decimal.Decimal `db:"current_profit" json:"current_profit"`
	CurrentProfitMedian decimal.Decimal `db:"current_profit_median" json:"current_profit_median"`
	BrandProfit         decimal.Decimal `db:"brand_profit" json:"brand_profit"`
	BrandProfitAvg      decimal.Decimal `db:"brand_profit_avg" json:"brand_profit_avg"`
	GenericProfit       decimal.Decimal `db:"generic_profit" json:"generic_profit"`
	GenericProfitAvg    decimal.Decimal `db:"generic_profit_avg" json:"generic_profit_avg"`
	EPAdded340BBenefit  decimal.Decimal `db:"ep_added_340b_benefit" json:"ep_added_340b_benefit"`
	EP340BBucketSplit   decimal.Decimal `db:"ep_340b_bucket_split" json:"ep_340b_bucket_split"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

func (m *PharmacyMetrics) Period() PeriodKey { return PeriodKey{Quarter: m.Quarter, Year: m.Year} }

// HospitalFilter narrows hospital listings. Quarter, Year, MinSavingsPct
// and MaxSavingsPct keep hospitals with at least one metrics row matching
// all of them.
type HospitalFilter struct {
	Search        string
	Quarter       string
	Year          int
	MinSavingsPct *decimal.Decimal
	MaxSavingsPct *decimal.Decimal
}

// HasMetricsFilter reports whether any metrics-row condition is set.
func (f HospitalFilter) HasMetricsFilter() bool {
	return f.Quarter != "" || f.Year != 0 || f.MinSavingsPct != nil || f.MaxSavingsPct != nil
}

// MetricsQuery selects metrics rows by owner and period. Empty slices
// mean no restriction.
type MetricsQuery struct {
	OwnerIDs []uuid.UUID
	Periods  []PeriodKey
}

// HospitalSummary is a hospital with its quarterly metrics and pharmacies,
// as served by the hospital listing.
type HospitalSummary struct {
	Hospital
	Metrics     []*HospitalMetrics `json:"metrics"`
	PharmacyIDs []uuid.UUID        `json:"pharmacy_ids"`
}

type HospitalDetail struct {
	Hospital
	Metrics        []*HospitalMetrics       `json:"metrics"`
	Qualifications []*HospitalQualification `json:"qualifications"`
	Pharmacies     []*Pharmacy              `json:"pharmacies"`
}

type PharmacyDetail struct {
	Pharmacy
	Metrics        []*PharmacyMetrics       `json:"metrics"`
	Qualifications []*PharmacyQualification `json:"qualifications"`
}
