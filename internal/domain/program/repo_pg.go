package program

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/beanphv/QBR-Dashboard/internal/platform/db"
)

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// periodClause renders "(quarter, year) IN ((...), ...)" and appends its
// arguments. An empty set renders nothing.
func periodClause(alias string, periods []PeriodKey, args []interface{}) (string, []interface{}) {
	if len(periods) == 0 {
		return "", args
	}
	tuples := make([]string, 0, len(periods))
	for _, p := range periods {
		args = append(args, p.Quarter, p.Year)
		tuples = append(tuples, fmt.Sprintf("($%d, $%d)", len(args)-1, len(args)))
	}
	return fmt.Sprintf(" AND (%[1]s.quarter, %[1]s.year) IN (%s)", alias, strings.Join(tuples, ", ")), args
}

// -- Hospital Repository --

type hospitalRepoPG struct {
	pool *pgxpool.Pool
}

func NewHospitalRepo(pool *pgxpool.Pool) HospitalRepository {
	return &hospitalRepoPG{pool: pool}
}

func (r *hospitalRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const hospitalColumns = `id, pid, name, created_at, updated_at`

func (r *hospitalRepoPG) scan(row pgx.Row) (*Hospital, error) {
	var h Hospital
	if err := row.Scan(&h.ID, &h.PID, &h.Name, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &h, nil
}

func (r *hospitalRepoPG) UpsertByPID(ctx context.Context, pid, name string) (*Hospital, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO hospital (id, pid, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (pid) DO UPDATE SET name = EXCLUDED.name, updated_at = NOW()
		RETURNING `+hospitalColumns,
		uuid.New(), pid, name))
}

func (r *hospitalRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+hospitalColumns+` FROM hospital WHERE id = $1`, id))
}

func (r *hospitalRepoPG) GetByPID(ctx context.Context, pid string) (*Hospital, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+hospitalColumns+` FROM hospital WHERE pid = $1`, pid))
}

func (r *hospitalRepoPG) GetByName(ctx context.Context, name string) (*Hospital, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+hospitalColumns+` FROM hospital WHERE name = $1 LIMIT 2`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []*Hospital
	for rows.Next() {
		h, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(found) != 1 {
		return nil, ErrNotFound
	}
	return found[0], nil
}

func (r *hospitalRepoPG) List(ctx context.Context, f HospitalFilter, limit, offset int) ([]*Hospital, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}

	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where += fmt.Sprintf(` AND h.name ILIKE $%d`, len(args))
	}
	if f.HasMetricsFilter() {
		sub := ` AND EXISTS (SELECT 1 FROM hospital_metrics m WHERE m.hospital_id = h.id`
		if f.Quarter != "" {
			args = append(args, f.Quarter)
			sub += fmt.Sprintf(` AND m.quarter = $%d`, len(args))
		}
		if f.Year != 0 {
			args = append(args, f.Year)
			sub += fmt.Sprintf(` AND m.year = $%d`, len(args))
		}
		if f.MinSavingsPct != nil {
			args = append(args, *f.MinSavingsPct)
			sub += fmt.Sprintf(` AND m.savings_to_spend_pct >= $%d`, len(args))
		}
		if f.MaxSavingsPct != nil {
			args = append(args, *f.MaxSavingsPct)
			sub += fmt.Sprintf(` AND m.savings_to_spend_pct <= $%d`, len(args))
		}
		where += sub + `)`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM hospital h`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT h.id, h.pid, h.name, h.created_at, h.updated_at FROM hospital h%s ORDER BY h.name, h.pid LIMIT $%d OFFSET $%d`,
			where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Hospital
	for rows.Next() {
		h, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, h)
	}
	return out, total, rows.Err()
}

func (r *hospitalRepoPG) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Hospital, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+hospitalColumns+` FROM hospital WHERE id = ANY($1) ORDER BY name, pid`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Hospital
	for rows.Next() {
		h, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// -- Pharmacy Repository --

type pharmacyRepoPG struct {
	pool *pgxpool.Pool
}

func NewPharmacyRepo(pool *pgxpool.Pool) PharmacyRepository {
	return &pharmacyRepoPG{pool: pool}
}

func (r *pharmacyRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const pharmacyColumns = `id, pid, name, hospital_id, created_at, updated_at`

func (r *pharmacyRepoPG) scan(row pgx.Row) (*Pharmacy, error) {
	var p Pharmacy
	if err := row.Scan(&p.ID, &p.PID, &p.Name, &p.HospitalID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *pharmacyRepoPG) UpsertByPID(ctx context.Context, pid, name string, hospitalID uuid.UUID) (*Pharmacy, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO pharmacy (id, pid, name, hospital_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pid) DO UPDATE SET
			name = EXCLUDED.name, hospital_id = EXCLUDED.hospital_id, updated_at = NOW()
		RETURNING `+pharmacyColumns,
		uuid.New(), pid, name, hospitalID))
}

func (r *pharmacyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Pharmacy, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+pharmacyColumns+` FROM pharmacy WHERE id = $1`, id))
}

func (r *pharmacyRepoPG) GetByPID(ctx context.Context, pid string) (*Pharmacy, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+pharmacyColumns+` FROM pharmacy WHERE pid = $1`, pid))
}

func (r *pharmacyRepoPG) List(ctx context.Context, hospitalID *uuid.UUID, limit, offset int) ([]*Pharmacy, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	if hospitalID != nil {
		args = append(args, *hospitalID)
		where += ` AND hospital_id = $1`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM pharmacy`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT `+pharmacyColumns+` FROM pharmacy%s ORDER BY name, pid LIMIT $%d OFFSET $%d`,
			where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out, err := r.collect(rows)
	return out, total, err
}

func (r *pharmacyRepoPG) ListByHospitals(ctx context.Context, hospitalIDs []uuid.UUID) ([]*Pharmacy, error) {
	if len(hospitalIDs) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+pharmacyColumns+` FROM pharmacy WHERE hospital_id = ANY($1) ORDER BY name, pid`, hospitalIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *pharmacyRepoPG) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Pharmacy, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+pharmacyColumns+` FROM pharmacy WHERE id = ANY($1) ORDER BY name, pid`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *pharmacyRepoPG) collect(rows pgx.Rows) ([]*Pharmacy, error) {
	var out []*Pharmacy
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// -- Period Repository --

type periodRepoPG struct {
	pool *pgxpool.Pool
}

func NewPeriodRepo(pool *pgxpool.Pool) PeriodRepository {
	return &periodRepoPG{pool: pool}
}

func (r *periodRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *periodRepoPG) Ensure(ctx context.Context, p *Period) error {
	// The no-op update makes RETURNING yield the existing row on conflict.
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO period (id, quarter, year)
		VALUES ($1, $2, $3)
		ON CONFLICT (quarter, year) DO UPDATE SET quarter = EXCLUDED.quarter
		RETURNING id, created_at`,
		uuid.New(), p.Quarter, p.Year,
	).Scan(&p.ID, &p.CreatedAt)
}

func (r *periodRepoPG) List(ctx context.Context) ([]*Period, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, quarter, year, created_at FROM period ORDER BY year DESC, quarter DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPeriods(rows)
}

func (r *periodRepoPG) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Period, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, quarter, year, created_at FROM period WHERE id = ANY($1) ORDER BY year, quarter`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPeriods(rows)
}

func collectPeriods(rows pgx.Rows) ([]*Period, error) {
	var out []*Period
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p.ID, &p.Quarter, &p.Year, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// -- Metrics Repository --

type metricsRepoPG struct {
	pool *pgxpool.Pool
}

func NewMetricsRepo(pool *pgxpool.Pool) MetricsRepository {
	return &metricsRepoPG{pool: pool}
}

func (r *metricsRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const qualificationColumns = `qualified_pct, inpatient_pct, medicaid_pct, orphan_pct,
	non_340b_drug_pct, drug_exclude_pct, disqualified_pct`

func qualificationArgs(q *Qualification) []interface{} {
	return []interface{}{
		q.QualifiedPct, q.InpatientPct, q.MedicaidPct, q.OrphanPct,
		q.Non340BDrugPct, q.DrugExcludePct, q.DisqualifiedPct,
	}
}

func qualificationDest(q *Qualification) []interface{} {
	return []interface{}{
		&q.QualifiedPct, &q.InpatientPct, &q.MedicaidPct, &q.OrphanPct,
		&q.Non340BDrugPct, &q.DrugExcludePct, &q.DisqualifiedPct,
	}
}

const qualificationUpdate = `qualified_pct = EXCLUDED.qualified_pct,
	inpatient_pct = EXCLUDED.inpatient_pct,
	medicaid_pct = EXCLUDED.medicaid_pct,
	orphan_pct = EXCLUDED.orphan_pct,
	non_340b_drug_pct = EXCLUDED.non_340b_drug_pct,
	drug_exclude_pct = EXCLUDED.drug_exclude_pct,
	disqualified_pct = EXCLUDED.disqualified_pct,
	updated_at = NOW()`

func (r *metricsRepoPG) UpsertHospitalMetrics(ctx context.Context, m *HospitalMetrics) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO hospital_metrics (
			id, hospital_id, quarter, year,
			savings, drug_spend, savings_to_spend_pct, eligible_pct, medicaid_pct, macro_savings
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (hospital_id, quarter, year) DO UPDATE SET
			savings = EXCLUDED.savings,
			drug_spend = EXCLUDED.drug_spend,
			savings_to_spend_pct = EXCLUDED.savings_to_spend_pct,
			eligible_pct = EXCLUDED.eligible_pct,
			medicaid_pct = EXCLUDED.medicaid_pct,
			macro_savings = EXCLUDED.macro_savings,
			updated_at = NOW()
		RETURNING id, updated_at`,
		uuid.New(), m.HospitalID, m.Quarter, m.Year,
		m.Savings, m.DrugSpend, m.SavingsToSpendPct, m.EligiblePct, m.MedicaidPct, m.MacroSavings,
	).Scan(&m.ID, &m.UpdatedAt)
}

func (r *metricsRepoPG) UpsertHospitalQualification(ctx context.Context, q *HospitalQualification) error {
	args := append([]interface{}{uuid.New(), q.HospitalID, q.Quarter, q.Year}, qualificationArgs(&q.Qualification)...)
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO hospital_qualification (id, hospital_id, quarter, year, `+qualificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (hospital_id, quarter, year) DO UPDATE SET `+qualificationUpdate+`
		RETURNING id, updated_at`, args...,
	).Scan(&q.ID, &q.UpdatedAt)
}

func (r *metricsRepoPG) UpsertPharmacyQualification(ctx context.Context, q *PharmacyQualification) error {
	args := append([]interface{}{uuid.New(), q.PharmacyID, q.Quarter, q.Year}, qualificationArgs(&q.Qualification)...)
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO pharmacy_qualification (id, pharmacy_id, quarter, year, `+qualificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (pharmacy_id, quarter, year) DO UPDATE SET `+qualificationUpdate+`
		RETURNING id, updated_at`, args...,
	).Scan(&q.ID, &q.UpdatedAt)
}

func (r *metricsRepoPG) UpsertPharmacyMetrics(ctx context.Context, m *PharmacyMetrics) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO pharmacy_metrics (
			id, pharmacy_id, quarter, year, scripts,
			dispensing_fee, ce_revenue, drug_cost, current_profit, current_profit_median,
			brand_profit, brand_profit_avg, generic_profit, generic_profit_avg,
			ep_added_340b_benefit, ep_340b_bucket_split
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (pharmacy_id, quarter, year) DO UPDATE SET
			scripts = EXCLUDED.scripts,
			dispensing_fee = EXCLUDED.dispensing_fee,
			ce_revenue = EXCLUDED.ce_revenue,
			drug_cost = EXCLUDED.drug_cost,
			current_profit = EXCLUDED.current_profit,
			current_profit_median = EXCLUDED.current_profit_median,
			brand_profit = EXCLUDED.brand_profit,
			brand_profit_avg = EXCLUDED.brand_profit_avg,
			generic_profit = EXCLUDED.generic_profit,
			generic_profit_avg = EXCLUDED.generic_profit_avg,
			ep_added_340b_benefit = EXCLUDED.ep_added_340b_benefit,
			ep_340b_bucket_split = EXCLUDED.ep_340b_bucket_split,
			updated_at = NOW()
		RETURNING id, updated_at`,
		uuid.New(), m.PharmacyID, m.Quarter, m.Year, m.Scripts,
		m.DispensingFee, m.CERevenue, m.DrugCost, m.CurrentProfit, m.CurrentProfitMedian,
		m.BrandProfit, m.BrandProfitAvg, m.GenericProfit, m.GenericProfitAvg,
		m.EPAdded340BBenefit, m.EP340BBucketSplit,
	).Scan(&m.ID, &m.UpdatedAt)
}

// selectMetrics builds "SELECT cols FROM table t WHERE ..." for a MetricsQuery.
func selectMetrics(cols, table, ownerCol string, q MetricsQuery) (string, []interface{}) {
	sql := `SELECT ` + cols + ` FROM ` + table + ` t WHERE 1=1`
	var args []interface{}
	if len(q.OwnerIDs) > 0 {
		args = append(args, q.OwnerIDs)
		sql += fmt.Sprintf(` AND t.%s = ANY($%d)`, ownerCol, len(args))
	}
	clause, args := periodClause("t", q.Periods, args)
	return sql + clause + ` ORDER BY t.year, t.quarter`, args
}

func (r *metricsRepoPG) ListHospitalMetrics(ctx context.Context, q MetricsQuery) ([]*HospitalMetrics, error) {
	sql, args := selectMetrics(`id, hospital_id, quarter, year, savings, drug_spend,
		savings_to_spend_pct, eligible_pct, medicaid_pct, macro_savings, updated_at`,
		"hospital_metrics", "hospital_id", q)
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*HospitalMetrics
	for rows.Next() {
		var m HospitalMetrics
		if err := rows.Scan(&m.ID, &m.HospitalID, &m.Quarter, &m.Year, &m.Savings, &m.DrugSpend,
			&m.SavingsToSpendPct, &m.EligiblePct, &m.MedicaidPct, &m.MacroSavings, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *metricsRepoPG) ListHospitalQualifications(ctx context.Context, q MetricsQuery) ([]*HospitalQualification, error) {
	sql, args := selectMetrics(`id, hospital_id, quarter, year, `+qualificationColumns+`, updated_at`,
		"hospital_qualification", "hospital_id", q)
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*HospitalQualification
	for rows.Next() {
		var hq HospitalQualification
		dest := append([]interface{}{&hq.ID, &hq.HospitalID, &hq.Quarter, &hq.Year},
			qualificationDest(&hq.Qualification)...)
		if err := rows.Scan(append(dest, &hq.UpdatedAt)...); err != nil {
			return nil, err
		}
		out = append(out, &hq)
	}
	return out, rows.Err()
}

func (r *metricsRepoPG) ListPharmacyMetrics(ctx context.Context, q MetricsQuery) ([]*PharmacyMetrics, error) {
	sql, args := selectMetrics(`id, pharmacy_id, quarter, year, scripts,
		dispensing_fee, ce_revenue, drug_cost, current_profit, current_profit_median,
		brand_profit, brand_profit_avg, generic_profit, generic_profit_avg,
		ep_added_340b_benefit, ep_340b_bucket_split, updated_at`,
		"pharmacy_metrics", "pharmacy_id", q)
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PharmacyMetrics
	for rows.Next() {
		var m PharmacyMetrics
		if err := rows.Scan(&m.ID, &m.PharmacyID, &m.Quarter, &m.Year, &m.Scripts,
			&m.DispensingFee, &m.CERevenue, &m.DrugCost, &m.CurrentProfit, &m.CurrentProfitMedian,
			&m.BrandProfit, &m.BrandProfitAvg, &m.GenericProfit, &m.GenericProfitAvg,
			&m.EPAdded340BBenefit, &m.EP340BBucketSplit, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *metricsRepoPG) ListPharmacyQualifications(ctx context.Context, q MetricsQuery) ([]*PharmacyQualification, error) {
	sql, args := selectMetrics(`id, pharmacy_id, quarter, year, `+qualificationColumns+`, updated_at`,
		"pharmacy_qualification", "pharmacy_id", q)
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PharmacyQualification
	for rows.Next() {
		var pq PharmacyQualification
		dest := append([]interface{}{&pq.ID, &pq.PharmacyID, &pq.Quarter, &pq.Year},
			qualificationDest(&pq.Qualification)...)
		if err := rows.Scan(append(dest, &pq.UpdatedAt)...); err != nil {
			return nil, err
		}
		out = append(out, &pq)
	}
	return out, rows.Err()
}
