package ingest

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/beanphv/QBR-Dashboard/internal/platform/db"
)

type uploadRepoPG struct {
	pool *pgxpool.Pool
}

func NewUploadRepo(pool *pgxpool.Pool) UploadRepository {
	return &uploadRepoPG{pool: pool}
}

func (r *uploadRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const uploadColumns = `id, uploaded_by, period_id, quarter, year, filename, status,
	records_processed, created_at, updated_at`

func (r *uploadRepoPG) scan(row pgx.Row) (*UploadRecord, error) {
	var u UploadRecord
	err := row.Scan(&u.ID, &u.UploadedBy, &u.PeriodID, &u.Quarter, &u.Year, &u.Filename, &u.Status,
		&u.RecordsProcessed, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *uploadRepoPG) Create(ctx context.Context, u *UploadRecord) error {
	u.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO data_upload (id, uploaded_by, period_id, quarter, year, filename, status, records_processed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		u.ID, u.UploadedBy, u.PeriodID, u.Quarter, u.Year, u.Filename, u.Status, u.RecordsProcessed,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (r *uploadRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*UploadRecord, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+uploadColumns+` FROM data_upload WHERE id = $1`, id))
}

func (r *uploadRepoPG) List(ctx context.Context, limit, offset int) ([]*UploadRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM data_upload`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+uploadColumns+` FROM data_upload ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*UploadRecord
	for rows.Next() {
		u, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (r *uploadRepoPG) Transition(ctx context.Context, id uuid.UUID, from, to Status, processed int) (*UploadRecord, error) {
	u, err := r.scan(r.conn(ctx).QueryRow(ctx, `
		UPDATE data_upload SET status = $3, records_processed = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+uploadColumns,
		id, from, to, processed))
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidTransition
	}
	return u, err
}
