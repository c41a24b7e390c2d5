package admin

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/beanphv/QBR-Dashboard/internal/platform/db"
)

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const userColumns = `id, email, role, status, created_at, updated_at`

func (r *userRepoPG) scan(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepoPG) Upsert(ctx context.Context, u *User) error {
	saved, err := r.scan(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO app_user (id, email, role, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email, role = EXCLUDED.role, status = EXCLUDED.status, updated_at = NOW()
		RETURNING `+userColumns,
		u.ID, u.Email, u.Role, u.Status))
	if err != nil {
		return err
	}
	*u = *saved
	return nil
}

func (r *userRepoPG) GetByID(ctx context.Context, id string) (*User, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM app_user WHERE id = $1`, id))
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	saved, err := r.scan(r.conn(ctx).QueryRow(ctx, `
		UPDATE app_user SET role = $2, status = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns,
		u.ID, u.Role, u.Status))
	if err != nil {
		return err
	}
	*u = *saved
	return nil
}

func (r *userRepoPG) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM app_user`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+userColumns+` FROM app_user ORDER BY email, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}
