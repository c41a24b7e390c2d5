package admin

import "context"

type UserRepository interface {
	// Upsert inserts the user or replaces email, role and status of an
	// existing one.
	Upsert(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	Update(ctx context.Context, u *User) error
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
}
