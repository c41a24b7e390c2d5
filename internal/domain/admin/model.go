package admin

import (
	"errors"
	"time"

	"github.com/beanphv/QBR-Dashboard/internal/platform/auth"
)

var (
	ErrNotFound    = errors.New("user not found")
	ErrInvalidUser = errors.New("invalid user")
	ErrSelfLockout = errors.New("admins cannot remove their own admin access")
	ErrEmptyUpdate = errors.New("nothing to update")
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// User maps to the app_user table. ID is the identity provider subject.
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	Status    Status    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (u *User) Active() bool { return u.Status == StatusActive }

// Update carries a partial change to a user. Nil fields are left as is.
type Update struct {
	Role   *string `json:"role,omitempty" validate:"omitempty,oneof=admin analyst"`
	Status *Status `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
}

func validRole(role string) bool {
	return role == auth.RoleAdmin || role == auth.RoleAnalyst
}

func validStatus(s Status) bool {
	return s == StatusActive || s == StatusInactive
}
