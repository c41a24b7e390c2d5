package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/beanphv/QBR-Dashboard/internal/platform/auth"
)

type Service struct {
	users UserRepository
}

func NewService(users UserRepository) *Service {
	return &Service{users: users}
}

// Grant creates or reactivates a user with the given role.
func (s *Service) Grant(ctx context.Context, id, email, role string) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidUser)
	}
	if !validRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidUser, role)
	}
	u := &User{ID: id, Email: strings.TrimSpace(email), Role: role, Status: StatusActive}
	if err := s.users.Upsert(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, limit, offset)
}

// UpdateUser applies upd to the user. actorID is the caller; an admin may
// not demote or deactivate themselves.
func (s *Service) UpdateUser(ctx context.Context, actorID, id string, upd Update) (*User, error) {
	if upd.Role == nil && upd.Status == nil {
		return nil, ErrEmptyUpdate
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Role != nil {
		if !validRole(*upd.Role) {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidUser, *upd.Role)
		}
		u.Role = *upd.Role
	}
	if upd.Status != nil {
		if !validStatus(*upd.Status) {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidUser, *upd.Status)
		}
		u.Status = *upd.Status
	}
	if id == actorID && (u.Role != auth.RoleAdmin || !u.Active()) {
		return nil, ErrSelfLockout
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// RolesForUser resolves the stored role for an authenticated subject.
// Unknown subjects report known=false; inactive users resolve to no roles.
func (s *Service) RolesForUser(ctx context.Context, userID string) ([]string, bool, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !u.Active() {
		return []string{}, true, nil
	}
	return []string{u.Role}, true, nil
}
