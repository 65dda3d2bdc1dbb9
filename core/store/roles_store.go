package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

const (
	RoleSuperAdmin  = "super_admin"
	RoleParticipant = "participant"
	RoleVolunteer   = "volunteer"
	RoleJudge       = "judge"
)

func ValidRole(role string) bool {
	switch role {
	case RoleSuperAdmin, RoleParticipant, RoleVolunteer, RoleJudge:
		return true
	}
	return false
}

type RolesStore interface {
	// RoleFor returns the user's assignment or "" when none exists.
	RoleFor(ctx context.Context, userID string) (string, error)
	SetRole(ctx context.Context, userID, role string) error
	CountByRole(ctx context.Context, role string) (int, error)
}

type rolesStore struct {
	db *sql.DB
	q  func(string) string
}

func NewRolesStore(db *sql.DB) RolesStore {
	return &rolesStore{db: db, q: Rebinder(db)}
}

func (s *rolesStore) RoleFor(ctx context.Context, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT role FROM user_roles WHERE user_id = ?`), userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

func (s *rolesStore) SetRole(ctx context.Context, userID, role string) error {
	role = strings.TrimSpace(role)
	if !ValidRole(role) {
		return errors.New("unknown role")
	}
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE user_roles SET role = ? WHERE user_id = ?`), role, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		s.q(`INSERT INTO user_roles (user_id, role) VALUES (?, ?)`), userID, role)
	return err
}

func (s *rolesStore) CountByRole(ctx context.Context, role string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT COUNT(*) FROM user_roles WHERE role = ?`), role).Scan(&n)
	return n, err
}
