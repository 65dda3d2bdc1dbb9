package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"hackhub/core/utils"
)

var ErrNotFound = errors.New("not found")

type UserProfile struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Email               string    `json:"email"`
	TeamID              *string   `json:"team_id,omitempty"`
	Phone               string    `json:"phone,omitempty"`
	TShirtSize          string    `json:"tshirt_size,omitempty"`
	DietaryRestrictions string    `json:"dietary_restrictions,omitempty"`
	IsInsideVenue       bool      `json:"is_inside_venue"`
	CreatedAt           time.Time `json:"created_at"`
}

// ProfileWithTeam is the admin-list projection: the profile joined with its
// team name and role assignment.
type ProfileWithTeam struct {
	UserProfile
	TeamName string `json:"team_name,omitempty"`
	Role     string `json:"role,omitempty"`
}

type ProfileFilter struct {
	Query string
	Role  string
}

type ProfilesStore interface {
	Create(ctx context.Context, p *UserProfile) error
	Update(ctx context.Context, p *UserProfile) error
	Get(ctx context.Context, id string) (*UserProfile, error)
	FindByEmail(ctx context.Context, email string) (*UserProfile, error)
	ListFiltered(ctx context.Context, f ProfileFilter) ([]ProfileWithTeam, error)
	Delete(ctx context.Context, id string) error
}

type profilesStore struct {
	db *sql.DB
	q  func(string) string
}

func NewProfilesStore(db *sql.DB) ProfilesStore {
	return &profilesStore{db: db, q: Rebinder(db)}
}

const profileColumns = `id, name, email, team_id, phone, tshirt_size, dietary_restrictions, is_inside_venue, created_at`

func (s *profilesStore) Create(ctx context.Context, p *UserProfile) error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("profile id required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = utils.NowUTC()
	}
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, strings.TrimSpace(p.Name), strings.ToLower(strings.TrimSpace(p.Email)),
		p.TeamID, p.Phone, p.TShirtSize, p.DietaryRestrictions, p.IsInsideVenue, p.CreatedAt)
	return err
}

func (s *profilesStore) Update(ctx context.Context, p *UserProfile) error {
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE profiles SET name = ?, email = ?, team_id = ?, phone = ?, tshirt_size = ?,
			dietary_restrictions = ?, is_inside_venue = ? WHERE id = ?`),
		strings.TrimSpace(p.Name), strings.ToLower(strings.TrimSpace(p.Email)),
		p.TeamID, p.Phone, p.TShirtSize, p.DietaryRestrictions, p.IsInsideVenue, p.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return err
}

func (s *profilesStore) Get(ctx context.Context, id string) (*UserProfile, error) {
	row := s.db.QueryRowContext(ctx,
		s.q(`SELECT `+profileColumns+` FROM profiles WHERE id = ?`), id)
	return scanProfile(row)
}

func (s *profilesStore) FindByEmail(ctx context.Context, email string) (*UserProfile, error) {
	row := s.db.QueryRowContext(ctx,
		s.q(`SELECT `+profileColumns+` FROM profiles WHERE email = ?`),
		strings.ToLower(strings.TrimSpace(email)))
	return scanProfile(row)
}

func (s *profilesStore) ListFiltered(ctx context.Context, f ProfileFilter) ([]ProfileWithTeam, error) {
	query := `SELECT p.id, p.name, p.email, p.team_id, p.phone, p.tshirt_size,
			p.dietary_restrictions, p.is_inside_venue, p.created_at,
			COALESCE(t.team_name, ''), COALESCE(r.role, '')
		FROM profiles p
		LEFT JOIN teams t ON t.id = p.team_id
		LEFT JOIN user_roles r ON r.user_id = p.id`
	var conds []string
	var args []any
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		conds = append(conds, `(LOWER(p.name) LIKE ? OR LOWER(p.email) LIKE ?)`)
		like := "%" + q + "%"
		args = append(args, like, like)
	}
	if role := strings.TrimSpace(f.Role); role != "" {
		conds = append(conds, `r.role = ?`)
		args = append(args, role)
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY p.created_at DESC`
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProfileWithTeam
	for rows.Next() {
		var p ProfileWithTeam
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.TeamID, &p.Phone, &p.TShirtSize,
			&p.DietaryRestrictions, &p.IsInsideVenue, &p.CreatedAt, &p.TeamName, &p.Role); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *profilesStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM profiles WHERE id = ?`), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return err
}

func scanProfile(row *sql.Row) (*UserProfile, error) {
	var p UserProfile
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.TeamID, &p.Phone, &p.TShirtSize,
		&p.DietaryRestrictions, &p.IsInsideVenue, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
