package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"hackhub/core/utils"
)

type Team struct {
	ID        string    `json:"id"`
	TeamCode  string    `json:"team_code"`
	TeamName  string    `json:"team_name"`
	CreatedAt time.Time `json:"created_at"`
}

type TeamsStore interface {
	// FindByCode resolves a team by its natural key; (nil, nil) when absent.
	FindByCode(ctx context.Context, code string) (*Team, error)
	Get(ctx context.Context, id string) (*Team, error)
	Create(ctx context.Context, t *Team) error
	List(ctx context.Context) ([]Team, error)
}

type teamsStore struct {
	db *sql.DB
	q  func(string) string
}

func NewTeamsStore(db *sql.DB) TeamsStore {
	return &teamsStore{db: db, q: Rebinder(db)}
}

func (s *teamsStore) FindByCode(ctx context.Context, code string) (*Team, error) {
	row := s.db.QueryRowContext(ctx,
		s.q(`SELECT id, team_code, team_name, created_at FROM teams WHERE team_code = ?`),
		strings.TrimSpace(code))
	return scanTeam(row)
}

func (s *teamsStore) Get(ctx context.Context, id string) (*Team, error) {
	row := s.db.QueryRowContext(ctx,
		s.q(`SELECT id, team_code, team_name, created_at FROM teams WHERE id = ?`), id)
	return scanTeam(row)
}

func (s *teamsStore) Create(ctx context.Context, t *Team) error {
	if strings.TrimSpace(t.TeamCode) == "" {
		return errors.New("team_code required")
	}
	if t.ID == "" {
		t.ID = uuid.Must(uuid.NewV4()).String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = utils.NowUTC()
	}
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO teams (id, team_code, team_name, created_at) VALUES (?, ?, ?, ?)`),
		t.ID, strings.TrimSpace(t.TeamCode), strings.TrimSpace(t.TeamName), t.CreatedAt)
	return err
}

func (s *teamsStore) List(ctx context.Context) ([]Team, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, team_code, team_name, created_at FROM teams ORDER BY team_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Team
	for rows.Next() {
		var t Team
		if err := rows.Scan(&t.ID, &t.TeamCode, &t.TeamName, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTeam(row *sql.Row) (*Team, error) {
	var t Team
	err := row.Scan(&t.ID, &t.TeamCode, &t.TeamName, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
