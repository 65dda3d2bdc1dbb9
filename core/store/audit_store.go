package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofrs/uuid/v5"
	"hackhub/core/utils"
)

type AuditEntry struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditStore interface {
	Log(ctx context.Context, actor, action, details string) error
	List(ctx context.Context, limit int) ([]AuditEntry, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type auditStore struct {
	db *sql.DB
	q  func(string) string
}

func NewAuditStore(db *sql.DB) AuditStore {
	return &auditStore{db: db, q: Rebinder(db)}
}

func (s *auditStore) Log(ctx context.Context, actor, action, details string) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO audit_log (id, actor, action, details, created_at) VALUES (?, ?, ?, ?, ?)`),
		uuid.Must(uuid.NewV4()).String(), actor, action, details, utils.NowUTC())
	return err
}

func (s *auditStore) List(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT id, actor, action, details, created_at FROM audit_log
		 ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *auditStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.q(`DELETE FROM audit_log WHERE created_at < ?`), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
