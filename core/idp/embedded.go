package idp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/crypto/argon2"
	"hackhub/core/store"
	"hackhub/core/utils"
)

// EmbeddedProvider keeps accounts in the application database for self-hosted
// deployments and tests. Passwords are argon2id-hashed with a per-account salt
// and a process-wide pepper; bearer tokens are opaque uuids with a TTL.
type EmbeddedProvider struct {
	db       *sql.DB
	q        func(string) string
	pepper   string
	tokenTTL time.Duration
	logger   *utils.Logger
}

var ErrBadCredentials = errors.New("invalid email or password")

const defaultTokenTTL = 12 * time.Hour

func NewEmbeddedProvider(db *sql.DB, pepper string, tokenTTL time.Duration, logger *utils.Logger) *EmbeddedProvider {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &EmbeddedProvider{db: db, q: store.Rebinder(db), pepper: pepper, tokenTTL: tokenTTL, logger: logger}
}

func (p *EmbeddedProvider) CreateAccount(ctx context.Context, acc NewAccount) (string, error) {
	email := strings.ToLower(strings.TrimSpace(acc.Email))
	if email == "" {
		return "", errors.New("email required")
	}
	if err := utils.ValidatePassword(acc.Password); err != nil {
		return "", err
	}
	var existing string
	err := p.db.QueryRowContext(ctx,
		p.q(`SELECT id FROM auth_accounts WHERE email = ?`), email).Scan(&existing)
	if err == nil {
		return "", fmt.Errorf("%s: %w", email, ErrDuplicateAccount)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	hash, salt, err := hashPassword(acc.Password, p.pepper)
	if err != nil {
		return "", err
	}
	id := uuid.Must(uuid.NewV4()).String()
	_, err = p.db.ExecContext(ctx,
		p.q(`INSERT INTO auth_accounts (id, email, password_hash, salt, display_name, email_confirmed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		id, email, hash, salt, strings.TrimSpace(acc.Name), true, utils.NowUTC())
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *EmbeddedProvider) DeleteAccount(ctx context.Context, accountID string) error {
	res, err := p.db.ExecContext(ctx,
		p.q(`DELETE FROM auth_accounts WHERE id = ?`), accountID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (p *EmbeddedProvider) ResolveToken(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnknownToken
	}
	var ident Identity
	err := p.db.QueryRowContext(ctx,
		p.q(`SELECT a.id, a.email FROM auth_tokens t
		 JOIN auth_accounts a ON a.id = t.account_id
		 WHERE t.id = ? AND t.expires_at > ?`), token, utils.NowUTC()).
		Scan(&ident.ID, &ident.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnknownToken
	}
	if err != nil {
		return nil, err
	}
	return &ident, nil
}

// IssueToken verifies a password and mints a bearer token for the account.
func (p *EmbeddedProvider) IssueToken(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var accountID, hash, salt string
	err := p.db.QueryRowContext(ctx,
		p.q(`SELECT id, password_hash, salt FROM auth_accounts WHERE email = ?`), email).
		Scan(&accountID, &hash, &salt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrBadCredentials
	}
	if err != nil {
		return "", err
	}
	if !verifyPassword(password, p.pepper, salt, hash) {
		return "", ErrBadCredentials
	}
	token := uuid.Must(uuid.NewV4()).String()
	now := utils.NowUTC()
	_, err = p.db.ExecContext(ctx,
		p.q(`INSERT INTO auth_tokens (id, account_id, created_at, expires_at) VALUES (?, ?, ?, ?)`),
		token, accountID, now, now.Add(p.tokenTTL))
	if err != nil {
		return "", err
	}
	return token, nil
}

func (p *EmbeddedProvider) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		p.q(`DELETE FROM auth_tokens WHERE expires_at <= ?`), utils.NowUTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

func hashPassword(password, pepper string) (hash, salt string, err error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("read salt: %w", err)
	}
	salt = hex.EncodeToString(raw)
	key := argon2.IDKey([]byte(password+pepper), []byte(salt), argonTime, argonMemory, argonThreads, argonKeyLen)
	return hex.EncodeToString(key), salt, nil
}

func verifyPassword(password, pepper, salt, hash string) bool {
	key := argon2.IDKey([]byte(password+pepper), []byte(salt), argonTime, argonMemory, argonThreads, argonKeyLen)
	want, err := hex.DecodeString(hash)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(key, want) == 1
}
