package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ParleSec/LetsAuth/pkg/models"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLite implements PendingStore and NonceLedger on a SQLite database, for
// deployments where the IdP or RP runs as more than one process against a
// shared file. Both single-use primitives are single SQL statements, so
// their atomicity is the database's, not a lock around read+write.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (or creates) the store database under dataDir.
func NewSQLite(dataDir string) (*SQLite, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "letsauth.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLite{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) initSchema() error {
	schema := `
	-- In-flight authentication requests (IdP side)
	CREATE TABLE IF NOT EXISTS pending_requests (
		email TEXT NOT NULL,
		origin TEXT NOT NULL,
		token TEXT NOT NULL,
		endpoint TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		PRIMARY KEY (email, origin)
	);

	-- Consumed assertion nonces (RP side)
	CREATE TABLE IF NOT EXISTS nonces (
		email TEXT NOT NULL,
		nonce TEXT NOT NULL,
		expires_at INTEGER NOT NULL,
		PRIMARY KEY (email, nonce)
	);

	CREATE INDEX IF NOT EXISTS idx_pending_expiry ON pending_requests(expires_at);
	CREATE INDEX IF NOT EXISTS idx_nonce_expiry ON nonces(expires_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Put upserts the pending request and resets its TTL.
func (s *SQLite) Put(ctx context.Context, req *models.PendingAuthRequest, ttl time.Duration) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_requests (email, origin, token, endpoint, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (email, origin) DO UPDATE SET
			token = excluded.token,
			endpoint = excluded.endpoint,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		req.Email, req.Origin, req.Token, req.Endpoint,
		now.UnixMilli(), now.Add(ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("%w: put pending request: %v", ErrUnavailable, err)
	}
	return nil
}

// TakeAndDelete removes and returns the pending request in a single
// DELETE ... RETURNING statement; racing confirmations see at most one row.
func (s *SQLite) TakeAndDelete(ctx context.Context, email, origin string) (*models.PendingAuthRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		DELETE FROM pending_requests
		WHERE email = ? AND origin = ?
		RETURNING token, endpoint, created_at, expires_at`,
		email, origin)

	var token, endpoint string
	var createdAt, expiresAt int64
	if err := row.Scan(&token, &endpoint, &createdAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: take pending request: %v", ErrUnavailable, err)
	}

	// Expired rows are deleted above but never handed out.
	if s.now().UnixMilli() > expiresAt {
		return nil, nil
	}

	return &models.PendingAuthRequest{
		Email:     email,
		Origin:    origin,
		Token:     token,
		Endpoint:  endpoint,
		CreatedAt: time.UnixMilli(createdAt),
	}, nil
}

// AddIfAbsent inserts nonce for email, reporting whether it was newly
// inserted. The INSERT OR IGNORE is the atomic first-writer-wins primitive.
func (s *SQLite) AddIfAbsent(ctx context.Context, email, nonce string) (bool, error) {
	now := s.now().UnixMilli()

	// Opportunistically drop expired entries so a dead nonce cannot shadow
	// a fresh assertion that happened to reuse the value.
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM nonces WHERE email = ? AND expires_at <= ?`, email, now); err != nil {
		return false, fmt.Errorf("%w: expire nonces: %v", ErrUnavailable, err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO nonces (email, nonce, expires_at)
		VALUES (?, ?, ?)`,
		email, nonce, s.now().Add(initialNonceTTL).UnixMilli())
	if err != nil {
		return false, fmt.Errorf("%w: add nonce: %v", ErrUnavailable, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: add nonce: %v", ErrUnavailable, err)
	}
	return inserted == 1, nil
}

// ExtendTTL pushes the expiry of the email's nonces out to at least
// now+ttl.
func (s *SQLite) ExtendTTL(ctx context.Context, email string, ttl time.Duration) error {
	deadline := s.now().Add(ttl).UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		UPDATE nonces SET expires_at = ?
		WHERE email = ? AND expires_at < ?`,
		deadline, email, deadline)
	if err != nil {
		return fmt.Errorf("%w: extend nonce ttl: %v", ErrUnavailable, err)
	}
	return nil
}
