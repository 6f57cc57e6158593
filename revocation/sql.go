package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Schema creates the table used by SQLStore. The primary key is what makes
// MarkRevoked first-writer-wins.
const Schema = `CREATE TABLE IF NOT EXISTS auth_revocations (
	kind TEXT NOT NULL,
	id TEXT NOT NULL,
	revoked_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (kind, id)
)`

// SQLStore persists markers in PostgreSQL.
type SQLStore struct {
	db        *sqlx.DB
	retention Retention
	now       func() time.Time
}

// NewSQLStore constructs the store. now defaults to time.Now.
func NewSQLStore(db *sqlx.DB, retention Retention, now func() time.Time) *SQLStore {
	if now == nil {
		now = time.Now
	}
	return &SQLStore{db: db, retention: retention, now: now}
}

// EnsureSchema creates the revocation table when missing.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("%w: ensure schema: %v", ErrUnavailable, err)
	}
	return nil
}

// MarkRevoked inserts the marker and reports whether this call created it.
func (s *SQLStore) MarkRevoked(ctx context.Context, kind Kind, id string) (bool, error) {
	if err := validID(kind, id); err != nil {
		return false, err
	}
	const query = `INSERT INTO auth_revocations (kind, id, revoked_at) VALUES ($1, $2, $3) ON CONFLICT (kind, id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, query, string(kind), id, s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("%w: mark revoked: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: mark revoked: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}

// IsRevoked looks the marker up by primary key.
func (s *SQLStore) IsRevoked(ctx context.Context, kind Kind, id string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM auth_revocations WHERE kind = $1 AND id = $2)`
	var exists bool
	if err := s.db.GetContext(ctx, &exists, query, string(kind), id); err != nil {
		return false, fmt.Errorf("%w: is revoked: %v", ErrUnavailable, err)
	}
	return exists, nil
}

// SweepExpired deletes markers kind by kind using each kind's retention.
func (s *SQLStore) SweepExpired(ctx context.Context, before time.Time) (int, error) {
	const query = `DELETE FROM auth_revocations WHERE kind = $1 AND revoked_at <= $2`
	removed := 0
	for _, kind := range []Kind{KindSession, KindReset} {
		cutoff, ok := s.retention.cutoff(kind, before)
		if !ok {
			continue
		}
		res, err := s.db.ExecContext(ctx, query, string(kind), cutoff.UTC())
		if err != nil {
			return removed, fmt.Errorf("%w: sweep %s: %v", ErrUnavailable, kind, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("%w: sweep %s: %v", ErrUnavailable, kind, err)
		}
		removed += int(n)
	}
	return removed, nil
}
