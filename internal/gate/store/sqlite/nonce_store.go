package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/zonegate/server/internal/db"
	"github.com/zonegate/server/internal/gate/store"
)

// NonceStore is the replay ledger.  PutIfAbsent relies on INSERT OR
// IGNORE against the primary key, so the database decides which of two
// racing inserts is first.
type NonceStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewNonceStore(db *sql.DB, writer *dbpkg.Worker) *NonceStore {
	return &NonceStore{db: db, writer: writer}
}

func (s *NonceStore) Exists(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM event_nonces WHERE event_id = ?;", eventID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("Exists query: %w", err)
	}
	return true, nil
}

func (s *NonceStore) PutIfAbsent(ctx context.Context, rec store.NonceRecord) (bool, error) {
	var inserted bool
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO event_nonces(event_id, checkpoint_code, event_timestamp_ms, expires_at_ms)
VALUES (?, ?, ?, ?);
`, rec.EventID, rec.CheckpointCode, rec.EventTimestamp.UTC().UnixMilli(), rec.ExpiresAt.UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("PutIfAbsent insert: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("PutIfAbsent rows affected: %w", err)
		}
		inserted = n > 0
		return nil
	})
	return inserted, err
}

func (s *NonceStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM event_nonces WHERE expires_at_ms < ?;", now.UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("DeleteExpired delete: %w", err)
		}
		deleted, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("DeleteExpired rows affected: %w", err)
		}
		return nil
	})
	return deleted, err
}
