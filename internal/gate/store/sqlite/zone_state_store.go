package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/zonegate/server/internal/db"
	"github.com/zonegate/server/internal/gate/store"
)

// ZoneStateStore keeps per-user current-zone rows with an optimistic
// version column.  Both Initialize and CompareAndSet are single guarded
// statements, so they stay correct even with multiple server processes
// on the same database file.
type ZoneStateStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewZoneStateStore(db *sql.DB, writer *dbpkg.Worker) *ZoneStateStore {
	return &ZoneStateStore{db: db, writer: writer}
}

func (s *ZoneStateStore) Read(ctx context.Context, userID string) (store.ZoneStateRecord, bool, error) {
	var rec store.ZoneStateRecord
	var zoneID sql.NullString
	var updatedMs int64
	err := s.db.QueryRowContext(ctx, `
SELECT user_id, current_zone_id, version, updated_at_ms FROM user_state WHERE user_id = ?;
`, userID).Scan(&rec.UserID, &zoneID, &rec.Version, &updatedMs)
	if err == sql.ErrNoRows {
		return store.ZoneStateRecord{}, false, nil
	}
	if err != nil {
		return store.ZoneStateRecord{}, false, fmt.Errorf("Read query: %w", err)
	}
	rec.ZoneID = fromNull(zoneID)
	rec.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return rec, true, nil
}

func (s *ZoneStateStore) Initialize(ctx context.Context, userID string, zoneID *string) (bool, error) {
	var created bool
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO user_state(user_id, current_zone_id, version, updated_at_ms)
VALUES (?, ?, 0, ?);
`, userID, nullable(zoneID), time.Now().UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("Initialize insert: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("Initialize rows affected: %w", err)
		}
		created = n > 0
		return nil
	})
	return created, err
}

func (s *ZoneStateStore) CompareAndSet(ctx context.Context, userID string, zoneID *string, expectedVersion int64) (bool, error) {
	var committed bool
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		// The version predicate makes this a no-op on conflict; the row is
		// untouched and the caller re-reads.
		res, err := tx.ExecContext(ctx, `
UPDATE user_state
SET current_zone_id = ?, version = version + 1, updated_at_ms = ?
WHERE user_id = ? AND version = ?;
`, nullable(zoneID), time.Now().UTC().UnixMilli(), userID, expectedVersion)
		if err != nil {
			return fmt.Errorf("CompareAndSet update: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("CompareAndSet rows affected: %w", err)
		}
		committed = n > 0
		return nil
	})
	return committed, err
}

func (s *ZoneStateStore) List(ctx context.Context, limit, offset int) ([]store.ZoneStateRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT user_id, current_zone_id, version, updated_at_ms
FROM user_state ORDER BY updated_at_ms DESC LIMIT ? OFFSET ?;
`, normLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("List query: %w", err)
	}
	defer rows.Close()

	var out []store.ZoneStateRecord
	for rows.Next() {
		var rec store.ZoneStateRecord
		var zoneID sql.NullString
		var updatedMs int64
		if err := rows.Scan(&rec.UserID, &zoneID, &rec.Version, &updatedMs); err != nil {
			return nil, fmt.Errorf("List scan: %w", err)
		}
		rec.ZoneID = fromNull(zoneID)
		rec.UpdatedAt = time.UnixMilli(updatedMs).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
