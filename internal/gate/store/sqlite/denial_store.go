package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/zonegate/server/internal/db"
	"github.com/zonegate/server/internal/gate/store"
)

// DenialStore persists rejected events for audit and reporting.
type DenialStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewDenialStore(db *sql.DB, writer *dbpkg.Worker) *DenialStore {
	return &DenialStore{db: db, writer: writer}
}

func (s *DenialStore) Record(ctx context.Context, rec store.DenialRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO denials(
  event_id, checkpoint_id, checkpoint_code, user_id, user_code,
  from_zone_id, from_zone_code, to_zone_id, to_zone_code,
  reason, details, created_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.EventID, nullable(rec.CheckpointID), rec.CheckpointCode,
			nullable(rec.UserID), rec.UserCode,
			nullable(rec.FromZoneID), rec.FromZoneCode,
			nullable(rec.ToZoneID), rec.ToZoneCode,
			rec.Reason, rec.Details, rec.CreatedAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("Record insert: %w", err)
		}
		return nil
	})
}

func (s *DenialStore) ListRecent(ctx context.Context, limit, offset int) ([]store.DenialRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT event_id, checkpoint_id, checkpoint_code, user_id, user_code,
       from_zone_id, from_zone_code, to_zone_id, to_zone_code,
       reason, details, created_at_ms
FROM denials ORDER BY created_at_ms DESC, denial_id DESC LIMIT ? OFFSET ?;
`, normLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("ListRecent query: %w", err)
	}
	defer rows.Close()

	var out []store.DenialRecord
	for rows.Next() {
		var rec store.DenialRecord
		var cpID, userID, fromID, toID sql.NullString
		var createdMs int64
		if err := rows.Scan(
			&rec.EventID, &cpID, &rec.CheckpointCode, &userID, &rec.UserCode,
			&fromID, &rec.FromZoneCode, &toID, &rec.ToZoneCode,
			&rec.Reason, &rec.Details, &createdMs,
		); err != nil {
			return nil, fmt.Errorf("ListRecent scan: %w", err)
		}
		rec.CheckpointID = fromNull(cpID)
		rec.UserID = fromNull(userID)
		rec.FromZoneID = fromNull(fromID)
		rec.ToZoneID = fromNull(toID)
		rec.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
