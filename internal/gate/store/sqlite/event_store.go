package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/zonegate/server/internal/db"
	"github.com/zonegate/server/internal/gate/store"
)

// EventStore is the append-only audit log of allowed transitions.
type EventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewEventStore(db *sql.DB, writer *dbpkg.Worker) *EventStore {
	return &EventStore{db: db, writer: writer}
}

func (s *EventStore) Append(ctx context.Context, rec store.EventRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO events(event_id, checkpoint_id, user_id, from_zone_id, to_zone_id, timestamp_ms, recorded_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?);
`,
			rec.EventID, rec.CheckpointID, rec.UserID,
			nullable(rec.FromZoneID), nullable(rec.ToZoneID),
			rec.Timestamp.UTC().UnixMilli(), rec.RecordedAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("Append insert: %w", err)
		}
		return nil
	})
}

func (s *EventStore) ListRecent(ctx context.Context, limit, offset int) ([]store.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT event_id, checkpoint_id, user_id, from_zone_id, to_zone_id, timestamp_ms, recorded_at_ms
FROM events ORDER BY recorded_at_ms DESC LIMIT ? OFFSET ?;
`, normLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("ListRecent query: %w", err)
	}
	defer rows.Close()

	var out []store.EventRecord
	for rows.Next() {
		var rec store.EventRecord
		var fromID, toID sql.NullString
		var tsMs, recMs int64
		if err := rows.Scan(&rec.EventID, &rec.CheckpointID, &rec.UserID, &fromID, &toID, &tsMs, &recMs); err != nil {
			return nil, fmt.Errorf("ListRecent scan: %w", err)
		}
		rec.FromZoneID = fromNull(fromID)
		rec.ToZoneID = fromNull(toID)
		rec.Timestamp = time.UnixMilli(tsMs).UTC()
		rec.RecordedAt = time.UnixMilli(recMs).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
