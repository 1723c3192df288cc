package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	dbpkg "github.com/zonegate/server/internal/db"
	"github.com/zonegate/server/internal/gate/store"
)

// DirectoryStore is the production topology directory.  Reads go straight
// to the connection; writes are funneled through the tx worker.
type DirectoryStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewDirectoryStore(db *sql.DB, writer *dbpkg.Worker) *DirectoryStore {
	return &DirectoryStore{db: db, writer: writer}
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite surfaces constraint failures as text; matching on
	// the message avoids importing the driver's error types here.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *DirectoryStore) CreateZone(ctx context.Context, code string) (store.ZoneRecord, error) {
	rec := store.ZoneRecord{
		ID:        uuid.NewString(),
		Code:      code,
		CreatedAt: time.Now().UTC(),
	}
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO zones(zone_id, code, created_at_ms) VALUES (?, ?, ?);
`, rec.ID, rec.Code, rec.CreatedAt.UnixMilli()); err != nil {
			if isUniqueViolation(err) {
				return store.ErrDuplicateCode
			}
			return fmt.Errorf("CreateZone insert: %w", err)
		}
		return nil
	})
	if err != nil {
		return store.ZoneRecord{}, err
	}
	return rec, nil
}

func (s *DirectoryStore) ZoneByID(ctx context.Context, id string) (store.ZoneRecord, bool, error) {
	return s.zoneBy(ctx, "zone_id", id)
}

func (s *DirectoryStore) ZoneByCode(ctx context.Context, code string) (store.ZoneRecord, bool, error) {
	return s.zoneBy(ctx, "code", code)
}

func (s *DirectoryStore) zoneBy(ctx context.Context, column, value string) (store.ZoneRecord, bool, error) {
	var rec store.ZoneRecord
	var createdMs int64
	err := s.db.QueryRowContext(ctx,
		"SELECT zone_id, code, created_at_ms FROM zones WHERE "+column+" = ?;", value,
	).Scan(&rec.ID, &rec.Code, &createdMs)
	if err == sql.ErrNoRows {
		return store.ZoneRecord{}, false, nil
	}
	if err != nil {
		return store.ZoneRecord{}, false, fmt.Errorf("zone query: %w", err)
	}
	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	return rec, true, nil
}

func (s *DirectoryStore) ListZones(ctx context.Context, limit, offset int) ([]store.ZoneRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT zone_id, code, created_at_ms FROM zones ORDER BY code LIMIT ? OFFSET ?;
`, normLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("ListZones query: %w", err)
	}
	defer rows.Close()

	var out []store.ZoneRecord
	for rows.Next() {
		var rec store.ZoneRecord
		var createdMs int64
		if err := rows.Scan(&rec.ID, &rec.Code, &createdMs); err != nil {
			return nil, fmt.Errorf("ListZones scan: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *DirectoryStore) DeleteZone(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, "DELETE FROM zones WHERE zone_id = ?;", id)
}

func (s *DirectoryStore) CreateUser(ctx context.Context, code string) (store.UserRecord, error) {
	rec := store.UserRecord{
		ID:        uuid.NewString(),
		Code:      code,
		CreatedAt: time.Now().UTC(),
	}
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO users(user_id, code, created_at_ms) VALUES (?, ?, ?);
`, rec.ID, rec.Code, rec.CreatedAt.UnixMilli()); err != nil {
			if isUniqueViolation(err) {
				return store.ErrDuplicateCode
			}
			return fmt.Errorf("CreateUser insert: %w", err)
		}
		return nil
	})
	if err != nil {
		return store.UserRecord{}, err
	}
	return rec, nil
}

func (s *DirectoryStore) UserByID(ctx context.Context, id string) (store.UserRecord, bool, error) {
	return s.userBy(ctx, "user_id", id)
}

func (s *DirectoryStore) UserByCode(ctx context.Context, code string) (store.UserRecord, bool, error) {
	return s.userBy(ctx, "code", code)
}

func (s *DirectoryStore) userBy(ctx context.Context, column, value string) (store.UserRecord, bool, error) {
	var rec store.UserRecord
	var createdMs int64
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, code, created_at_ms FROM users WHERE "+column+" = ?;", value,
	).Scan(&rec.ID, &rec.Code, &createdMs)
	if err == sql.ErrNoRows {
		return store.UserRecord{}, false, nil
	}
	if err != nil {
		return store.UserRecord{}, false, fmt.Errorf("user query: %w", err)
	}
	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	return rec, true, nil
}

func (s *DirectoryStore) ListUsers(ctx context.Context, limit, offset int) ([]store.UserRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT user_id, code, created_at_ms FROM users ORDER BY code LIMIT ? OFFSET ?;
`, normLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("ListUsers query: %w", err)
	}
	defer rows.Close()

	var out []store.UserRecord
	for rows.Next() {
		var rec store.UserRecord
		var createdMs int64
		if err := rows.Scan(&rec.ID, &rec.Code, &createdMs); err != nil {
			return nil, fmt.Errorf("ListUsers scan: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *DirectoryStore) DeleteUser(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, "DELETE FROM users WHERE user_id = ?;", id)
}

func (s *DirectoryStore) CreateCheckpoint(ctx context.Context, code string, fromZoneID, toZoneID *string) (store.CheckpointRecord, error) {
	rec := store.CheckpointRecord{
		ID:         uuid.NewString(),
		Code:       code,
		FromZoneID: fromZoneID,
		ToZoneID:   toZoneID,
		CreatedAt:  time.Now().UTC(),
	}
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO checkpoints(checkpoint_id, code, from_zone_id, to_zone_id, created_at_ms)
VALUES (?, ?, ?, ?, ?);
`, rec.ID, rec.Code, nullable(fromZoneID), nullable(toZoneID), rec.CreatedAt.UnixMilli()); err != nil {
			if isUniqueViolation(err) {
				return store.ErrDuplicateCode
			}
			return fmt.Errorf("CreateCheckpoint insert: %w", err)
		}
		return nil
	})
	if err != nil {
		return store.CheckpointRecord{}, err
	}
	return rec, nil
}

func (s *DirectoryStore) CheckpointByID(ctx context.Context, id string) (store.CheckpointRecord, bool, error) {
	return s.checkpointBy(ctx, "checkpoint_id", id)
}

func (s *DirectoryStore) CheckpointByCode(ctx context.Context, code string) (store.CheckpointRecord, bool, error) {
	return s.checkpointBy(ctx, "code", code)
}

func (s *DirectoryStore) checkpointBy(ctx context.Context, column, value string) (store.CheckpointRecord, bool, error) {
	var rec store.CheckpointRecord
	var fromID, toID sql.NullString
	var createdMs int64
	err := s.db.QueryRowContext(ctx,
		"SELECT checkpoint_id, code, from_zone_id, to_zone_id, created_at_ms FROM checkpoints WHERE "+column+" = ?;",
		value,
	).Scan(&rec.ID, &rec.Code, &fromID, &toID, &createdMs)
	if err == sql.ErrNoRows {
		return store.CheckpointRecord{}, false, nil
	}
	if err != nil {
		return store.CheckpointRecord{}, false, fmt.Errorf("checkpoint query: %w", err)
	}
	rec.FromZoneID = fromNull(fromID)
	rec.ToZoneID = fromNull(toID)
	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	return rec, true, nil
}

func (s *DirectoryStore) ListCheckpoints(ctx context.Context, limit, offset int) ([]store.CheckpointRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT checkpoint_id, code, from_zone_id, to_zone_id, created_at_ms
FROM checkpoints ORDER BY code LIMIT ? OFFSET ?;
`, normLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("ListCheckpoints query: %w", err)
	}
	defer rows.Close()

	var out []store.CheckpointRecord
	for rows.Next() {
		var rec store.CheckpointRecord
		var fromID, toID sql.NullString
		var createdMs int64
		if err := rows.Scan(&rec.ID, &rec.Code, &fromID, &toID, &createdMs); err != nil {
			return nil, fmt.Errorf("ListCheckpoints scan: %w", err)
		}
		rec.FromZoneID = fromNull(fromID)
		rec.ToZoneID = fromNull(toID)
		rec.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *DirectoryStore) DeleteCheckpoint(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, "DELETE FROM checkpoints WHERE checkpoint_id = ?;", id)
}

func (s *DirectoryStore) CreateAccessRule(ctx context.Context, userID, toZoneID string) (store.AccessRuleRecord, error) {
	rec := store.AccessRuleRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		ToZoneID:  toZoneID,
		CreatedAt: time.Now().UTC(),
	}
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_rules(rule_id, user_id, to_zone_id, created_at_ms)
VALUES (?, ?, ?, ?);
`, rec.ID, rec.UserID, rec.ToZoneID, rec.CreatedAt.UnixMilli()); err != nil {
			if isUniqueViolation(err) {
				return store.ErrDuplicateCode
			}
			return fmt.Errorf("CreateAccessRule insert: %w", err)
		}
		return nil
	})
	if err != nil {
		return store.AccessRuleRecord{}, err
	}
	return rec, nil
}

func (s *DirectoryStore) AccessRuleByID(ctx context.Context, id string) (store.AccessRuleRecord, bool, error) {
	var rec store.AccessRuleRecord
	var createdMs int64
	err := s.db.QueryRowContext(ctx, `
SELECT rule_id, user_id, to_zone_id, created_at_ms FROM access_rules WHERE rule_id = ?;
`, id).Scan(&rec.ID, &rec.UserID, &rec.ToZoneID, &createdMs)
	if err == sql.ErrNoRows {
		return store.AccessRuleRecord{}, false, nil
	}
	if err != nil {
		return store.AccessRuleRecord{}, false, fmt.Errorf("AccessRuleByID query: %w", err)
	}
	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	return rec, true, nil
}

func (s *DirectoryStore) ListAccessRules(ctx context.Context, limit, offset int) ([]store.AccessRuleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT rule_id, user_id, to_zone_id, created_at_ms
FROM access_rules ORDER BY created_at_ms LIMIT ? OFFSET ?;
`, normLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("ListAccessRules query: %w", err)
	}
	defer rows.Close()

	var out []store.AccessRuleRecord
	for rows.Next() {
		var rec store.AccessRuleRecord
		var createdMs int64
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ToZoneID, &createdMs); err != nil {
			return nil, fmt.Errorf("ListAccessRules scan: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *DirectoryStore) DeleteAccessRule(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, "DELETE FROM access_rules WHERE rule_id = ?;", id)
}

func (s *DirectoryStore) HasAccess(ctx context.Context, userID, toZoneID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
SELECT 1 FROM access_rules WHERE user_id = ? AND to_zone_id = ?;
`, userID, toZoneID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("HasAccess query: %w", err)
	}
	return true, nil
}

func (s *DirectoryStore) HasExit(ctx context.Context, fromZoneID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
SELECT 1 FROM checkpoints WHERE from_zone_id = ? AND to_zone_id IS NULL LIMIT 1;
`, fromZoneID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("HasExit query: %w", err)
	}
	return true, nil
}

func (s *DirectoryStore) deleteByID(ctx context.Context, query, id string) (bool, error) {
	var deleted bool
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, id)
		if err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete rows affected: %w", err)
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}

func normLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
