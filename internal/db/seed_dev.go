package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SeedDev installs a minimal dev topology so a fresh server can process
// events without any admin calls: two zones, an entry checkpoint from
// outside into LOBBY, an internal checkpoint LOBBY -> LAB, an exit
// checkpoint from LOBBY, and one user allowed into both zones.
//
// Idempotent: seeding keys off the well-known codes, so re-running
// against a seeded database is a no-op.
func SeedDev(ctx context.Context, db *sql.DB) error {
	now := time.Now().UTC().UnixMilli()

	lobbyID, err := seedZone(ctx, db, "LOBBY", now)
	if err != nil {
		return err
	}
	labID, err := seedZone(ctx, db, "LAB", now)
	if err != nil {
		return err
	}

	if err := seedCheckpoint(ctx, db, "CP-ENTRY", nil, &lobbyID, now); err != nil {
		return err
	}
	if err := seedCheckpoint(ctx, db, "CP-LAB", &lobbyID, &labID, now); err != nil {
		return err
	}
	if err := seedCheckpoint(ctx, db, "CP-EXIT", &lobbyID, nil, now); err != nil {
		return err
	}

	userID, err := seedUser(ctx, db, "dev-user", now)
	if err != nil {
		return err
	}
	if err := seedAccessRule(ctx, db, userID, lobbyID, now); err != nil {
		return err
	}
	if err := seedAccessRule(ctx, db, userID, labID, now); err != nil {
		return err
	}

	return nil
}

func seedZone(ctx context.Context, db *sql.DB, code string, now int64) (string, error) {
	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO zones(zone_id, code, created_at_ms) VALUES (?, ?, ?);`,
		uuid.NewString(), code, now); err != nil {
		return "", fmt.Errorf("seed zone %s: %w", code, err)
	}
	var id string
	if err := db.QueryRowContext(ctx, "SELECT zone_id FROM zones WHERE code = ?;", code).Scan(&id); err != nil {
		return "", fmt.Errorf("seed zone %s: %w", code, err)
	}
	return id, nil
}

func seedUser(ctx context.Context, db *sql.DB, code string, now int64) (string, error) {
	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO users(user_id, code, created_at_ms) VALUES (?, ?, ?);`,
		uuid.NewString(), code, now); err != nil {
		return "", fmt.Errorf("seed user %s: %w", code, err)
	}
	var id string
	if err := db.QueryRowContext(ctx, "SELECT user_id FROM users WHERE code = ?;", code).Scan(&id); err != nil {
		return "", fmt.Errorf("seed user %s: %w", code, err)
	}
	return id, nil
}

func seedCheckpoint(ctx context.Context, db *sql.DB, code string, fromZoneID, toZoneID *string, now int64) error {
	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO checkpoints(checkpoint_id, code, from_zone_id, to_zone_id, created_at_ms)
VALUES (?, ?, ?, ?, ?);`,
		uuid.NewString(), code, fromZoneID, toZoneID, now); err != nil {
		return fmt.Errorf("seed checkpoint %s: %w", code, err)
	}
	return nil
}

func seedAccessRule(ctx context.Context, db *sql.DB, userID, toZoneID string, now int64) error {
	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO access_rules(rule_id, user_id, to_zone_id, created_at_ms)
VALUES (?, ?, ?, ?);`,
		uuid.NewString(), userID, toZoneID, now); err != nil {
		return fmt.Errorf("seed access rule: %w", err)
	}
	return nil
}
