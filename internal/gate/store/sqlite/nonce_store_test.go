package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/zonegate/server/internal/gate/store"
	"github.com/zonegate/server/internal/gate/store/sqlite"
)

func TestNonceStore_PutIfAbsent(t *testing.T) {
	conn := openTestDB(t)
	writer := newTestWriter(t, conn)
	ctx := context.Background()

	s := sqlite.NewNonceStore(conn, writer)
	now := time.Now().UTC()

	rec := store.NonceRecord{
		EventID:        "evt-1",
		CheckpointCode: "CP-1",
		EventTimestamp: now,
		ExpiresAt:      now.Add(24 * time.Hour),
	}

	inserted, err := s.PutIfAbsent(ctx, rec)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}

	// Second insert of the same event id is ignored, not an error.
	inserted, err = s.PutIfAbsent(ctx, rec)
	if err != nil || inserted {
		t.Fatalf("second insert: inserted=%v err=%v, want false", inserted, err)
	}

	exists, err := s.Exists(ctx, "evt-1")
	if err != nil || !exists {
		t.Errorf("Exists(evt-1) = %v, %v; want true", exists, err)
	}
	exists, err = s.Exists(ctx, "evt-2")
	if err != nil || exists {
		t.Errorf("Exists(evt-2) = %v, %v; want false", exists, err)
	}
}

func TestNonceStore_DeleteExpired(t *testing.T) {
	conn := openTestDB(t)
	writer := newTestWriter(t, conn)
	ctx := context.Background()

	s := sqlite.NewNonceStore(conn, writer)
	now := time.Now().UTC()

	for _, rec := range []store.NonceRecord{
		{EventID: "evt-old-1", CheckpointCode: "CP-1", EventTimestamp: now, ExpiresAt: now.Add(-2 * time.Hour)},
		{EventID: "evt-old-2", CheckpointCode: "CP-1", EventTimestamp: now, ExpiresAt: now.Add(-time.Hour)},
		{EventID: "evt-live", CheckpointCode: "CP-1", EventTimestamp: now, ExpiresAt: now.Add(time.Hour)},
	} {
		if _, err := s.PutIfAbsent(ctx, rec); err != nil {
			t.Fatalf("insert %s: %v", rec.EventID, err)
		}
	}

	deleted, err := s.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	exists, _ := s.Exists(ctx, "evt-live")
	if !exists {
		t.Errorf("live nonce should survive")
	}
}
