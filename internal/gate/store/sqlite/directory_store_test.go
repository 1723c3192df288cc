package sqlite_test

import (
	"context"
	"errors"
	"testing"

	"github.com/zonegate/server/internal/gate/store"
	"github.com/zonegate/server/internal/gate/store/sqlite"
)

func TestDirectoryStore_ZoneLifecycle(t *testing.T) {
	conn := openTestDB(t)
	writer := newTestWriter(t, conn)
	ctx := context.Background()

	s := sqlite.NewDirectoryStore(conn, writer)

	zone, err := s.CreateZone(ctx, "A")
	if err != nil {
		t.Fatalf("create zone: %v", err)
	}

	if _, err := s.CreateZone(ctx, "A"); !errors.Is(err, store.ErrDuplicateCode) {
		t.Errorf("duplicate zone: err = %v, want ErrDuplicateCode", err)
	}

	byID, found, err := s.ZoneByID(ctx, zone.ID)
	if err != nil || !found || byID.Code != "A" {
		t.Errorf("ZoneByID = %+v (found=%v err=%v)", byID, found, err)
	}
	byCode, found, err := s.ZoneByCode(ctx, "A")
	if err != nil || !found || byCode.ID != zone.ID {
		t.Errorf("ZoneByCode = %+v (found=%v err=%v)", byCode, found, err)
	}

	deleted, err := s.DeleteZone(ctx, zone.ID)
	if err != nil || !deleted {
		t.Fatalf("delete zone: deleted=%v err=%v", deleted, err)
	}
	deleted, err = s.DeleteZone(ctx, zone.ID)
	if err != nil || deleted {
		t.Errorf("second delete: deleted=%v err=%v, want false", deleted, err)
	}
}

func TestDirectoryStore_CheckpointsAndExits(t *testing.T) {
	conn := openTestDB(t)
	writer := newTestWriter(t, conn)
	ctx := context.Background()

	s := sqlite.NewDirectoryStore(conn, writer)

	zoneA, _ := s.CreateZone(ctx, "A")
	zoneB, _ := s.CreateZone(ctx, "B")

	entry, err := s.CreateCheckpoint(ctx, "CP-ENTRY", nil, &zoneA.ID)
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if entry.FromZoneID != nil || entry.ToZoneID == nil || *entry.ToZoneID != zoneA.ID {
		t.Errorf("entry checkpoint = %+v, want outside->A", entry)
	}
	if _, err := s.CreateCheckpoint(ctx, "CP-EXIT", &zoneA.ID, nil); err != nil {
		t.Fatalf("create exit: %v", err)
	}

	got, found, err := s.CheckpointByCode(ctx, "CP-ENTRY")
	if err != nil || !found || got.ID != entry.ID {
		t.Errorf("CheckpointByCode = %+v (found=%v err=%v)", got, found, err)
	}

	// Only zone A has an exit checkpoint (nil to-zone).
	hasExit, err := s.HasExit(ctx, zoneA.ID)
	if err != nil || !hasExit {
		t.Errorf("HasExit(A) = %v, %v; want true", hasExit, err)
	}
	hasExit, err = s.HasExit(ctx, zoneB.ID)
	if err != nil || hasExit {
		t.Errorf("HasExit(B) = %v, %v; want false", hasExit, err)
	}
}

func TestDirectoryStore_AccessRules(t *testing.T) {
	conn := openTestDB(t)
	writer := newTestWriter(t, conn)
	ctx := context.Background()

	s := sqlite.NewDirectoryStore(conn, writer)

	user, _ := s.CreateUser(ctx, "alice")
	zone, _ := s.CreateZone(ctx, "A")

	rule, err := s.CreateAccessRule(ctx, user.ID, zone.ID)
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	// The (user, zone) pair is unique.
	if _, err := s.CreateAccessRule(ctx, user.ID, zone.ID); !errors.Is(err, store.ErrDuplicateCode) {
		t.Errorf("duplicate rule: err = %v, want ErrDuplicateCode", err)
	}

	allowed, err := s.HasAccess(ctx, user.ID, zone.ID)
	if err != nil || !allowed {
		t.Errorf("HasAccess = %v, %v; want true", allowed, err)
	}
	allowed, err = s.HasAccess(ctx, user.ID, "no-such-zone")
	if err != nil || allowed {
		t.Errorf("HasAccess unknown zone = %v, %v; want false", allowed, err)
	}

	deleted, err := s.DeleteAccessRule(ctx, rule.ID)
	if err != nil || !deleted {
		t.Fatalf("delete rule: deleted=%v err=%v", deleted, err)
	}
	allowed, _ = s.HasAccess(ctx, user.ID, zone.ID)
	if allowed {
		t.Errorf("access should be revoked after rule delete")
	}
}
