package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/zonegate/server/internal/gate/store/memory"
)

func TestZoneStateStore_InitializeOnce(t *testing.T) {
	s := memory.NewZoneStateStore()
	ctx := context.Background()
	zone := "zone-1"

	created, err := s.Initialize(ctx, "u1", &zone)
	if err != nil || !created {
		t.Fatalf("first Initialize: created=%v err=%v", created, err)
	}
	created, err = s.Initialize(ctx, "u1", nil)
	if err != nil || created {
		t.Fatalf("second Initialize: created=%v err=%v, want false", created, err)
	}

	rec, found, _ := s.Read(ctx, "u1")
	if !found || rec.ZoneID == nil || *rec.ZoneID != zone || rec.Version != 0 {
		t.Errorf("state = %+v (found=%v), want zone-1 at version 0", rec, found)
	}
}

func TestZoneStateStore_CompareAndSetConflict(t *testing.T) {
	s := memory.NewZoneStateStore()
	ctx := context.Background()
	zone := "zone-1"
	s.Set("u1", nil, 5)

	ok, err := s.CompareAndSet(ctx, "u1", &zone, 4)
	if err != nil || ok {
		t.Fatalf("stale version: ok=%v err=%v, want conflict", ok, err)
	}
	rec, _, _ := s.Read(ctx, "u1")
	if rec.ZoneID != nil || rec.Version != 5 {
		t.Errorf("conflict mutated state: %+v", rec)
	}

	ok, err = s.CompareAndSet(ctx, "u1", &zone, 5)
	if err != nil || !ok {
		t.Fatalf("matching version: ok=%v err=%v, want commit", ok, err)
	}
	rec, _, _ = s.Read(ctx, "u1")
	if rec.ZoneID == nil || *rec.ZoneID != zone || rec.Version != 6 {
		t.Errorf("state after commit = %+v, want zone-1 at version 6", rec)
	}
}

func TestZoneStateStore_ConcurrentCASExactlyOneWinner(t *testing.T) {
	s := memory.NewZoneStateStore()
	ctx := context.Background()
	s.Set("u1", nil, 0)

	const writers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	commits := 0

	for i := 0; i < writers; i++ {
		wg.Add(1)
		zone := "zone-1"
		go func() {
			defer wg.Done()
			ok, err := s.CompareAndSet(ctx, "u1", &zone, 0)
			if err != nil {
				t.Errorf("CompareAndSet: %v", err)
				return
			}
			if ok {
				mu.Lock()
				commits++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if commits != 1 {
		t.Errorf("commits = %d, want exactly 1", commits)
	}
	rec, _, _ := s.Read(ctx, "u1")
	if rec.Version != 1 {
		t.Errorf("version = %d, want 1", rec.Version)
	}
}
