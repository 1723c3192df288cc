package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zonegate/server/internal/gate/store"
)

// ZoneStateStore keeps per-user zone state guarded by a single mutex, so
// Initialize and CompareAndSet have the same atomicity the SQLite store
// gets from conditional writes.
type ZoneStateStore struct {
	mu     sync.Mutex
	states map[string]store.ZoneStateRecord
}

func NewZoneStateStore() *ZoneStateStore {
	return &ZoneStateStore{states: make(map[string]store.ZoneStateRecord)}
}

func (s *ZoneStateStore) Read(_ context.Context, userID string) (store.ZoneStateRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.states[userID]
	return rec, ok, nil
}

func (s *ZoneStateStore) Initialize(_ context.Context, userID string, zoneID *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[userID]; ok {
		return false, nil
	}
	s.states[userID] = store.ZoneStateRecord{
		UserID:    userID,
		ZoneID:    copyID(zoneID),
		Version:   0,
		UpdatedAt: time.Now().UTC(),
	}
	return true, nil
}

func (s *ZoneStateStore) CompareAndSet(_ context.Context, userID string, zoneID *string, expectedVersion int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.states[userID]
	if !ok || rec.Version != expectedVersion {
		return false, nil
	}
	rec.ZoneID = copyID(zoneID)
	rec.Version = expectedVersion + 1
	rec.UpdatedAt = time.Now().UTC()
	s.states[userID] = rec
	return true, nil
}

func (s *ZoneStateStore) List(_ context.Context, limit, offset int) ([]store.ZoneStateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.ZoneStateRecord, 0, len(s.states))
	for _, rec := range s.states {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return page(out, limit, offset), nil
}

// Set force-writes a state row.  Test-only helper.
func (s *ZoneStateStore) Set(userID string, zoneID *string, version int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = store.ZoneStateRecord{
		UserID:    userID,
		ZoneID:    copyID(zoneID),
		Version:   version,
		UpdatedAt: time.Now().UTC(),
	}
}

func copyID(id *string) *string {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
