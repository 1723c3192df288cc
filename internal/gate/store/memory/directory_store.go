package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zonegate/server/internal/gate/store"
)

// DirectoryStore is an in-memory topology store for tests and dev.
type DirectoryStore struct {
	mu          sync.RWMutex
	zones       map[string]store.ZoneRecord       // by id
	users       map[string]store.UserRecord       // by id
	checkpoints map[string]store.CheckpointRecord // by id
	rules       map[string]store.AccessRuleRecord // by id
}

func NewDirectoryStore() *DirectoryStore {
	return &DirectoryStore{
		zones:       make(map[string]store.ZoneRecord),
		users:       make(map[string]store.UserRecord),
		checkpoints: make(map[string]store.CheckpointRecord),
		rules:       make(map[string]store.AccessRuleRecord),
	}
}

func (s *DirectoryStore) CreateZone(_ context.Context, code string) (store.ZoneRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, z := range s.zones {
		if z.Code == code {
			return store.ZoneRecord{}, store.ErrDuplicateCode
		}
	}
	rec := store.ZoneRecord{ID: uuid.NewString(), Code: code, CreatedAt: time.Now().UTC()}
	s.zones[rec.ID] = rec
	return rec, nil
}

func (s *DirectoryStore) ZoneByID(_ context.Context, id string) (store.ZoneRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, ok := s.zones[id]
	return z, ok, nil
}

func (s *DirectoryStore) ZoneByCode(_ context.Context, code string) (store.ZoneRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, z := range s.zones {
		if z.Code == code {
			return z, true, nil
		}
	}
	return store.ZoneRecord{}, false, nil
}

func (s *DirectoryStore) ListZones(_ context.Context, limit, offset int) ([]store.ZoneRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.ZoneRecord, 0, len(s.zones))
	for _, z := range s.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return page(out, limit, offset), nil
}

func (s *DirectoryStore) DeleteZone(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.zones[id]; !ok {
		return false, nil
	}
	delete(s.zones, id)
	return true, nil
}

func (s *DirectoryStore) CreateUser(_ context.Context, code string) (store.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Code == code {
			return store.UserRecord{}, store.ErrDuplicateCode
		}
	}
	rec := store.UserRecord{ID: uuid.NewString(), Code: code, CreatedAt: time.Now().UTC()}
	s.users[rec.ID] = rec
	return rec, nil
}

func (s *DirectoryStore) UserByID(_ context.Context, id string) (store.UserRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *DirectoryStore) UserByCode(_ context.Context, code string) (store.UserRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Code == code {
			return u, true, nil
		}
	}
	return store.UserRecord{}, false, nil
}

func (s *DirectoryStore) ListUsers(_ context.Context, limit, offset int) ([]store.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.UserRecord, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return page(out, limit, offset), nil
}

func (s *DirectoryStore) DeleteUser(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return false, nil
	}
	delete(s.users, id)
	return true, nil
}

func (s *DirectoryStore) CreateCheckpoint(_ context.Context, code string, fromZoneID, toZoneID *string) (store.CheckpointRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.checkpoints {
		if c.Code == code {
			return store.CheckpointRecord{}, store.ErrDuplicateCode
		}
	}
	rec := store.CheckpointRecord{
		ID:         uuid.NewString(),
		Code:       code,
		FromZoneID: fromZoneID,
		ToZoneID:   toZoneID,
		CreatedAt:  time.Now().UTC(),
	}
	s.checkpoints[rec.ID] = rec
	return rec, nil
}

func (s *DirectoryStore) CheckpointByID(_ context.Context, id string) (store.CheckpointRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.checkpoints[id]
	return c, ok, nil
}

func (s *DirectoryStore) CheckpointByCode(_ context.Context, code string) (store.CheckpointRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.checkpoints {
		if c.Code == code {
			return c, true, nil
		}
	}
	return store.CheckpointRecord{}, false, nil
}

func (s *DirectoryStore) ListCheckpoints(_ context.Context, limit, offset int) ([]store.CheckpointRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.CheckpointRecord, 0, len(s.checkpoints))
	for _, c := range s.checkpoints {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return page(out, limit, offset), nil
}

func (s *DirectoryStore) DeleteCheckpoint(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.checkpoints[id]; !ok {
		return false, nil
	}
	delete(s.checkpoints, id)
	return true, nil
}

func (s *DirectoryStore) CreateAccessRule(_ context.Context, userID, toZoneID string) (store.AccessRuleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.UserID == userID && r.ToZoneID == toZoneID {
			return store.AccessRuleRecord{}, store.ErrDuplicateCode
		}
	}
	rec := store.AccessRuleRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		ToZoneID:  toZoneID,
		CreatedAt: time.Now().UTC(),
	}
	s.rules[rec.ID] = rec
	return rec, nil
}

func (s *DirectoryStore) AccessRuleByID(_ context.Context, id string) (store.AccessRuleRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	return r, ok, nil
}

func (s *DirectoryStore) ListAccessRules(_ context.Context, limit, offset int) ([]store.AccessRuleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.AccessRuleRecord, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (s *DirectoryStore) DeleteAccessRule(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return false, nil
	}
	delete(s.rules, id)
	return true, nil
}

func (s *DirectoryStore) HasAccess(_ context.Context, userID, toZoneID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rules {
		if r.UserID == userID && r.ToZoneID == toZoneID {
			return true, nil
		}
	}
	return false, nil
}

func (s *DirectoryStore) HasExit(_ context.Context, fromZoneID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.checkpoints {
		if c.ToZoneID == nil && c.FromZoneID != nil && *c.FromZoneID == fromZoneID {
			return true, nil
		}
	}
	return false, nil
}

func page[T any](in []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
