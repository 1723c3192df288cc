package memory

import (
	"context"
	"sync"
	"time"

	"github.com/zonegate/server/internal/gate/store"
)

// NonceStore is an in-memory replay ledger.  PutIfAbsent is atomic under
// the mutex, mirroring the SQLite insert-or-ignore arbitration.
type NonceStore struct {
	mu     sync.Mutex
	nonces map[string]store.NonceRecord
}

func NewNonceStore() *NonceStore {
	return &NonceStore{nonces: make(map[string]store.NonceRecord)}
}

func (s *NonceStore) Exists(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nonces[eventID]
	return ok, nil
}

func (s *NonceStore) PutIfAbsent(_ context.Context, rec store.NonceRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nonces[rec.EventID]; ok {
		return false, nil
	}
	s.nonces[rec.EventID] = rec
	return true, nil
}

func (s *NonceStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, rec := range s.nonces {
		if rec.ExpiresAt.Before(now) {
			delete(s.nonces, id)
			deleted++
		}
	}
	return deleted, nil
}
