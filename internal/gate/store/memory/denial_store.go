package memory

import (
	"context"
	"sync"
	"time"

	"github.com/zonegate/server/internal/gate/store"
)

// DenialStore is an in-memory denial log for tests and dev.
type DenialStore struct {
	mu      sync.Mutex
	denials []store.DenialRecord
}

func NewDenialStore() *DenialStore {
	return &DenialStore{}
}

func (s *DenialStore) Record(_ context.Context, rec store.DenialRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denials = append(s.denials, rec)
	return nil
}

func (s *DenialStore) ListRecent(_ context.Context, limit, offset int) ([]store.DenialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.DenialRecord, 0, len(s.denials))
	for i := len(s.denials) - 1; i >= 0; i-- {
		out = append(out, s.denials[i])
	}
	return page(out, limit, offset), nil
}

// Denials returns a copy of all recorded denials.  Test-only helper.
func (s *DenialStore) Denials() []store.DenialRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.DenialRecord, len(s.denials))
	copy(out, s.denials)
	return out
}
