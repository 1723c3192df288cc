package memory

import (
	"context"
	"sync"
	"time"

	"github.com/zonegate/server/internal/gate/store"
)

// EventStore is an in-memory append-only audit log for tests and dev.
type EventStore struct {
	mu     sync.Mutex
	events []store.EventRecord
}

func NewEventStore() *EventStore {
	return &EventStore{}
}

func (s *EventStore) Append(_ context.Context, rec store.EventRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, rec)
	return nil
}

func (s *EventStore) ListRecent(_ context.Context, limit, offset int) ([]store.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Newest first, matching the reporting surface.
	out := make([]store.EventRecord, 0, len(s.events))
	for i := len(s.events) - 1; i >= 0; i-- {
		out = append(out, s.events[i])
	}
	return page(out, limit, offset), nil
}

// Events returns a copy of all appended events.  Test-only helper.
func (s *EventStore) Events() []store.EventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.EventRecord, len(s.events))
	copy(out, s.events)
	return out
}
