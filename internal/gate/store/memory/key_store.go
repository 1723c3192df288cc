package memory

import (
	"context"
	"sync"

	"github.com/zonegate/server/internal/gate/store"
)

// KeyStore is an in-memory trust store for checkpoint and issuer keys.
type KeyStore struct {
	mu          sync.RWMutex
	checkpoints map[string]store.CheckpointKeyRecord
	issuers     map[string]store.IssuerKeyRecord
}

func NewKeyStore() *KeyStore {
	return &KeyStore{
		checkpoints: make(map[string]store.CheckpointKeyRecord),
		issuers:     make(map[string]store.IssuerKeyRecord),
	}
}

func (s *KeyStore) CheckpointKey(_ context.Context, checkpointCode string) (store.CheckpointKeyRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.checkpoints[checkpointCode]
	return rec, ok, nil
}

func (s *KeyStore) PutCheckpointKey(_ context.Context, rec store.CheckpointKeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[rec.CheckpointCode] = rec
	return nil
}

func (s *KeyStore) IssuerKey(_ context.Context, issuerCode string) (store.IssuerKeyRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.issuers[issuerCode]
	return rec, ok, nil
}

func (s *KeyStore) PutIssuerKey(_ context.Context, rec store.IssuerKeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issuers[rec.IssuerCode] = rec
	return nil
}
