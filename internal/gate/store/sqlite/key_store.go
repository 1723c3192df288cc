package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	dbpkg "github.com/zonegate/server/internal/db"
	"github.com/zonegate/server/internal/gate/store"
)

// KeyStore holds the checkpoint signing keys and token issuer keys.
// Puts upsert so key rotation is a single call.
type KeyStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewKeyStore(db *sql.DB, writer *dbpkg.Worker) *KeyStore {
	return &KeyStore{db: db, writer: writer}
}

func (s *KeyStore) CheckpointKey(ctx context.Context, checkpointCode string) (store.CheckpointKeyRecord, bool, error) {
	var rec store.CheckpointKeyRecord
	err := s.db.QueryRowContext(ctx, `
SELECT checkpoint_code, public_key_pem, key_type FROM checkpoint_keys WHERE checkpoint_code = ?;
`, checkpointCode).Scan(&rec.CheckpointCode, &rec.PublicKeyPEM, &rec.KeyType)
	if err == sql.ErrNoRows {
		return store.CheckpointKeyRecord{}, false, nil
	}
	if err != nil {
		return store.CheckpointKeyRecord{}, false, fmt.Errorf("CheckpointKey query: %w", err)
	}
	return rec, true, nil
}

func (s *KeyStore) PutCheckpointKey(ctx context.Context, rec store.CheckpointKeyRecord) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO checkpoint_keys(checkpoint_code, public_key_pem, key_type)
VALUES (?, ?, ?)
ON CONFLICT(checkpoint_code) DO UPDATE SET
  public_key_pem = excluded.public_key_pem,
  key_type       = excluded.key_type;
`, rec.CheckpointCode, rec.PublicKeyPEM, rec.KeyType); err != nil {
			return fmt.Errorf("PutCheckpointKey upsert: %w", err)
		}
		return nil
	})
}

func (s *KeyStore) IssuerKey(ctx context.Context, issuerCode string) (store.IssuerKeyRecord, bool, error) {
	var rec store.IssuerKeyRecord
	err := s.db.QueryRowContext(ctx, `
SELECT issuer_code, public_key_pem, key_type, algorithm FROM issuer_keys WHERE issuer_code = ?;
`, issuerCode).Scan(&rec.IssuerCode, &rec.PublicKeyPEM, &rec.KeyType, &rec.Algorithm)
	if err == sql.ErrNoRows {
		return store.IssuerKeyRecord{}, false, nil
	}
	if err != nil {
		return store.IssuerKeyRecord{}, false, fmt.Errorf("IssuerKey query: %w", err)
	}
	return rec, true, nil
}

func (s *KeyStore) PutIssuerKey(ctx context.Context, rec store.IssuerKeyRecord) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO issuer_keys(issuer_code, public_key_pem, key_type, algorithm)
VALUES (?, ?, ?, ?)
ON CONFLICT(issuer_code) DO UPDATE SET
  public_key_pem = excluded.public_key_pem,
  key_type       = excluded.key_type,
  algorithm      = excluded.algorithm;
`, rec.IssuerCode, rec.PublicKeyPEM, rec.KeyType, rec.Algorithm); err != nil {
			return fmt.Errorf("PutIssuerKey upsert: %w", err)
		}
		return nil
	})
}
