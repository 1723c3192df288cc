package store

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateCode is returned by directory create operations when a
// zone/user/checkpoint code (or access-rule pair) already exists.
var ErrDuplicateCode = errors.New("code already exists")

type ZoneRecord struct {
	ID        string
	Code      string
	CreatedAt time.Time
}

type UserRecord struct {
	ID        string
	Code      string
	CreatedAt time.Time
}

// CheckpointRecord describes a gate between two zones.  A nil FromZoneID or
// ToZoneID means "outside"; a checkpoint with nil ToZoneID is the exit
// checkpoint for its FromZoneID.
type CheckpointRecord struct {
	ID         string
	Code       string
	FromZoneID *string
	ToZoneID   *string
	CreatedAt  time.Time
}

// AccessRuleRecord is a destination-only allowlist entry.  There is no
// source-zone column; authorization depends solely on the destination.
type AccessRuleRecord struct {
	ID        string
	UserID    string
	ToZoneID  string
	CreatedAt time.Time
}

// DirectoryStore holds the admin-managed topology: zones, users,
// checkpoints and access rules.  The transition pipeline only reads it.
type DirectoryStore interface {
	CreateZone(ctx context.Context, code string) (ZoneRecord, error)
	ZoneByID(ctx context.Context, id string) (ZoneRecord, bool, error)
	ZoneByCode(ctx context.Context, code string) (ZoneRecord, bool, error)
	ListZones(ctx context.Context, limit, offset int) ([]ZoneRecord, error)
	DeleteZone(ctx context.Context, id string) (bool, error)

	CreateUser(ctx context.Context, code string) (UserRecord, error)
	UserByID(ctx context.Context, id string) (UserRecord, bool, error)
	UserByCode(ctx context.Context, code string) (UserRecord, bool, error)
	ListUsers(ctx context.Context, limit, offset int) ([]UserRecord, error)
	DeleteUser(ctx context.Context, id string) (bool, error)

	CreateCheckpoint(ctx context.Context, code string, fromZoneID, toZoneID *string) (CheckpointRecord, error)
	CheckpointByID(ctx context.Context, id string) (CheckpointRecord, bool, error)
	CheckpointByCode(ctx context.Context, code string) (CheckpointRecord, bool, error)
	ListCheckpoints(ctx context.Context, limit, offset int) ([]CheckpointRecord, error)
	DeleteCheckpoint(ctx context.Context, id string) (bool, error)

	CreateAccessRule(ctx context.Context, userID, toZoneID string) (AccessRuleRecord, error)
	AccessRuleByID(ctx context.Context, id string) (AccessRuleRecord, bool, error)
	ListAccessRules(ctx context.Context, limit, offset int) ([]AccessRuleRecord, error)
	DeleteAccessRule(ctx context.Context, id string) (bool, error)

	// HasAccess reports whether an access rule grants userID entry to
	// toZoneID.
	HasAccess(ctx context.Context, userID, toZoneID string) (bool, error)

	// HasExit reports whether any checkpoint leads from fromZoneID to
	// outside (nil to-zone).
	HasExit(ctx context.Context, fromZoneID string) (bool, error)
}

// ZoneStateRecord is the per-user current-zone row.  A nil ZoneID means the
// user is outside.  Version increases by one on every committed update and
// is the sole concurrency-control token.
type ZoneStateRecord struct {
	UserID    string
	ZoneID    *string
	Version   int64
	UpdatedAt time.Time
}

type ZoneStateStore interface {
	// Read returns the user's state, or found=false if no row exists yet.
	Read(ctx context.Context, userID string) (ZoneStateRecord, bool, error)

	// Initialize creates a version-0 row only if none exists.  Returns
	// false when another writer won the race; callers re-read.
	Initialize(ctx context.Context, userID string, zoneID *string) (bool, error)

	// CompareAndSet commits zoneID and version expectedVersion+1 only if
	// the stored version still equals expectedVersion.  Implemented as a
	// single conditional write; returns false on conflict without
	// mutating anything.
	CompareAndSet(ctx context.Context, userID string, zoneID *string, expectedVersion int64) (bool, error)

	// List returns current states for the reporting surface.
	List(ctx context.Context, limit, offset int) ([]ZoneStateRecord, error)
}

// NonceRecord is an entry in the replay ledger, distinct from the audit
// event log.
type NonceRecord struct {
	EventID        string
	CheckpointCode string
	EventTimestamp time.Time
	ExpiresAt      time.Time
}

type NonceStore interface {
	Exists(ctx context.Context, eventID string) (bool, error)

	// PutIfAbsent inserts the nonce atomically and reports whether this
	// caller won.  The insertion is the sole arbiter of "first".
	PutIfAbsent(ctx context.Context, rec NonceRecord) (bool, error)

	// DeleteExpired removes nonces whose expiry is before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// EventRecord is the append-only audit record, written only on Allow.
type EventRecord struct {
	EventID      string
	CheckpointID string
	UserID       string
	FromZoneID   *string
	ToZoneID     *string
	Timestamp    time.Time
	RecordedAt   time.Time
}

type EventStore interface {
	Append(ctx context.Context, rec EventRecord) error
	ListRecent(ctx context.Context, limit, offset int) ([]EventRecord, error)
}

// Denial categories stored alongside the wire-level reason code.
const (
	DenialSignatureInvalid = "SIGNATURE_INVALID"
	DenialTokenInvalid     = "TOKEN_INVALID"
	DenialReplay           = "REPLAY"
	DenialAccessDenied     = "ACCESS_DENIED"
	DenialStateMismatch    = "STATE_MISMATCH"
	DenialInternalError    = "INTERNAL_ERROR"
)

// DenialRecord explains why an event was rejected.  Identifier fields are
// nil when the corresponding code never resolved; code fields are empty
// when the caller did not supply them.
type DenialRecord struct {
	EventID        string
	CheckpointID   *string
	CheckpointCode string
	UserID         *string
	UserCode       string
	FromZoneID     *string
	FromZoneCode   string
	ToZoneID       *string
	ToZoneCode     string
	Reason         string
	Details        string
	CreatedAt      time.Time
}

type DenialStore interface {
	Record(ctx context.Context, rec DenialRecord) error
	ListRecent(ctx context.Context, limit, offset int) ([]DenialRecord, error)
}

// CheckpointKeyRecord is the trust-store entry for a checkpoint's signing
// key.  KeyType is "RSA" or "ECDSA".
type CheckpointKeyRecord struct {
	CheckpointCode string
	PublicKeyPEM   string
	KeyType        string
}

// IssuerKeyRecord is the trust-store entry for a token issuer.  Algorithm,
// when set, overrides whatever the token self-declares.
type IssuerKeyRecord struct {
	IssuerCode   string
	PublicKeyPEM string
	KeyType      string
	Algorithm    string
}

type KeyStore interface {
	CheckpointKey(ctx context.Context, checkpointCode string) (CheckpointKeyRecord, bool, error)
	PutCheckpointKey(ctx context.Context, rec CheckpointKeyRecord) error
	IssuerKey(ctx context.Context, issuerCode string) (IssuerKeyRecord, bool, error)
	PutIssuerKey(ctx context.Context, rec IssuerKeyRecord) error
}
