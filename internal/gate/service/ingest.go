package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"time"

	"github.com/zonegate/server/internal/gate/store"
	"github.com/zonegate/server/internal/gate/types"
)

// IngestResult is the terminal outcome of one checkpoint report.
type IngestResult struct {
	Accepted bool
	Reason   string
	Details  string
	UserCode string
}

// Ingest runs the full verification pipeline for an untrusted checkpoint
// report: replay guard, canonical-payload signature check, user-token
// check, then the transactional transition.  Any failing stage
// short-circuits to a denial, which is persisted before the result is
// returned.
//
// Denials rejected by the coordinator are recorded twice: once inside the
// coordinator with resolved identifiers and once here with the caller's
// raw codes.  Kept from the original system as a hedge against partial
// rollback; audit consumers dedupe by event id.
type Ingest struct {
	replay      *ReplayGuard
	signatures  *SignatureVerifier
	tokens      *TokenVerifier
	coordinator *TransitionCoordinator
	denials     *DenialRecorder
	logger      *log.Logger
}

func NewIngest(
	replay *ReplayGuard,
	signatures *SignatureVerifier,
	tokens *TokenVerifier,
	coordinator *TransitionCoordinator,
	denials *DenialRecorder,
	logger *log.Logger,
) *Ingest {
	return &Ingest{
		replay:      replay,
		signatures:  signatures,
		tokens:      tokens,
		coordinator: coordinator,
		denials:     denials,
		logger:      logger,
	}
}

func (s *Ingest) Process(ctx context.Context, req types.IngestEventRequest) IngestResult {
	replay := s.replay.Validate(ctx, req.EventID, req.CheckpointID, req.Timestamp)
	if !replay.Accepted {
		s.denials.Record(ctx, store.DenialRecord{
			EventID:        req.EventID,
			CheckpointCode: req.CheckpointID,
			Reason:         store.DenialReplay,
			Details:        fmt.Sprintf("anti-replay validation failed: %s - %s", replay.Reason, replay.Details),
			CreatedAt:      time.Now().UTC(),
		})
		return IngestResult{Reason: replay.Reason, Details: replay.Details}
	}

	// Rebuild the canonical bytes the checkpoint signed and pair them
	// with the reported signature for verification.
	canonical := CanonicalPayload(req.CheckpointID, req.Timestamp, req.FromZone, req.ToZone, req.UserToken)
	signedPackage := base64.StdEncoding.EncodeToString(canonical) + "|" + req.Signature

	sig := s.signatures.Verify(ctx, req.CheckpointID, signedPackage)
	if !sig.Valid {
		s.denials.Record(ctx, store.DenialRecord{
			EventID:        req.EventID,
			CheckpointCode: req.CheckpointID,
			Reason:         store.DenialSignatureInvalid,
			Details:        fmt.Sprintf("signature verification failed: %s - %s", sig.Reason, sig.Details),
			CreatedAt:      time.Now().UTC(),
		})
		return IngestResult{Reason: "signature_verification_failed", Details: sig.Reason}
	}

	tok := s.tokens.Verify(ctx, req.UserToken)
	if !tok.Valid {
		s.denials.Record(ctx, store.DenialRecord{
			EventID:        req.EventID,
			CheckpointCode: req.CheckpointID,
			Reason:         store.DenialTokenInvalid,
			Details:        fmt.Sprintf("token verification failed: %s - %s", tok.Reason, tok.Details),
			CreatedAt:      time.Now().UTC(),
		})
		return IngestResult{Reason: "token_verification_failed", Details: tok.Reason}
	}

	out := s.coordinator.Process(ctx, TransitionRequest{
		EventID:        req.EventID,
		CheckpointCode: req.CheckpointID,
		UserCode:       tok.Subject,
		FromZone:       req.FromZone,
		ToZone:         req.ToZone,
		Timestamp:      replay.Timestamp,
	})
	if !out.Allowed {
		s.denials.Record(ctx, store.DenialRecord{
			EventID:        req.EventID,
			CheckpointCode: req.CheckpointID,
			UserCode:       tok.Subject,
			FromZoneCode:   req.FromZone,
			ToZoneCode:     req.ToZone,
			Reason:         denialCategory(out.Reason),
			Details:        out.Details,
			CreatedAt:      time.Now().UTC(),
		})
		return IngestResult{Reason: out.Reason, Details: out.Details, UserCode: tok.Subject}
	}

	return IngestResult{Accepted: true, UserCode: tok.Subject}
}

// denialCategory maps a wire-level denial reason to its stored category.
func denialCategory(reason string) string {
	switch reason {
	case ReasonAccessDenied, ReasonNoExitPath:
		return store.DenialAccessDenied
	case ReasonStateMismatch, ReasonStateUpdateFailed:
		return store.DenialStateMismatch
	default:
		return store.DenialInternalError
	}
}
