package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/zonegate/server/internal/gate/store"
)

// Replay rejection reasons.
const (
	ReplayInvalidTimestamp  = "invalid_timestamp"
	ReplayOutOfWindow       = "timestamp_out_of_window"
	ReplayDuplicateEventID  = "duplicate_event_id"
	replayVerificationError = "verification_error"
)

// ReplayResult reports freshness and nonce validation.  Timestamp carries
// the parsed event time when Accepted.
type ReplayResult struct {
	Accepted  bool
	Reason    string
	Details   string
	Timestamp time.Time
}

func replayRejected(reason, details string) ReplayResult {
	return ReplayResult{Reason: reason, Details: details}
}

// ReplayGuardConfig holds the freshness window and nonce lifetime.
type ReplayGuardConfig struct {
	// MaxSkew is the maximum allowed |now - eventTimestamp|, symmetric
	// for past and future.  Defaults to 300s.
	MaxSkew time.Duration

	// NonceTTL is how long a consumed event id stays in the ledger
	// before the reaper may remove it.  Defaults to 86400s.
	NonceTTL time.Duration
}

// ReplayGuard enforces event freshness and exactly-once nonce consumption.
// The atomic insert into the nonce store is the sole arbiter of "first";
// the preceding existence check only produces a cheaper rejection.
type ReplayGuard struct {
	nonces   store.NonceStore
	maxSkew  time.Duration
	nonceTTL time.Duration
	logger   *log.Logger
	now      func() time.Time
}

func NewReplayGuard(nonces store.NonceStore, cfg ReplayGuardConfig, logger *log.Logger) *ReplayGuard {
	if cfg.MaxSkew <= 0 {
		cfg.MaxSkew = 300 * time.Second
	}
	if cfg.NonceTTL <= 0 {
		cfg.NonceTTL = 86400 * time.Second
	}
	return &ReplayGuard{
		nonces:   nonces,
		maxSkew:  cfg.MaxSkew,
		nonceTTL: cfg.NonceTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the guard's clock.  Test-only.
func (g *ReplayGuard) WithClock(now func() time.Time) *ReplayGuard {
	g.now = now
	return g
}

func (g *ReplayGuard) Validate(ctx context.Context, eventID, checkpointCode, timestamp string) ReplayResult {
	eventTime, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		g.logger.Printf("failed to parse timestamp %q: %v", timestamp, err)
		return replayRejected(ReplayInvalidTimestamp, "invalid timestamp format: "+timestamp)
	}
	eventTime = eventTime.UTC()

	now := g.now().UTC()
	skew := now.Sub(eventTime)
	if skew < 0 {
		skew = -skew
	}
	if skew > g.maxSkew {
		g.logger.Printf("event timestamp out of window: event=%s now=%s skew=%s",
			eventTime.Format(time.RFC3339), now.Format(time.RFC3339), skew)
		return replayRejected(ReplayOutOfWindow, fmt.Sprintf(
			"event timestamp is outside allowed skew window (max %ds): event=%s now=%s",
			int64(g.maxSkew.Seconds()), eventTime.Format(time.RFC3339), now.Format(time.RFC3339)))
	}

	exists, err := g.nonces.Exists(ctx, eventID)
	if err != nil {
		g.logger.Printf("nonce lookup failed for %s: %v", eventID, err)
		return replayRejected(replayVerificationError, "nonce lookup failed")
	}
	if exists {
		g.logger.Printf("duplicate event id: %s from checkpoint %s", eventID, checkpointCode)
		return replayRejected(ReplayDuplicateEventID, "event id already used: "+eventID)
	}

	inserted, err := g.nonces.PutIfAbsent(ctx, store.NonceRecord{
		EventID:        eventID,
		CheckpointCode: checkpointCode,
		EventTimestamp: eventTime,
		ExpiresAt:      now.Add(g.nonceTTL),
	})
	if err != nil {
		g.logger.Printf("nonce insert failed for %s: %v", eventID, err)
		return replayRejected(replayVerificationError, "nonce insert failed")
	}
	if !inserted {
		// Lost the race to a concurrent identical request.
		g.logger.Printf("duplicate event id (insert race): %s from checkpoint %s", eventID, checkpointCode)
		return replayRejected(ReplayDuplicateEventID, "event id already used: "+eventID)
	}

	return ReplayResult{Accepted: true, Timestamp: eventTime}
}
