package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zonegate/server/internal/gate/store"
)

// Coordinator denial reasons, as returned on the wire.
const (
	ReasonCheckpointNotFound = "checkpoint_not_found"
	ReasonUserNotFound       = "user_not_found"
	ReasonZoneNotFound       = "zone_not_found"
	ReasonNoExitPath         = "no_exit_path"
	ReasonAccessDenied       = "access_denied"
	ReasonStateMismatch      = "state_mismatch"
	ReasonStateUpdateFailed  = "state_update_failed"
	ReasonEventRecordFailed  = "event_record_failed"
)

// TransitionRequest is a checkpoint report whose signature, token and
// nonce have already been validated upstream.
type TransitionRequest struct {
	EventID        string
	CheckpointCode string
	UserCode       string
	FromZone       string
	ToZone         string
	Timestamp      time.Time
}

// TransitionOutcome is the terminal Allow/Deny decision for one event.
type TransitionOutcome struct {
	Allowed bool
	Reason  string
	Details string
}

// CoordinatorConfig bounds the compare-and-set retry loop.
type CoordinatorConfig struct {
	// MaxAttempts caps state-update retries on version conflict.
	// Defaults to 3.
	MaxAttempts int

	// Backoff returns the delay before retry attempt+1.  Defaults to
	// 10ms, 20ms, 30ms...
	Backoff func(attempt int) time.Duration
}

// TransitionCoordinator executes the policy-checked state transition:
// resolve codes, check exit topology, evaluate the access allowlist,
// require the stored zone to match the claimed source, then commit via
// compare-and-set and append the audit event.  Every deny path records a
// denial with as much resolved context as it got.
//
// The nonce insert and the version-conditional update are each a single
// atomic store operation, so the coordinator is correct across multiple
// server processes without any in-process locking.  The state commit and
// the event append are separate writes: an append failure after a
// committed state change is surfaced as event_record_failed rather than
// rolled back.
type TransitionCoordinator struct {
	dir         store.DirectoryStore
	policy      *PolicyEvaluator
	states      store.ZoneStateStore
	events      store.EventStore
	denials     *DenialRecorder
	metrics     *Metrics
	logger      *log.Logger
	maxAttempts int
	backoff     func(attempt int) time.Duration
}

func NewTransitionCoordinator(
	dir store.DirectoryStore,
	policy *PolicyEvaluator,
	states store.ZoneStateStore,
	events store.EventStore,
	denials *DenialRecorder,
	metrics *Metrics,
	cfg CoordinatorConfig,
	logger *log.Logger,
) *TransitionCoordinator {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = func(attempt int) time.Duration {
			return time.Duration(attempt+1) * 10 * time.Millisecond
		}
	}
	return &TransitionCoordinator{
		dir:         dir,
		policy:      policy,
		states:      states,
		events:      events,
		denials:     denials,
		metrics:     metrics,
		logger:      logger,
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

// IsOutside reports whether a zone code names the outside sentinel.
func IsOutside(code string) bool {
	code = strings.TrimSpace(code)
	return code == "" || code == OutsideZone
}

func (c *TransitionCoordinator) Process(ctx context.Context, req TransitionRequest) TransitionOutcome {
	// Denial context, enriched as resolution progresses.
	d := store.DenialRecord{
		EventID:        req.EventID,
		CheckpointCode: req.CheckpointCode,
		UserCode:       req.UserCode,
		FromZoneCode:   req.FromZone,
		ToZoneCode:     req.ToZone,
	}

	cp, found, err := c.dir.CheckpointByCode(ctx, req.CheckpointCode)
	if err != nil || !found {
		if err != nil {
			c.logger.Printf("checkpoint lookup failed for %s: %v", req.CheckpointCode, err)
		}
		return c.deny(ctx, d, store.DenialInternalError, ReasonCheckpointNotFound,
			"checkpoint not found: "+req.CheckpointCode)
	}
	d.CheckpointID = &cp.ID

	user, found, err := c.dir.UserByCode(ctx, req.UserCode)
	if err != nil || !found {
		if err != nil {
			c.logger.Printf("user lookup failed for %s: %v", req.UserCode, err)
		}
		return c.deny(ctx, d, store.DenialInternalError, ReasonUserNotFound,
			"user not found: "+req.UserCode)
	}
	d.UserID = &user.ID

	fromOutside := IsOutside(req.FromZone)
	toOutside := IsOutside(req.ToZone)

	var fromZoneID *string
	if !fromOutside {
		if z, ok, err := c.dir.ZoneByCode(ctx, strings.TrimSpace(req.FromZone)); err == nil && ok {
			fromZoneID = &z.ID
			d.FromZoneID = &z.ID
		}
		// An unresolved source zone is not denied here: no stored state
		// can ever equal it, so it falls out as a state mismatch below.
	}

	var toZoneID *string
	if !toOutside {
		z, ok, err := c.dir.ZoneByCode(ctx, strings.TrimSpace(req.ToZone))
		if err != nil || !ok {
			if err != nil {
				c.logger.Printf("zone lookup failed for %s: %v", req.ToZone, err)
			}
			return c.deny(ctx, d, store.DenialInternalError, ReasonZoneNotFound,
				"to zone not found: "+req.ToZone)
		}
		toZoneID = &z.ID
		d.ToZoneID = &z.ID
	}

	// Exit topology: leaving to outside requires a configured exit
	// checkpoint for the source zone.  Independent of per-user policy.
	if toOutside {
		hasExit := false
		if fromZoneID != nil {
			hasExit, err = c.dir.HasExit(ctx, *fromZoneID)
			if err != nil {
				c.logger.Printf("exit lookup failed for zone %s: %v", *fromZoneID, err)
				hasExit = false
			}
		}
		if !hasExit {
			from := strings.TrimSpace(req.FromZone)
			if from == "" {
				from = "UNKNOWN"
			}
			return c.deny(ctx, d, store.DenialAccessDenied, ReasonNoExitPath,
				fmt.Sprintf("zone %q has no configured exit to %s", from, OutsideZone))
		}
	}

	allowed, err := c.policy.CanTransit(ctx, user.ID, fromZoneID, toZoneID)
	if err != nil {
		c.logger.Printf("access rule lookup failed for user %s: %v", req.UserCode, err)
		allowed = false
	}
	if !allowed {
		return c.deny(ctx, d, store.DenialAccessDenied, ReasonAccessDenied,
			"access rule not found or denied")
	}

	// The stored zone must equal the claimed source exactly; outside to
	// outside counts as equal, and an uninitialized user is outside.
	stored := c.readStoredZone(ctx, user.ID)
	match := false
	if fromOutside {
		match = stored == nil
	} else {
		match = fromZoneID != nil && stored != nil && *stored == *fromZoneID
	}
	if !match {
		return c.deny(ctx, d, store.DenialStateMismatch, ReasonStateMismatch,
			fmt.Sprintf("user state mismatch: user is currently in zone %q, but transition requires from zone %q",
				c.zoneCode(ctx, stored), zoneOrOut(req.FromZone)))
	}

	if !c.commitState(ctx, user.ID, toZoneID) {
		return c.deny(ctx, d, store.DenialStateMismatch, ReasonStateUpdateFailed,
			fmt.Sprintf("failed to update user state after %d attempts due to concurrent modifications", c.maxAttempts))
	}

	if err := c.events.Append(ctx, store.EventRecord{
		EventID:      req.EventID,
		CheckpointID: cp.ID,
		UserID:       user.ID,
		FromZoneID:   fromZoneID,
		ToZoneID:     toZoneID,
		Timestamp:    req.Timestamp,
		RecordedAt:   time.Now().UTC(),
	}); err != nil {
		// The state change already committed; see package notes.
		c.logger.Printf("failed to record event %s: %v", req.EventID, err)
		return c.deny(ctx, d, store.DenialInternalError, ReasonEventRecordFailed,
			"failed to record event: "+err.Error())
	}

	c.metrics.Success(ctx)
	c.logger.Printf("event processed: event=%s user=%s from=%s to=%s",
		req.EventID, req.UserCode, zoneOrOut(req.FromZone), zoneOrOut(req.ToZone))
	return TransitionOutcome{Allowed: true}
}

// readStoredZone returns the user's current zone id, nil meaning outside.
// An uninitialized user is outside; lookup failures are also treated as
// outside, which the state-match check then rejects for any in-zone claim.
func (c *TransitionCoordinator) readStoredZone(ctx context.Context, userID string) *string {
	rec, found, err := c.states.Read(ctx, userID)
	if err != nil {
		c.logger.Printf("state read failed for user %s: %v", userID, err)
		return nil
	}
	if !found {
		return nil
	}
	return rec.ZoneID
}

// commitState moves the user to toZoneID with bounded optimistic retries.
// A missing row is initialized at version 0; otherwise a single
// version-conditional write commits, and a conflict triggers a fresh read
// after a short increasing delay.
func (c *TransitionCoordinator) commitState(ctx context.Context, userID string, toZoneID *string) bool {
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if !sleepContext(ctx, c.backoff(attempt-1)) {
				return false
			}
		}

		rec, found, err := c.states.Read(ctx, userID)
		if err != nil {
			c.logger.Printf("state read failed for user %s: %v", userID, err)
			continue
		}

		if !found {
			created, err := c.states.Initialize(ctx, userID, toZoneID)
			if err != nil {
				c.logger.Printf("state initialize failed for user %s: %v", userID, err)
				continue
			}
			if created {
				return true
			}
			// Lost the initialization race; re-read next attempt.
			continue
		}

		ok, err := c.states.CompareAndSet(ctx, userID, toZoneID, rec.Version)
		if err != nil {
			c.logger.Printf("state update failed for user %s: %v", userID, err)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// zoneCode resolves a zone id to its code for denial messages, falling
// back to the outside sentinel.
func (c *TransitionCoordinator) zoneCode(ctx context.Context, zoneID *string) string {
	if zoneID == nil {
		return OutsideZone
	}
	if z, ok, err := c.dir.ZoneByID(ctx, *zoneID); err == nil && ok {
		return z.Code
	}
	return *zoneID
}

func zoneOrOut(code string) string {
	if IsOutside(code) {
		return OutsideZone
	}
	return strings.TrimSpace(code)
}

func (c *TransitionCoordinator) deny(ctx context.Context, d store.DenialRecord, category, reason, details string) TransitionOutcome {
	d.Reason = category
	d.Details = details
	d.CreatedAt = time.Now().UTC()
	c.denials.Record(ctx, d)
	return TransitionOutcome{Reason: reason, Details: details}
}

// sleepContext waits for d or until ctx is done; reports whether the full
// delay elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
