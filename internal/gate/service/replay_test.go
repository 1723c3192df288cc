package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/zonegate/server/internal/gate/service"
	"github.com/zonegate/server/internal/gate/store/memory"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestReplayGuard_AcceptsFreshEvent(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	g := service.NewReplayGuard(memory.NewNonceStore(), service.ReplayGuardConfig{
		MaxSkew: 300 * time.Second,
	}, silentLogger()).WithClock(fixedClock(now))

	res := g.Validate(context.Background(), "evt-1", "CP-1", "2026-01-02T03:03:05Z")
	if !res.Accepted {
		t.Fatalf("expected accepted, got reason=%s details=%s", res.Reason, res.Details)
	}
	want := time.Date(2026, 1, 2, 3, 3, 5, 0, time.UTC)
	if !res.Timestamp.Equal(want) {
		t.Errorf("parsed timestamp = %s, want %s", res.Timestamp, want)
	}
}

func TestReplayGuard_InvalidTimestamp(t *testing.T) {
	g := service.NewReplayGuard(memory.NewNonceStore(), service.ReplayGuardConfig{}, silentLogger())

	for _, ts := range []string{"", "not-a-time", "2026-01-02 03:04:05", "2026-13-99T99:99:99Z"} {
		res := g.Validate(context.Background(), "evt-1", "CP-1", ts)
		if res.Accepted || res.Reason != service.ReplayInvalidTimestamp {
			t.Errorf("timestamp %q: got accepted=%v reason=%s, want %s", ts, res.Accepted, res.Reason, service.ReplayInvalidTimestamp)
		}
	}
}

func TestReplayGuard_OutOfWindow(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	g := service.NewReplayGuard(memory.NewNonceStore(), service.ReplayGuardConfig{
		MaxSkew: 300 * time.Second,
	}, silentLogger()).WithClock(fixedClock(now))

	// Too old.
	res := g.Validate(context.Background(), "evt-old", "CP-1", "2026-01-02T02:58:00Z")
	if res.Accepted || res.Reason != service.ReplayOutOfWindow {
		t.Errorf("old event: got accepted=%v reason=%s, want %s", res.Accepted, res.Reason, service.ReplayOutOfWindow)
	}

	// Too far in the future; the window is symmetric.
	res = g.Validate(context.Background(), "evt-future", "CP-1", "2026-01-02T03:10:00Z")
	if res.Accepted || res.Reason != service.ReplayOutOfWindow {
		t.Errorf("future event: got accepted=%v reason=%s, want %s", res.Accepted, res.Reason, service.ReplayOutOfWindow)
	}

	// Exactly at the boundary is allowed.
	res = g.Validate(context.Background(), "evt-edge", "CP-1", "2026-01-02T02:59:05Z")
	if !res.Accepted {
		t.Errorf("boundary event: got reason=%s, want accepted", res.Reason)
	}
}

func TestReplayGuard_DuplicateEventID(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	g := service.NewReplayGuard(memory.NewNonceStore(), service.ReplayGuardConfig{}, silentLogger()).
		WithClock(fixedClock(now))

	first := g.Validate(context.Background(), "evt-dup", "CP-1", "2026-01-02T03:04:00Z")
	if !first.Accepted {
		t.Fatalf("first event rejected: %s", first.Reason)
	}

	second := g.Validate(context.Background(), "evt-dup", "CP-1", "2026-01-02T03:04:00Z")
	if second.Accepted || second.Reason != service.ReplayDuplicateEventID {
		t.Errorf("replay: got accepted=%v reason=%s, want %s", second.Accepted, second.Reason, service.ReplayDuplicateEventID)
	}

	// Same id from a different checkpoint is still a replay.
	third := g.Validate(context.Background(), "evt-dup", "CP-2", "2026-01-02T03:04:00Z")
	if third.Accepted || third.Reason != service.ReplayDuplicateEventID {
		t.Errorf("cross-checkpoint replay: got accepted=%v reason=%s, want %s", third.Accepted, third.Reason, service.ReplayDuplicateEventID)
	}
}
