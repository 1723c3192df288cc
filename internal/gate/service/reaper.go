package service

import (
	"context"
	"log"
	"time"

	"github.com/zonegate/server/internal/gate/store"
)

// NonceReaper periodically deletes expired replay-ledger entries.  It runs
// as a background goroutine and is safe to stop via its context or the
// Stop method.
//
// Expired here means past the nonce TTL, which far exceeds the timestamp
// skew window; a reaped event id can no longer pass the freshness check,
// so reaping never reopens a replay window.
type NonceReaper struct {
	store    store.NonceStore
	interval time.Duration
	logger   *log.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// ReaperConfig holds the parameters for NewNonceReaper.
type ReaperConfig struct {
	// IntervalHours is how often the reaper runs.  0 disables it.
	IntervalHours int
}

// NewNonceReaper creates a reaper but does not start it.
// Call Start to begin the background loop.
func NewNonceReaper(s store.NonceStore, cfg ReaperConfig, logger *log.Logger) *NonceReaper {
	return &NonceReaper{
		store:    s,
		interval: time.Duration(cfg.IntervalHours) * time.Hour,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins the background loop.  It runs an immediate sweep on
// startup, then repeats on the configured interval.  The loop exits when
// ctx is cancelled or Stop is called.
func (r *NonceReaper) Start(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Printf("nonce reaper disabled (interval=0)")
		close(r.done)
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)

	go r.loop(ctx)

	r.logger.Printf("nonce reaper started (interval=%dh)", int(r.interval.Hours()))
}

// Stop signals the reaper to exit and waits for it to finish.
func (r *NonceReaper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.done
}

func (r *NonceReaper) loop(ctx context.Context) {
	defer close(r.done)

	// Sweep immediately on startup to clean up any backlog.
	r.reap(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reap(ctx)
		}
	}
}

func (r *NonceReaper) reap(ctx context.Context) {
	deleted, err := r.store.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		r.logger.Printf("nonce reap error: %v", err)
		return
	}
	if deleted > 0 {
		r.logger.Printf("nonce reap: deleted %d expired entries", deleted)
	}
}
