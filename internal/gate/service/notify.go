package service

import (
	"context"
	"log"

	"github.com/zonegate/server/internal/gate/store"
)

// Notifier receives denial records after they are durably persisted.
// Delivery is best-effort: errors are logged by the caller and never
// affect persistence or the HTTP response.
type Notifier interface {
	NotifyDenial(ctx context.Context, rec store.DenialRecord) error
}

// LogNotifier writes denial notifications to the server log.
type LogNotifier struct {
	logger *log.Logger
}

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyDenial(_ context.Context, rec store.DenialRecord) error {
	n.logger.Printf("denial: event=%s checkpoint=%s user=%s from=%s to=%s reason=%s details=%s",
		rec.EventID, rec.CheckpointCode, rec.UserCode, rec.FromZoneCode, rec.ToZoneCode,
		rec.Reason, rec.Details)
	return nil
}

// ChannelNotifier delivers denial records to a caller-owned channel.  Used
// by tests that need to observe notifications without shared process
// state; a full channel drops the notification rather than blocking.
type ChannelNotifier struct {
	ch chan<- store.DenialRecord
}

func NewChannelNotifier(ch chan<- store.DenialRecord) *ChannelNotifier {
	return &ChannelNotifier{ch: ch}
}

func (n *ChannelNotifier) NotifyDenial(_ context.Context, rec store.DenialRecord) error {
	select {
	case n.ch <- rec:
	default:
	}
	return nil
}

// DenialRecorder persists denials, bumps the denial counter and fans out
// best-effort notifications.  Persistence happens synchronously before the
// caller responds; notification failures are logged and swallowed.
type DenialRecorder struct {
	store    store.DenialStore
	notifier Notifier
	metrics  *Metrics
	logger   *log.Logger
}

func NewDenialRecorder(st store.DenialStore, notifier Notifier, metrics *Metrics, logger *log.Logger) *DenialRecorder {
	return &DenialRecorder{store: st, notifier: notifier, metrics: metrics, logger: logger}
}

func (r *DenialRecorder) Record(ctx context.Context, rec store.DenialRecord) {
	if err := r.store.Record(ctx, rec); err != nil {
		r.logger.Printf("failed to record denial for event %s: %v", rec.EventID, err)
	}

	r.metrics.Denial(ctx, rec.Reason)

	if r.notifier == nil {
		return
	}
	if err := r.notifier.NotifyDenial(ctx, rec); err != nil {
		r.logger.Printf("failed to send denial notification for event %s: %v", rec.EventID, err)
	}
}
