package service

import (
	"context"
	"time"

	"mpak/internal/platform/logger"
)

// Deleter removes stored objects
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// Reconciler removes objects no committed row points at. Failures are
// logged only: a leaked object costs storage, never correctness.
type Reconciler struct {
	blobs   Deleter
	timeout time.Duration
}

// NewReconciler builds a Reconciler; timeout bounds each deletion
func NewReconciler(blobs Deleter, timeout time.Duration) *Reconciler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Reconciler{blobs: blobs, timeout: timeout}
}

// AfterCommit deletes the object a re-announce superseded
func (r *Reconciler) AfterCommit(ctx context.Context, oldKey string) {
	if oldKey == "" {
		return
	}
	r.delete(ctx, oldKey, "superseded")
}

// AfterRollback deletes the object ingested for a failed attempt
func (r *Reconciler) AfterRollback(ctx context.Context, newKey string) {
	if newKey == "" {
		return
	}
	r.delete(ctx, newKey, "rolled back")
}

func (r *Reconciler) delete(ctx context.Context, key, why string) {
	// the request may already be cancelled; cleanup still runs
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	log := logger.C(ctx)
	if err := r.blobs.Delete(cctx, key); err != nil {
		log.Error().Err(err).Str("key", key).Str("reason", why).Msg("storage cleanup failed")
		return
	}
	log.Debug().Str("key", key).Str("reason", why).Msg("storage object removed")
}
