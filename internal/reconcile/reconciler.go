// Package reconcile ties the cache together: mutations apply optimistically
// to the store, go out to external storage, and are then reconciled against
// the indexer until it catches up.
package reconcile

import (
	"context"
	"errors"

	"github.com/benbjohnson/clock"

	"github.com/nexcal/nexcal/internal/common"
	"github.com/nexcal/nexcal/internal/identity"
	"github.com/nexcal/nexcal/internal/ledger"
	"github.com/nexcal/nexcal/internal/logging"
	"github.com/nexcal/nexcal/internal/merge"
	"github.com/nexcal/nexcal/internal/models"
	"github.com/nexcal/nexcal/internal/nexus"
	"github.com/nexcal/nexcal/internal/scheduler"
	"github.com/nexcal/nexcal/internal/store"
)

// Reconciler is the engine's public surface. Construct one per process with
// New and share it by reference; there are no package-level singletons.
type Reconciler struct {
	store   *store.Store
	ledger  *ledger.Ledger
	engine  *merge.Engine
	sched   *scheduler.Scheduler
	fetcher nexus.Fetcher
	writer  Writer
	who     identity.Provider
	clock   clock.Clock
	log     logging.Logger
}

// Writer is the storage collaborator contract consumed by mutations.
type Writer interface {
	Put(ctx context.Context, path string, payload []byte) error
	Delete(ctx context.Context, path string) error
}

// New wires a reconciler from its collaborators. The merge engine and sync
// scheduler are internal and built here.
func New(st *store.Store, l *ledger.Ledger, fetcher nexus.Fetcher, writer Writer,
	who identity.Provider, clk clock.Clock, log logging.Logger) *Reconciler {

	r := &Reconciler{
		store:   st,
		ledger:  l,
		fetcher: fetcher,
		writer:  writer,
		who:     who,
		clock:   clk,
		log:     log.With("component", "reconcile"),
	}
	r.engine = merge.New(l, who, log)
	r.sched = scheduler.New(clk, r.syncCheck, r.abandon, log)
	return r
}

// Start runs the background pieces (sync scheduling and ledger TTL sweeps)
// until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	r.sched.Start(ctx)
	go r.ledger.Run(ctx)
}

// Stop cancels all scheduled sync checks.
func (r *Reconciler) Stop() {
	r.sched.Stop()
}

// Subscribe returns the current view of key and a channel of subsequent
// views; see store.Subscribe for channel semantics.
func (r *Reconciler) Subscribe(key models.Key) (store.Snapshot, <-chan store.Snapshot, func()) {
	return r.store.Subscribe(key)
}

// Get returns the current cached view of key.
func (r *Reconciler) Get(key models.Key) (store.Snapshot, bool) {
	return r.store.Get(key)
}

// Status returns the derived sync status of key.
func (r *Reconciler) Status(key models.Key) store.SyncStatus {
	return r.store.Status(key)
}

// Reschedule puts key back on the sync schedule at initial cadence. Used on
// warm start for entries persisted before they converged.
func (r *Reconciler) Reschedule(key models.Key) {
	r.sched.Schedule(key)
}

// PendingWrites returns the number of outstanding unindexed writes.
func (r *Reconciler) PendingWrites() int {
	return r.ledger.Count()
}

// syncCheck is one scheduler tick for key: fetch the indexer, merge against
// the *current* store state, and apply the outcome. It returns true when no
// further polling is needed. Fetch failures are contained here: counted and
// logged, never surfaced.
func (r *Reconciler) syncCheck(ctx context.Context, key models.Key) bool {
	// The user deleted the resource before convergence; nothing to poll for.
	if _, ok := r.store.Get(key); !ok && len(r.ledger.AllForResource(key)) == 0 {
		return true
	}

	remote, err := r.fetcher.Fetch(ctx, key)
	if err != nil && !errors.Is(err, common.ErrNotIndexed) {
		r.log.Warn(ctx, "indexer fetch failed", "key", key.String(), "error", err)
		r.store.MarkSyncAttempt(key)
		return false
	}

	// Mutations may have landed while the fetch was in flight; the merge
	// must see the store and ledger as they are now, not as they were when
	// the fetch was issued.
	snap, hasLocal := r.store.Get(key)
	pending := r.ledger.AllForResource(key)
	if !hasLocal && len(pending) == 0 {
		return true
	}

	in := merge.Input{Key: key, Remote: remote, Pending: pending}
	if hasLocal {
		in.Local = snap.Resource
		if snap.Meta.Source == store.SourceLocal {
			in.LocalSequence = snap.Meta.LocalSequence
		}
	}

	out := r.engine.Merge(ctx, in)
	switch {
	case out.Converged:
		if err := r.store.Upsert(out.Resource, store.SourceNexus); err != nil {
			// A newer local write landed while the fetch was in flight;
			// its own schedule supersedes this one.
			return false
		}
		return true

	case out.Source == merge.SourceMerged:
		r.store.ApplyMerged(out.Resource)
		r.store.MarkSyncAttempt(key)
		return false

	case out.Source == merge.SourceLocal:
		if !hasLocal && out.Resource != nil {
			// The store entry was evicted; rebuild the optimistic view
			// from the ledger's snapshot.
			_ = r.store.Upsert(out.Resource, store.SourceLocal)
		}
		r.store.MarkSyncAttempt(key)
		return false

	default:
		if out.Resource != nil {
			return r.store.Upsert(out.Resource, store.SourceNexus) == nil
		}
		r.store.MarkSyncAttempt(key)
		return !out.NeedsRefresh
	}
}

// abandon marks a key that exhausted its sync budget. The local data stays
// visible with an error indicator; the pending writes expire on their own.
func (r *Reconciler) abandon(key models.Key) {
	r.store.MarkSyncAbandoned(key)
}
