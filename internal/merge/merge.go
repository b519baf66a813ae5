// Package merge decides, for one resource key, what to show the user given
// the locally cached copy, the indexer's copy and any outstanding pending
// writes, and whether the indexer still needs polling.
package merge

import (
	"context"

	"github.com/nexcal/nexcal/internal/identity"
	"github.com/nexcal/nexcal/internal/ledger"
	"github.com/nexcal/nexcal/internal/logging"
	"github.com/nexcal/nexcal/internal/models"
)

// Source labels where a merge result came from.
type Source string

const (
	SourceLocal  Source = "local"
	SourceNexus  Source = "nexus"
	SourceMerged Source = "merged"
)

// Input is everything known about one resource key at merge time. Either
// representation may be absent.
type Input struct {
	Key models.Key

	// Local is the store's copy, nil if evicted or never cached.
	Local *models.Resource

	// LocalSequence is the store's record of the last locally written
	// sequence, zero when the entry is nexus-sourced or absent.
	LocalSequence uint64

	// Remote is the indexer's copy, nil when not yet indexed.
	Remote *models.Resource

	// Pending are the outstanding writes for this resource, all dimensions.
	Pending []*ledger.PendingWrite
}

// Outcome is the merge decision.
type Outcome struct {
	// Resource is the representation to show, nil if nothing is known.
	Resource *models.Resource

	// Source labels the representation's provenance.
	Source Source

	// NeedsRefresh reports whether the indexer must be polled again.
	NeedsRefresh bool

	// Converged is set when the indexer was observed at or beyond every
	// outstanding local sequence; pending writes up to the remote
	// sequence have been cleared.
	Converged bool
}

// Engine runs the merge. It owns clearing pending writes on convergence.
type Engine struct {
	ledger *ledger.Ledger
	who    identity.Provider
	log    logging.Logger
}

func New(l *ledger.Ledger, who identity.Provider, log logging.Logger) *Engine {
	return &Engine{ledger: l, who: who, log: log.With("component", "merge")}
}

// Merge decides what to show for in.Key.
//
// The four cases, in order:
//  1. nothing known at all: keep polling, show nothing;
//  2. only the indexer has the resource: trust it fully;
//  3. only the local side has it: show the local view, keep polling;
//  4. both sides present: converge onto the indexer if it has caught up
//     with every local write, otherwise show the user's own details over the
//     indexer's social data and keep polling.
func (e *Engine) Merge(ctx context.Context, in Input) Outcome {
	localView, target := e.localView(in)

	if localView == nil && in.Remote == nil {
		return Outcome{Source: SourceNexus, NeedsRefresh: true}
	}

	if in.Remote == nil {
		// The indexer has not seen this resource at all yet. Re-apply
		// pending deltas so a view reconstructed from a full-write
		// snapshot still carries them; application is idempotent, so a
		// store copy that already has them is unchanged.
		result := localView.Clone()
		e.applyPendingDeltas(result, in.Pending)
		return Outcome{Resource: result, Source: SourceLocal, NeedsRefresh: true}
	}

	if localView == nil && target == 0 {
		return Outcome{Resource: in.Remote, Source: SourceNexus}
	}

	if in.Remote.Version.Sequence >= target {
		// The indexer has caught up. Its copy wins outright, social data
		// included, and the satisfied pending writes go away.
		e.ledger.ClearUpTo(in.Key, in.Remote.Version.Sequence)
		e.log.Debug(ctx, "converged onto indexer copy",
			"key", in.Key.String(), "sequence", in.Remote.Version.Sequence)
		return Outcome{Resource: in.Remote, Source: SourceNexus, Converged: true}
	}

	// Local writes the indexer has not absorbed yet: the user's own details
	// win, but tags/attendees/linked events stay indexer-authoritative
	// because they aggregate other users' actions this client cannot know.
	result := in.Remote.Clone()
	if localView != nil && localView.Version.Sequence > in.Remote.Version.Sequence {
		result.Details = append([]byte(nil), localView.Details...)
		result.Version = localView.Version
	}
	e.applyPendingDeltas(result, in.Pending)
	return Outcome{Resource: result, Source: SourceMerged, NeedsRefresh: true}
}

// localView picks the freshest local representation (the store copy or the
// highest full-write snapshot held by the ledger) and the sequence the
// indexer must reach before this resource counts as converged.
func (e *Engine) localView(in Input) (*models.Resource, uint64) {
	view := in.Local
	target := in.LocalSequence

	for _, w := range in.Pending {
		if w.Sequence > target {
			target = w.Sequence
		}
		if w.Kind == ledger.WriteFull && w.Snapshot != nil {
			if view == nil || w.Snapshot.Version.Sequence > view.Version.Sequence {
				view = w.Snapshot
			}
		}
	}
	if view != nil && view.Version.Sequence > target {
		target = view.Version.Sequence
	}
	return view, target
}

func (e *Engine) applyPendingDeltas(r *models.Resource, pending []*ledger.PendingWrite) {
	actingID := e.who.UserID()
	for _, w := range pending {
		if w.Kind == ledger.WriteDelta {
			ApplyDelta(&r.Social, w.Delta, actingID)
		}
	}
}
