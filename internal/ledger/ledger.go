// Package ledger keeps the in-memory record of writes this process believes
// succeeded but the indexer has not yet reflected.
//
// Entries are keyed by (resource key, dimension) and are last-writer-wins: a
// second write to the same dimension replaces the first. Every entry carries
// a TTL as a backstop against writes the indexer never absorbs; expiry is
// driven by a single periodic sweep over a min-heap rather than one timer
// per entry, so timer churn stays bounded and tests can inject a clock.
package ledger

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nexcal/nexcal/internal/common"
	"github.com/nexcal/nexcal/internal/logging"
	"github.com/nexcal/nexcal/internal/models"
)

// Key addresses one pending-write slot.
type Key struct {
	Resource  models.Key
	Dimension string
}

// WriteKind discriminates the pending-write payload.
type WriteKind int

const (
	// WriteFull carries a complete resource snapshot (create/edit).
	WriteFull WriteKind = iota
	// WriteDelta carries a small sub-resource mutation (tag, RSVP, link).
	WriteDelta
)

// PendingWrite is one confirmed-but-unindexed write. For full writes the
// Snapshot holds enough state to reconstruct the optimistic view even if the
// store entry is evicted; for deltas the Delta descriptor does.
type PendingWrite struct {
	Key       Key
	Kind      WriteKind
	Snapshot  *models.Resource
	Delta     models.Delta
	Sequence  uint64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SweepInterval is how often the background sweep fires.
const SweepInterval = 1 * time.Second

// Ledger is the process-wide pending-write record. Safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	clock   clock.Clock
	log     logging.Logger
	entries map[Key]*PendingWrite
	expiry  expiryHeap
}

// New returns an empty ledger driven by the given clock.
func New(clk clock.Clock, log logging.Logger) *Ledger {
	return &Ledger{
		clock:   clk,
		log:     log.With("component", "ledger"),
		entries: make(map[Key]*PendingWrite),
	}
}

// RecordFull records a confirmed full-resource write. An existing entry for
// the same resource's details dimension is replaced.
func (l *Ledger) RecordFull(snapshot *models.Resource) *PendingWrite {
	key := Key{Resource: snapshot.Key, Dimension: models.DimensionDetails}
	return l.record(&PendingWrite{
		Key:      key,
		Kind:     WriteFull,
		Snapshot: snapshot.Clone(),
		Sequence: snapshot.Version.Sequence,
	}, common.FullWriteTTL)
}

// RecordDelta records a confirmed sub-resource write. An existing entry for
// the same dimension is replaced; the ledger is not a queue.
func (l *Ledger) RecordDelta(resource models.Key, delta models.Delta, sequence uint64) *PendingWrite {
	key := Key{Resource: resource, Dimension: delta.Dimension()}
	return l.record(&PendingWrite{
		Key:      key,
		Kind:     WriteDelta,
		Delta:    delta,
		Sequence: sequence,
	}, common.DeltaWriteTTL)
}

func (l *Ledger) record(w *PendingWrite, ttl time.Duration) *PendingWrite {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	w.CreatedAt = now
	w.ExpiresAt = now.Add(ttl)

	l.entries[w.Key] = w
	heap.Push(&l.expiry, expiryEntry{key: w.Key, at: w.ExpiresAt})
	return w
}

// Get returns the pending write for key, or nil. An entry past its TTL is
// absent even if the sweep has not collected it yet.
func (l *Ledger) Get(key Key) *PendingWrite {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.entries[key]
	if !ok || l.expired(w) {
		return nil
	}
	return w
}

// AllForResource returns every unexpired pending write for one resource,
// across all dimensions.
func (l *Ledger) AllForResource(resource models.Key) []*PendingWrite {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*PendingWrite
	for k, w := range l.entries {
		if k.Resource == resource && !l.expired(w) {
			out = append(out, w)
		}
	}
	return out
}

func (l *Ledger) expired(w *PendingWrite) bool {
	return !w.ExpiresAt.After(l.clock.Now())
}

// Clear removes the entry for key. Clearing an absent key is a no-op; the
// merge engine calls this on every convergence check.
func (l *Ledger) Clear(key Key) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// ClearUpTo removes every entry for the resource whose sequence the indexer
// has reached or passed.
func (l *Ledger) ClearUpTo(resource models.Key, sequence uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, w := range l.entries {
		if k.Resource == resource && w.Sequence <= sequence {
			delete(l.entries, k)
		}
	}
}

// ClearResource removes every entry for the resource, any dimension and
// sequence. Used when the resource itself is deleted.
func (l *Ledger) ClearResource(resource models.Key) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k := range l.entries {
		if k.Resource == resource {
			delete(l.entries, k)
		}
	}
}

// Count returns the number of unexpired entries.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, w := range l.entries {
		if !l.expired(w) {
			n++
		}
	}
	return n
}

// Sweep removes every entry whose TTL has elapsed and returns how many were
// dropped. It exists as an explicit hook for environments without a reliable
// background goroutine; Run calls it periodically.
func (l *Ledger) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	dropped := 0
	for l.expiry.Len() > 0 {
		next := l.expiry[0]
		if next.at.After(now) {
			break
		}
		heap.Pop(&l.expiry)

		// A heap node is stale if the entry was cleared or replaced by a
		// later record; only drop the map entry it still describes.
		if w, ok := l.entries[next.key]; ok && !w.ExpiresAt.After(now) {
			delete(l.entries, next.key)
			dropped++
		}
	}
	if dropped > 0 {
		l.log.Info(context.Background(), "expired pending writes", "count", dropped)
	}
	return dropped
}

// Run sweeps expired entries until ctx is done.
func (l *Ledger) Run(ctx context.Context) {
	ticker := l.clock.Ticker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

type expiryEntry struct {
	key Key
	at  time.Time
}

type expiryHeap []expiryEntry

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h expiryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x any)        { *h = append(*h, x.(expiryEntry)) }
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
