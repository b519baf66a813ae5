// Package store is the addressable local copy of each resource plus its sync
// metadata: the thing readers subscribe to and the merge engine writes into.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nexcal/nexcal/internal/common"
	"github.com/nexcal/nexcal/internal/logging"
	"github.com/nexcal/nexcal/internal/models"
	"github.com/nexcal/nexcal/internal/version"
)

// Source tags where a cached entry came from.
type Source string

const (
	// SourceLocal marks an optimistic write not yet observed at the indexer.
	SourceLocal Source = "local"
	// SourceNexus marks an entry the indexer served at or beyond the last
	// local write.
	SourceNexus Source = "nexus"
)

// SyncMetadata describes an entry's reconciliation state.
//
// Invariant: SourceNexus implies SyncAttempts == 0 and SyncedAt set;
// SourceLocal implies the indexer has not been observed at or above
// LocalSequence.
type SyncMetadata struct {
	Source         Source
	LocalWrittenAt time.Time
	LocalSequence  uint64
	SyncAttempts   uint
	SyncedAt       time.Time
	LastSyncCheck  time.Time
}

// SyncStatus is derived from SyncMetadata, never stored.
type SyncStatus string

const (
	StatusPending SyncStatus = "pending"
	StatusSyncing SyncStatus = "syncing"
	StatusSynced  SyncStatus = "synced"
	StatusError   SyncStatus = "error"
)

// Status derives the sync status: synced once SyncedAt is set, pending while
// unchecked, error past the attempt cap, syncing in between.
func (m SyncMetadata) Status() SyncStatus {
	switch {
	case !m.SyncedAt.IsZero():
		return StatusSynced
	case m.SyncAttempts == 0:
		return StatusPending
	case m.SyncAttempts > common.MaxSyncAttempts:
		return StatusError
	default:
		return StatusSyncing
	}
}

// Snapshot is an immutable view of one cached entry.
type Snapshot struct {
	Resource *models.Resource
	Meta     SyncMetadata
}

// Status is a convenience accessor.
func (s Snapshot) Status() SyncStatus { return s.Meta.Status() }

// Saver is the optional write-through durability hook. Implementations must
// tolerate being called from inside store critical sections and should not
// block for long; persistence failures are logged, never propagated.
type Saver interface {
	Save(ctx context.Context, snap Snapshot) error
	Delete(ctx context.Context, key models.Key) error
}

type entry struct {
	res  *models.Resource
	meta SyncMetadata
}

// Store is the process-wide resource cache. All mutations are short
// synchronous critical sections; no operation blocks.
type Store struct {
	mu       sync.RWMutex
	clock    clock.Clock
	log      logging.Logger
	saver    Saver
	entries  map[models.Key]*entry
	watchers map[models.Key]map[int]chan Snapshot
	nextID   int
}

// Option configures a Store.
type Option func(*Store)

// WithSaver enables write-through persistence.
func WithSaver(s Saver) Option {
	return func(st *Store) { st.saver = s }
}

// New returns an empty store.
func New(clk clock.Clock, log logging.Logger, opts ...Option) *Store {
	s := &Store{
		clock:    clk,
		log:      log.With("component", "store"),
		entries:  make(map[models.Key]*entry),
		watchers: make(map[models.Key]map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert writes res under its key with fresh metadata for source.
//
// A nexus write is rejected with ErrStaleWrite when an unsynced local entry
// is strictly ahead of it: an in-flight fetch that resolves after a newer
// optimistic write must not clobber it. On rejection only SyncAttempts and
// LastSyncCheck are bumped.
func (s *Store) Upsert(res *models.Resource, source Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := res.Key
	now := s.clock.Now()

	if source == SourceNexus {
		if cur, ok := s.entries[key]; ok && cur.meta.Source == SourceLocal &&
			version.Compare(version.Extract(cur.res), version.Extract(res)) > 0 {
			cur.meta.SyncAttempts++
			cur.meta.LastSyncCheck = now
			s.log.Debug(context.Background(), "rejected stale indexer write",
				"key", key.String(),
				"local_sequence", cur.res.Version.Sequence,
				"remote_sequence", res.Version.Sequence)
			s.notifyLocked(key)
			return common.ErrStaleWrite
		}
	}

	e := &entry{res: res.Clone()}
	switch source {
	case SourceNexus:
		e.meta = SyncMetadata{Source: SourceNexus, SyncedAt: now, LastSyncCheck: now}
	default:
		e.meta = SyncMetadata{
			Source:         SourceLocal,
			LocalWrittenAt: now,
			LocalSequence:  res.Version.Sequence,
		}
	}
	s.entries[key] = e
	s.persistLocked(key)
	s.notifyLocked(key)
	return nil
}

// ApplyMerged replaces the resource of an existing local entry with a merge
// result while keeping its attempt counters: the entry is still unsynced,
// only its visible representation moved forward.
func (s *Store) ApplyMerged(res *models.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := res.Key
	cur, ok := s.entries[key]
	if !ok {
		cur = &entry{meta: SyncMetadata{Source: SourceLocal, LocalWrittenAt: s.clock.Now()}}
		s.entries[key] = cur
	}
	cur.res = res.Clone()
	cur.meta.Source = SourceLocal
	cur.meta.SyncedAt = time.Time{}
	if res.Version.Sequence > cur.meta.LocalSequence {
		cur.meta.LocalSequence = res.Version.Sequence
	}
	s.persistLocked(key)
	s.notifyLocked(key)
}

// Restore puts back a pre-mutation snapshot, metadata included. Used to roll
// back an optimistic update after a failed external write.
func (s *Store) Restore(key models.Key, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Resource == nil {
		delete(s.entries, key)
		s.unpersistLocked(key)
	} else {
		s.entries[key] = &entry{res: snap.Resource.Clone(), meta: snap.Meta}
		s.persistLocked(key)
	}
	s.notifyLocked(key)
}

// Seed installs a snapshot loaded from persistence, metadata included,
// without writing it back out. Used on warm start.
func (s *Store) Seed(snap Snapshot) {
	if snap.Resource == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[snap.Resource.Key] = &entry{res: snap.Resource.Clone(), meta: snap.Meta}
}

// Get returns a detached snapshot of the entry for key.
func (s *Store) Get(key models.Key) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{Resource: e.res.Clone(), Meta: e.meta}, true
}

// Remove drops the entry for key. Removing an absent key is a no-op.
func (s *Store) Remove(key models.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return
	}
	delete(s.entries, key)
	s.unpersistLocked(key)
	s.notifyLocked(key)
}

// MarkSynced stamps the entry as converged and resets its attempt counter.
func (s *Store) MarkSynced(key models.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return
	}
	now := s.clock.Now()
	e.meta.Source = SourceNexus
	e.meta.SyncedAt = now
	e.meta.LastSyncCheck = now
	e.meta.SyncAttempts = 0
	s.persistLocked(key)
	s.notifyLocked(key)
}

// MarkSyncAttempt bumps the attempt counter after an unconverged or failed
// check.
func (s *Store) MarkSyncAttempt(key models.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return
	}
	e.meta.SyncAttempts++
	e.meta.LastSyncCheck = s.clock.Now()
	s.persistLocked(key)
	s.notifyLocked(key)
}

// MarkSyncAbandoned pins the entry's attempt counter past the cap so its
// status reads error regardless of which budget ran out first. The cached
// data stays readable; only the indicator changes.
func (s *Store) MarkSyncAbandoned(key models.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return
	}
	if e.meta.SyncAttempts <= common.MaxSyncAttempts {
		e.meta.SyncAttempts = common.MaxSyncAttempts + 1
	}
	e.meta.LastSyncCheck = s.clock.Now()
	s.persistLocked(key)
	s.notifyLocked(key)
}

// Status returns the derived sync status for key, or StatusPending for an
// unknown key.
func (s *Store) Status(key models.Key) SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.entries[key]; ok {
		return e.meta.Status()
	}
	return StatusPending
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Subscribe returns the current snapshot for key plus a channel that carries
// a fresh snapshot after every mutation of the key. The channel holds only
// the latest snapshot: a slow reader observes the newest state, not every
// intermediate one. The returned cancel func releases the subscription.
func (s *Store) Subscribe(key models.Key) (Snapshot, <-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Snapshot, 1)
	id := s.nextID
	s.nextID++
	if s.watchers[key] == nil {
		s.watchers[key] = make(map[int]chan Snapshot)
	}
	s.watchers[key][id] = ch

	var cur Snapshot
	if e, ok := s.entries[key]; ok {
		cur = Snapshot{Resource: e.res.Clone(), Meta: e.meta}
	}

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if m, ok := s.watchers[key]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(s.watchers, key)
			}
		}
	}
	return cur, ch, cancel
}

// notifyLocked pushes the latest snapshot to every watcher of key, replacing
// an unread older one. Caller holds s.mu.
func (s *Store) notifyLocked(key models.Key) {
	m := s.watchers[key]
	if len(m) == 0 {
		return
	}

	var snap Snapshot
	if e, ok := s.entries[key]; ok {
		snap = Snapshot{Resource: e.res.Clone(), Meta: e.meta}
	}
	for _, ch := range m {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// persistLocked writes the entry through to the saver. Caller holds s.mu.
func (s *Store) persistLocked(key models.Key) {
	if s.saver == nil {
		return
	}
	e := s.entries[key]
	snap := Snapshot{Resource: e.res.Clone(), Meta: e.meta}
	if err := s.saver.Save(context.Background(), snap); err != nil {
		s.log.Warn(context.Background(), "failed to persist cache entry",
			"key", key.String(), "error", err)
	}
}

func (s *Store) unpersistLocked(key models.Key) {
	if s.saver == nil {
		return
	}
	if err := s.saver.Delete(context.Background(), key); err != nil {
		s.log.Warn(context.Background(), "failed to delete persisted cache entry",
			"key", key.String(), "error", err)
	}
}
