package common

import "time"

// Reconciliation tunables shared by the ledger, scheduler and store.
const (
	// DeltaWriteTTL bounds how long a pending delta write (tag, RSVP,
	// event link) survives in the ledger without the indexer absorbing it.
	DeltaWriteTTL = 30 * time.Second

	// FullWriteTTL is the same bound for full-resource writes.
	FullWriteTTL = 60 * time.Second

	// InitialSyncDelay is the delay before the first indexer re-check
	// after a confirmed write.
	InitialSyncDelay = 1 * time.Second

	// MaxSyncDelay caps the exponential backoff between re-checks.
	MaxSyncDelay = 15 * time.Second

	// SyncJitterPercent is applied to every backoff delay to spread
	// re-checks across resources.
	SyncJitterPercent = 20

	// MaxSyncAttempts is the per-resource cap on indexer re-checks before
	// the resource is abandoned with an error sync status.
	MaxSyncAttempts = 20

	// MaxSyncTime is the wall-clock cap on re-checking a single resource.
	MaxSyncTime = 60 * time.Second

	// DefaultFetchTimeout bounds a single indexer fetch so a hung call
	// cannot occupy a scheduled slot.
	DefaultFetchTimeout = 8 * time.Second
)
