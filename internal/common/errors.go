// Package common contains shared constants and sentinel errors used across
// nexcal components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Store / repository errors.
	ErrNotFound = errors.New("not found")

	// ErrStorageWrite marks a failed write to the external storage
	// backend. It is always surfaced to the caller of a mutation and
	// triggers a rollback of the optimistic cache update.
	ErrStorageWrite = errors.New("storage write failed")

	// ErrIndexerFetch marks a network-level failure while polling the
	// indexer. It is counted as a failed sync attempt and retried; it is
	// never surfaced to callers.
	ErrIndexerFetch = errors.New("indexer fetch failed")

	// ErrNotIndexed is the indexer's "not yet indexed" signal. It is an
	// expected outcome, not a failure, and is distinct from ErrIndexerFetch.
	ErrNotIndexed = errors.New("resource not indexed yet")

	// ErrStaleWrite marks an indexer response that arrived after a newer
	// local write and was rejected by the store. Internal, logged at debug.
	ErrStaleWrite = errors.New("stale indexer write rejected")

	// ErrInvalidToken marks a malformed identity token.
	ErrInvalidToken = errors.New("invalid token")
)
