// Package version implements the total order used to decide which of two
// representations of a resource is authoritative.
//
// The order is lexicographic over (Sequence, LastModified, IndexedAt).
// Sequence is the primary signal; the timestamps only break ties. Absent
// fields are zero, so a never-versioned resource is dominated by any
// explicitly versioned one.
package version

import "github.com/nexcal/nexcal/internal/models"

// Extract returns the version of a resource. A nil resource is version zero.
func Extract(r *models.Resource) models.VersionInfo {
	if r == nil {
		return models.VersionInfo{}
	}
	return r.Version
}

// Compare returns -1 if a orders before b, 1 if after, 0 if equal.
func Compare(a, b models.VersionInfo) int {
	if c := compareUint64(a.Sequence, b.Sequence); c != 0 {
		return c
	}
	if c := compareUint64(a.LastModified, b.LastModified); c != 0 {
		return c
	}
	return compareUint64(a.IndexedAt, b.IndexedAt)
}

// IsRemoteCurrent reports whether the indexer has caught up with the local
// representation. This is the sole convergence gate.
func IsRemoteCurrent(local, remote models.VersionInfo) bool {
	return Compare(remote, local) >= 0
}

func compareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
