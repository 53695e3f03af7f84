// Package cache defines the extraction cache used by raf archives.
//
// An extraction cache holds raw entry bytes keyed by a digest of the
// entry's location in its data file, so repeated reads of the same entry
// skip the data file entirely.
package cache

import "github.com/opencontainers/go-digest"

// Cache stores extracted entry bytes.
//
// Implementations should handle their own size limits and eviction policies.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns cached content for key.
	// Returns nil, false if the content is not cached.
	Get(key digest.Digest) ([]byte, bool)

	// Put stores content under key. Storing an existing key is a no-op.
	Put(key digest.Digest, content []byte) error

	// Delete removes cached content for key.
	// Implementations should treat missing entries as a no-op.
	Delete(key digest.Digest) error
}
