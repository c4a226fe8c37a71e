package httpcache

import (
	"context"
)

// Cache maps a request-identity Key to a cached Response.
//
// The interface has no failure states: absence is normal control flow, and
// implementations never perform I/O. Entries past their computed expiration
// are treated as absent by Get even before physical eviction.
type Cache interface {
	// Get returns a copy of the live entry for key, or absent on a miss or
	// a lazily-expired entry.
	Get(ctx context.Context, key Key) (Response, bool)

	// Add stores resp under key and returns the previous live value, if any.
	// An ordinary add overwrites only when no live entry exists; a key with
	// force-refresh policy always overwrites.
	Add(ctx context.Context, key Key, resp Response) (Response, bool)

	// Remove deletes the entry for key, returning the previous live value.
	// Removing an absent key is a no-op.
	Remove(ctx context.Context, key Key) (Response, bool)
}
