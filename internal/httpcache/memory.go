package httpcache

import (
	"context"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
)

// Memory is a bounded in-memory response cache backed by otter.
//
// otter bounds the cache by entry count and evicts entries after a maximum
// lifetime; per-entry freshness is enforced lazily on access, since each
// response carries its own expiration computed at insertion. The cache is
// non-locking around the check-then-set in Add: concurrent adds for the same
// key may race, in which case the last write wins. Stored responses are
// immutable copies, so a concurrent reader always observes a fully formed
// value.
type Memory struct {
	cache   *otter.Cache[string, Response]
	counter *stats.Counter
}

// NewMemory creates an in-memory cache holding at most maxEntries responses.
// maxLifetime caps how long any entry can remain cached, independent of the
// freshness computed from its own metadata.
func NewMemory(maxEntries int, maxLifetime time.Duration) (*Memory, error) {
	counter := stats.NewCounter()
	cache := otter.Must(&otter.Options[string, Response]{
		MaximumSize:      maxEntries,
		StatsRecorder:    counter,
		ExpiryCalculator: otter.ExpiryCreating[string, Response](maxLifetime),
	})

	return &Memory{
		cache:   cache,
		counter: counter,
	}, nil
}

// Get returns a copy of the live entry for key. A lazily-expired entry is
// evicted opportunistically and reported absent.
func (m *Memory) Get(ctx context.Context, key Key) (Response, bool) {
	digest := key.Digest()

	entry, ok := m.cache.GetEntry(digest)
	if !ok {
		return Response{}, false
	}

	if entry.Value.Expired(time.Now()) {
		m.cache.Invalidate(digest)
		return Response{}, false
	}

	return entry.Value.Clone(), true
}

// Add stores resp under key, honouring the key's refresh policy: a live
// entry is kept unless the key carries force-refresh. Returns the previous
// live value when one existed.
func (m *Memory) Add(ctx context.Context, key Key, resp Response) (Response, bool) {
	digest := key.Digest()
	now := time.Now()

	prev, found := m.cache.GetEntry(digest)
	live := found && !prev.Value.Expired(now)

	if live && !key.ForceRefresh() {
		// ordinary add: the live entry stands
		return prev.Value.Clone(), true
	}

	m.cache.Set(digest, resp.Clone())

	if live {
		return prev.Value.Clone(), true
	}
	return Response{}, false
}

// Remove deletes the entry for key. Removing an absent key is a no-op.
func (m *Memory) Remove(ctx context.Context, key Key) (Response, bool) {
	digest := key.Digest()
	now := time.Now()

	prev, found := m.cache.GetEntry(digest)
	m.cache.Invalidate(digest)

	if found && !prev.Value.Expired(now) {
		return prev.Value.Clone(), true
	}
	return Response{}, false
}
