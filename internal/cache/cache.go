// Package cache wraps internal/storage with a revision-normalized,
// weight-bounded read cache: repeated reads of the same query at the
// same (now-concrete) revision are served from memory, concurrent
// callers racing for the same miss are coalesced into one storage
// read, and a commit drops every cached entry for its repository.
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/line/centraldogma-go/internal/domain"
	"github.com/line/centraldogma-go/internal/query"
	"github.com/line/centraldogma-go/internal/storage"
)

// Backend is the subset of storage.Storage the cache sits in front of.
type Backend interface {
	Head(ctx context.Context, repo string) (domain.Revision, error)
	Find(ctx context.Context, repo string, revision domain.Revision, path string) (domain.Entry, error)
	ListEntries(ctx context.Context, repo string, revision domain.Revision, pathPrefix string, recursive bool) ([]domain.Entry, error)
	History(ctx context.Context, repo string, from, to domain.Revision, pathPattern string, maxCommits int) ([]domain.Commit, error)
	Diff(ctx context.Context, repo string, from, to domain.Revision, pathPattern string) ([]domain.Change, error)
	Commit(ctx context.Context, repo string, baseRevision domain.Revision, author, summary, detail string, markup domain.Markup, changes []domain.Change) (domain.Commit, error)
}

var _ Backend = storage.Storage(nil) // documents the intended wiring; storage.Storage satisfies Backend structurally

// entry is one cached value plus its byte weight for the LRU budget.
type entry struct {
	query.Result
	weight int
}

// Cache is a read-through cache over a Backend. Zero value is not
// usable; construct with New.
type Cache struct {
	backend Backend
	group   singleflight.Group

	mu        sync.Mutex
	lru       *lru.Cache[string, entry]
	maxWeight int64
	curWeight int64

	hits, misses atomic.Int64
}

// New builds a Cache over backend. maxEntries bounds how many distinct
// keys the LRU will track before evicting by recency; maxWeightBytes
// additionally bounds total cached content size, evicting
// least-recently-used entries first when exceeded.
func New(backend Backend, maxEntries int, maxWeightBytes int64) (*Cache, error) {
	c := &Cache{backend: backend, maxWeight: maxWeightBytes}
	l, err := lru.NewWithEvict[string, entry](maxEntries, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	c.lru = l
	return c, nil
}

func (c *Cache) onEvict(_ string, e entry) {
	atomic.AddInt64(&c.curWeight, -int64(e.weight))
}

// Stats reports cumulative hit/miss counts, useful for /metrics wiring.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Query resolves revision to a concrete value, then evaluates q against
// the entry at that revision, serving from cache when possible.
func (c *Cache) Query(ctx context.Context, repo string, revision domain.Revision, q domain.Query) (query.Result, error) {
	rev, err := c.normalize(ctx, repo, revision)
	if err != nil {
		return query.Result{}, err
	}
	key := cacheKey(repo, rev, "Q:"+q.CacheKeyString())

	if v, ok := c.get(key); ok {
		return v.Result, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		e, err := c.backend.Find(ctx, repo, rev, q.Path)
		if err != nil {
			return nil, err
		}
		return query.Run(q, e)
	})
	if err != nil {
		return query.Result{}, err
	}
	res := v.(query.Result)
	c.put(key, res)
	return res, nil
}

// ListEntries caches storage.ListEntries results.
func (c *Cache) ListEntries(ctx context.Context, repo string, revision domain.Revision, pathPrefix string, recursive bool) ([]domain.Entry, error) {
	rev, err := c.normalize(ctx, repo, revision)
	if err != nil {
		return nil, err
	}
	key := cacheKey(repo, rev, fmt.Sprintf("L:%s:%v", pathPrefix, recursive))

	if v, ok := c.get(key); ok {
		return decodeEntries(v.Content), nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.backend.ListEntries(ctx, repo, rev, pathPrefix, recursive)
	})
	if err != nil {
		return nil, err
	}
	entries := v.([]domain.Entry)
	c.put(key, query.Result{Content: encodeEntries(entries)})
	return entries, nil
}

// History and Diff are not cached by content (their result sets are
// rarely re-read verbatim and are cheap relative to Find/ListEntries);
// they pass straight through. They're still exposed here so callers
// only need to depend on one type for all repository reads.
func (c *Cache) History(ctx context.Context, repo string, from, to domain.Revision, pathPattern string, maxCommits int) ([]domain.Commit, error) {
	return c.backend.History(ctx, repo, from, to, pathPattern, maxCommits)
}

func (c *Cache) Diff(ctx context.Context, repo string, from, to domain.Revision, pathPattern string) ([]domain.Change, error) {
	return c.backend.Diff(ctx, repo, from, to, pathPattern)
}

// Commit delegates to the backend and then invalidates every cache
// entry for repo: a coarse but correct invalidation — HEAD-relative
// queries for repo are stale the instant a new revision lands, and
// entries cached under an older concrete revision are dropped too, so
// the next read of them goes back to the backend.
func (c *Cache) Commit(ctx context.Context, repo string, baseRevision domain.Revision, author, summary, detail string, markup domain.Markup, changes []domain.Change) (domain.Commit, error) {
	commit, err := c.backend.Commit(ctx, repo, baseRevision, author, summary, detail, markup, changes)
	if err != nil {
		return domain.Commit{}, err
	}
	c.invalidateRepo(repo)
	return commit, nil
}

func (c *Cache) normalize(ctx context.Context, repo string, revision domain.Revision) (domain.Revision, error) {
	if !revision.IsRelative() {
		return revision, nil
	}
	head, err := c.backend.Head(ctx, repo)
	if err != nil {
		return 0, err
	}
	return domain.Normalize(revision, head)
}

func (c *Cache) get(key string) (entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

func (c *Cache) put(key string, res query.Result) {
	w := len(res.Content)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry{Result: res, weight: w})
	atomic.AddInt64(&c.curWeight, int64(w))
	for atomic.LoadInt64(&c.curWeight) > c.maxWeight && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}
}

func (c *Cache) invalidateRepo(repo string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := repo + "\x00"
	for _, k := range c.lru.Keys() {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			c.lru.Remove(k)
		}
	}
}

func cacheKey(repo string, rev domain.Revision, suffix string) string {
	return fmt.Sprintf("%s\x00%d\x00%s", repo, rev, suffix)
}
