package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"covid-parser/pkg/logger"
)

// Policy selects when a cached payload is refetched.
type Policy int

const (
	// PolicyAlways refetches on every call.
	PolicyAlways Policy = iota
	// PolicyUseCount serves the cached payload Interval times before refetching.
	PolicyUseCount
	// PolicyTime serves the cached payload for Interval seconds.
	PolicyTime
)

func (p Policy) String() string {
	switch p {
	case PolicyAlways:
		return "always"
	case PolicyUseCount:
		return "use-count"
	case PolicyTime:
		return "time"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Valid reports whether p is one of the known policies.
func (p Policy) Valid() bool {
	return p >= PolicyAlways && p <= PolicyTime
}

// Fetcher loads a payload from upstream.
type Fetcher interface {
	Download(ctx context.Context, url string) (string, error)
}

// CacheEntry is the last successful fetch of a URL.
type CacheEntry struct {
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"` // unix seconds of the last fetch
	Uses      int    `json:"uses"`      // serves since the last fetch
	Payload   string `json:"-"`
}

// CacheStats counts cache activity since construction.
type CacheStats struct {
	Policy   string `json:"policy"`
	Interval int64  `json:"interval"`
	Entries  int    `json:"entries"`
	Hits     uint64 `json:"hits"`
	Fetches  uint64 `json:"fetches"`
	Failures uint64 `json:"failures"`
}

// FetchCache keeps the last payload per URL and decides on every Get whether
// to serve it or refetch. mu guards entries and counters only; downloads run
// outside it, one at a time per URL.
type FetchCache struct {
	mu       sync.Mutex
	fetcher  Fetcher
	policy   Policy
	interval int64
	entries  map[string]*CacheEntry
	now      func() time.Time
	log      *logger.Logger
	flights  singleflight.Group

	hits, fetches, failures uint64
}

// Option customizes a FetchCache.
type Option func(*FetchCache)

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *FetchCache) { c.now = now }
}

// WithLogger sets the cache logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *FetchCache) { c.log = l.WithField("component", "fetch_cache") }
}

// NewFetchCache creates a cache over fetcher. interval is a use count for
// PolicyUseCount and seconds for PolicyTime; it is ignored by PolicyAlways.
func NewFetchCache(fetcher Fetcher, policy Policy, interval int64, opts ...Option) *FetchCache {
	c := &FetchCache{
		fetcher:  fetcher,
		policy:   policy,
		interval: interval,
		entries:  make(map[string]*CacheEntry),
		now:      time.Now,
		log:      logger.GetLogger().WithField("component", "fetch_cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the payload for url, fetching it when the policy requires.
// The lock is not held during the fetch; concurrent callers that miss on the
// same URL share one download. A caller whose ctx ends while waiting gets
// ctx.Err() and the download carries on for the others.
// Fetch errors are returned unchanged and leave any existing entry intact.
func (c *FetchCache) Get(ctx context.Context, url string) (string, error) {
	if payload, ok := c.serve(url); ok {
		return payload, nil
	}

	ch := c.flights.DoChan(url, func() (interface{}, error) {
		return c.load(context.WithoutCancel(ctx), url)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// serve returns the cached payload for url if the policy allows it,
// counting the use.
func (c *FetchCache) serve(url string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[url]
	if !ok || !c.fresh(entry) {
		return "", false
	}
	entry.Uses++
	c.hits++
	return entry.Payload, true
}

func (c *FetchCache) fresh(entry *CacheEntry) bool {
	switch c.policy {
	case PolicyUseCount:
		return int64(entry.Uses) < c.interval
	case PolicyTime:
		return c.now().Unix()-entry.Timestamp <= c.interval
	default:
		return false
	}
}

// load runs inside a flight. A flight that finished between the caller's
// miss and this one may already have refreshed the entry.
func (c *FetchCache) load(ctx context.Context, url string) (string, error) {
	if payload, ok := c.serve(url); ok {
		return payload, nil
	}

	payload, err := c.fetcher.Download(ctx, url)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.failures++
		c.log.WithError(err).WithField("url", url).Warn("Fetch failed")
		return "", err
	}
	c.fetches++
	c.entries[url] = &CacheEntry{
		URL:       url,
		Timestamp: c.now().Unix(),
		Uses:      0,
		Payload:   payload,
	}
	c.log.WithFields(map[string]interface{}{
		"url":    url,
		"policy": c.policy.String(),
		"size":   len(payload),
	}).Debug("Cache refreshed")
	return payload, nil
}

// Entry returns a copy of the entry for url.
func (c *FetchCache) Entry(url string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[url]
	if !ok {
		return CacheEntry{}, false
	}
	return *entry, true
}

// Entries returns copies of all entries sorted by URL, without payloads.
func (c *FetchCache) Entries() []CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]CacheEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		e := *entry
		e.Payload = ""
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Stats returns cache statistics
func (c *FetchCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Policy:   c.policy.String(),
		Interval: c.interval,
		Entries:  len(c.entries),
		Hits:     c.hits,
		Fetches:  c.fetches,
		Failures: c.failures,
	}
}
