package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"covid-parser/pkg/logger"
)

type countingFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func newCountingFetcher() *countingFetcher {
	return &countingFetcher{calls: make(map[string]int)}
}

func (f *countingFetcher) Download(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.calls[url]++
	return fmt.Sprintf("%s#%d", url, f.calls[url]), nil
}

func (f *countingFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCache(f Fetcher, policy Policy, interval int64, clock *fakeClock) *FetchCache {
	opts := []Option{WithLogger(logger.Nop())}
	if clock != nil {
		opts = append(opts, WithClock(clock.Now))
	}
	return NewFetchCache(f, policy, interval, opts...)
}

const testURL = "https://example.com/data"

func TestFetchCache_AlwaysRefresh(t *testing.T) {
	f := newCountingFetcher()
	c := newTestCache(f, PolicyAlways, 0, nil)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		payload, err := c.Get(ctx, testURL)
		if err != nil {
			t.Fatalf("Get #%d: %v", i, err)
		}
		want := fmt.Sprintf("%s#%d", testURL, i)
		if payload != want {
			t.Errorf("Get #%d: expected %q, got %q", i, want, payload)
		}
	}
	if f.count(testURL) != 3 {
		t.Errorf("Expected 3 fetches, got %d", f.count(testURL))
	}
}

func TestFetchCache_SecondGetWithinWindowServesCachedPayload(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_600_000_000, 0)}
	policies := []struct {
		name     string
		policy   Policy
		interval int64
	}{
		{"use-count", PolicyUseCount, 3},
		{"time", PolicyTime, 60},
	}

	for _, tt := range policies {
		t.Run(tt.name, func(t *testing.T) {
			f := newCountingFetcher()
			c := newTestCache(f, tt.policy, tt.interval, clock)
			ctx := context.Background()

			first, err := c.Get(ctx, testURL)
			if err != nil {
				t.Fatalf("first Get: %v", err)
			}
			second, err := c.Get(ctx, testURL)
			if err != nil {
				t.Fatalf("second Get: %v", err)
			}
			if first != second {
				t.Errorf("Expected identical payloads, got %q and %q", first, second)
			}
			if f.count(testURL) != 1 {
				t.Errorf("Expected 1 fetch, got %d", f.count(testURL))
			}
		})
	}
}

func TestFetchCache_UseCountThreshold(t *testing.T) {
	f := newCountingFetcher()
	c := newTestCache(f, PolicyUseCount, 3, nil)
	ctx := context.Background()

	if _, err := c.Get(ctx, testURL); err != nil {
		t.Fatalf("initial Get: %v", err)
	}

	// exactly threshold served calls
	for i := 0; i < 3; i++ {
		if _, err := c.Get(ctx, testURL); err != nil {
			t.Fatalf("served Get %d: %v", i, err)
		}
	}
	entry, _ := c.Entry(testURL)
	if entry.Uses != 3 {
		t.Fatalf("Expected uses 3, got %d", entry.Uses)
	}
	if f.count(testURL) != 1 {
		t.Fatalf("Expected 1 fetch before threshold, got %d", f.count(testURL))
	}

	payload, err := c.Get(ctx, testURL)
	if err != nil {
		t.Fatalf("refresh Get: %v", err)
	}
	if f.count(testURL) != 2 {
		t.Errorf("Expected exactly one refetch, got %d fetches", f.count(testURL))
	}
	if payload != testURL+"#2" {
		t.Errorf("Expected refreshed payload, got %q", payload)
	}
	entry, _ = c.Entry(testURL)
	if entry.Uses != 0 {
		t.Errorf("Expected uses reset to 0, got %d", entry.Uses)
	}
}

func TestFetchCache_TimeBoundary(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_600_000_000, 0)}
	f := newCountingFetcher()
	c := newTestCache(f, PolicyTime, 30, clock)
	ctx := context.Background()

	if _, err := c.Get(ctx, testURL); err != nil {
		t.Fatalf("initial Get: %v", err)
	}
	stamp := clock.now.Unix()

	clock.Advance(30 * time.Second)
	if _, err := c.Get(ctx, testURL); err != nil {
		t.Fatalf("Get at boundary: %v", err)
	}
	if f.count(testURL) != 1 {
		t.Fatalf("Expected no refetch at timestamp+interval, got %d fetches", f.count(testURL))
	}

	clock.Advance(time.Second)
	if _, err := c.Get(ctx, testURL); err != nil {
		t.Fatalf("Get past boundary: %v", err)
	}
	if f.count(testURL) != 2 {
		t.Fatalf("Expected refetch at timestamp+interval+1, got %d fetches", f.count(testURL))
	}

	entry, _ := c.Entry(testURL)
	if entry.Timestamp != stamp+31 {
		t.Errorf("Expected timestamp %d, got %d", stamp+31, entry.Timestamp)
	}
}

func TestFetchCache_FailureKeepsEntry(t *testing.T) {
	f := newCountingFetcher()
	c := newTestCache(f, PolicyUseCount, 1, nil)
	ctx := context.Background()

	if _, err := c.Get(ctx, testURL); err != nil {
		t.Fatalf("initial Get: %v", err)
	}
	if _, err := c.Get(ctx, testURL); err != nil {
		t.Fatalf("served Get: %v", err)
	}

	boom := errors.New("connection refused")
	f.err = boom
	if _, err := c.Get(ctx, testURL); !errors.Is(err, boom) {
		t.Fatalf("Expected fetch error to propagate, got %v", err)
	}

	entry, ok := c.Entry(testURL)
	if !ok {
		t.Fatal("Expected entry to survive failed refresh")
	}
	if entry.Uses != 1 || entry.Payload != testURL+"#1" {
		t.Errorf("Entry changed by failed refresh: %+v", entry)
	}

	stats := c.Stats()
	if stats.Failures != 1 || stats.Fetches != 1 || stats.Hits != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestFetchCache_FirstFetchFailureCreatesNoEntry(t *testing.T) {
	f := newCountingFetcher()
	f.err = errors.New("HTTP 404")
	c := newTestCache(f, PolicyTime, 60, nil)

	if _, err := c.Get(context.Background(), testURL); err == nil {
		t.Fatal("Expected error")
	}
	if _, ok := c.Entry(testURL); ok {
		t.Error("Expected no entry after failed first fetch")
	}
}

func TestFetchCache_ConcurrentGets(t *testing.T) {
	f := newCountingFetcher()
	c := newTestCache(f, PolicyUseCount, 1000, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Get(ctx, testURL); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	wg.Wait()

	if f.count(testURL) != 1 {
		t.Errorf("Expected a single fetch, got %d", f.count(testURL))
	}
	// callers that joined the first download are not counted as uses
	entry, _ := c.Entry(testURL)
	if uint64(entry.Uses) != c.Stats().Hits {
		t.Errorf("Expected uses to match hits, got %d uses and %d hits", entry.Uses, c.Stats().Hits)
	}
	if entry.Uses > 49 {
		t.Errorf("Expected at most 49 uses, got %d", entry.Uses)
	}
}

// stallingFetcher blocks downloads of one URL until release is closed.
type stallingFetcher struct {
	slow    string
	started chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls map[string]int
}

func newStallingFetcher(slow string) *stallingFetcher {
	return &stallingFetcher{
		slow:    slow,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
		calls:   make(map[string]int),
	}
}

func (f *stallingFetcher) Download(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	f.calls[url]++
	f.mu.Unlock()
	if url == f.slow {
		f.started <- struct{}{}
		<-f.release
	}
	return "payload:" + url, nil
}

func (f *stallingFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// within fails the test if fn does not return in time.
func within(t *testing.T, d time.Duration, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s still blocked after %s", what, d)
	}
}

func TestFetchCache_SlowFetchDoesNotBlockOthers(t *testing.T) {
	const slowURL = "http://slow.example/"
	const fastURL = "http://fast.example/"
	f := newStallingFetcher(slowURL)
	c := newTestCache(f, PolicyUseCount, 100, nil)
	ctx := context.Background()

	if _, err := c.Get(ctx, fastURL); err != nil {
		t.Fatalf("warm Get: %v", err)
	}

	slowDone := make(chan string, 1)
	go func() {
		payload, err := c.Get(ctx, slowURL)
		if err != nil {
			t.Errorf("slow Get: %v", err)
		}
		slowDone <- payload
	}()
	<-f.started

	within(t, time.Second, "Stats", func() { c.Stats() })
	within(t, time.Second, "Entries", func() { c.Entries() })
	within(t, time.Second, "cached Get", func() {
		if _, err := c.Get(ctx, fastURL); err != nil {
			t.Errorf("cached Get: %v", err)
		}
	})
	within(t, time.Second, "uncached Get", func() {
		if _, err := c.Get(ctx, "http://other.example/"); err != nil {
			t.Errorf("uncached Get: %v", err)
		}
	})

	// a second caller for the slow URL waits on the same download and
	// gives up when its own context ends
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	within(t, time.Second, "Get with expiring context", func() {
		if _, err := c.Get(waitCtx, slowURL); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Expected deadline exceeded, got %v", err)
		}
	})

	close(f.release)
	if got := <-slowDone; got != "payload:"+slowURL {
		t.Errorf("Expected slow payload, got %q", got)
	}
	if f.count(slowURL) != 1 {
		t.Errorf("Expected one download of the slow URL, got %d", f.count(slowURL))
	}
	if payload, err := c.Get(ctx, slowURL); err != nil || payload != "payload:"+slowURL {
		t.Errorf("Expected cached slow payload, got %q, %v", payload, err)
	}
}

func TestFetchCache_EntriesOmitPayload(t *testing.T) {
	f := newCountingFetcher()
	c := newTestCache(f, PolicyUseCount, 5, nil)
	ctx := context.Background()

	for _, u := range []string{"https://b.example", "https://a.example"} {
		if _, err := c.Get(ctx, u); err != nil {
			t.Fatalf("Get %s: %v", u, err)
		}
	}

	entries := c.Entries()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].URL != "https://a.example" {
		t.Errorf("Expected sorted entries, got %s first", entries[0].URL)
	}
	for _, e := range entries {
		if e.Payload != "" {
			t.Errorf("Expected payload stripped for %s", e.URL)
		}
	}
}

func TestPolicy_Valid(t *testing.T) {
	for _, p := range []Policy{PolicyAlways, PolicyUseCount, PolicyTime} {
		if !p.Valid() {
			t.Errorf("Expected %s to be valid", p)
		}
	}
	if Policy(3).Valid() || Policy(-1).Valid() {
		t.Error("Expected out-of-range policies to be invalid")
	}
}
