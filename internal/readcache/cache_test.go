package readcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(clock *fakeClock) *Cache[[]string] {
	return New[[]string](Options{
		HotTTL:     8 * time.Second,
		StaleTTL:   30 * time.Second,
		MaxEntries: 3,
		Now:        clock.Now,
	})
}

func constLoad(v []string, source string, calls *atomic.Int32) LoadFunc[[]string] {
	return func(ctx context.Context) ([]string, string, error) {
		calls.Add(1)
		return v, source, nil
	}
}

func failLoad(err error, calls *atomic.Int32) LoadFunc[[]string] {
	return func(ctx context.Context) ([]string, string, error) {
		calls.Add(1)
		return nil, "", err
	}
}

func TestGet_MissThenHit(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	var calls atomic.Int32

	res, err := c.Get(context.Background(), "k", constLoad([]string{"a"}, "by_date_ids", &calls))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusMiss || res.Source != "by_date_ids" {
		t.Fatalf("expected miss from by_date_ids, got %s/%s", res.Status, res.Source)
	}

	clock.Advance(7 * time.Second)
	res, err = c.Get(context.Background(), "k", constLoad([]string{"b"}, "by_date_ids", &calls))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusHit || res.Value[0] != "a" {
		t.Fatalf("expected hit with cached value, got %s %v", res.Status, res.Value)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 load, got %d", calls.Load())
	}
}

func TestGet_HotEntryExpires(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	var calls atomic.Int32

	c.Get(context.Background(), "k", constLoad([]string{"a"}, "s", &calls))
	clock.Advance(8 * time.Second)
	res, _ := c.Get(context.Background(), "k", constLoad([]string{"b"}, "s", &calls))

	if res.Status != StatusMiss || res.Value[0] != "b" {
		t.Fatalf("expected reload after ttl, got %s %v", res.Status, res.Value)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 loads, got %d", calls.Load())
	}
}

func TestGet_ConcurrentIdenticalKeysLoadOnce(t *testing.T) {
	c := New[[]string](Options{})
	var calls atomic.Int32
	release := make(chan struct{})
	load := func(ctx context.Context) ([]string, string, error) {
		calls.Add(1)
		<-release
		return []string{"x", "y"}, "by_date_ids", nil
	}

	const n = 20
	var wg sync.WaitGroup
	results := make([]Result[[]string], n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Get(context.Background(), "list:20::items:0", load)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected exactly 1 backend load, got %d", calls.Load())
	}
	misses := 0
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("request %d failed: %v", i, errs[i])
		}
		if len(results[i].Value) != 2 || results[i].Value[0] != "x" {
			t.Fatalf("request %d got %v", i, results[i].Value)
		}
		if results[i].Status == StatusMiss {
			misses++
		}
	}
	if misses != 1 {
		t.Fatalf("expected exactly one miss, got %d", misses)
	}
}

func TestGet_ConcurrentWaitersShareFailure(t *testing.T) {
	c := New[[]string](Options{})
	var calls atomic.Int32
	release := make(chan struct{})
	boom := errors.New("connection reset")
	load := func(ctx context.Context) ([]string, string, error) {
		calls.Add(1)
		<-release
		return nil, "", boom
	}

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Get(context.Background(), "k", load)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, boom) {
			t.Fatalf("request %d: expected shared failure, got %v", i, err)
		}
	}
	if calls.Load() < 1 {
		t.Fatal("expected at least one load")
	}
}

func TestGet_StaleServedOnFailure(t *testing.T) {
	clock := newFakeClock()
	var failures []string
	c := New[[]string](Options{
		HotTTL:   8 * time.Second,
		StaleTTL: 30 * time.Second,
		Now:      clock.Now,
		OnFailure: func(key string, err error) {
			failures = append(failures, key)
		},
	})
	var calls atomic.Int32

	c.Get(context.Background(), "page1", constLoad([]string{"a", "b"}, "by_date_ids", &calls))
	clock.Advance(10 * time.Second)

	res, err := c.Get(context.Background(), "page2", failLoad(errors.New("boom"), &calls))
	if err != nil {
		t.Fatalf("expected stale fallback, got error %v", err)
	}
	if res.Status != StatusStale || res.Source != "by_date_ids_stale" {
		t.Fatalf("expected stale by_date_ids_stale, got %s/%s", res.Status, res.Source)
	}
	if len(res.Value) != 2 {
		t.Fatalf("expected previous data set, got %v", res.Value)
	}
	if len(failures) != 1 || failures[0] != "page2" {
		t.Fatalf("expected failure to be reported once, got %v", failures)
	}
}

func TestGet_StaleTooOldSurfacesError(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	var calls atomic.Int32

	c.Get(context.Background(), "page1", constLoad([]string{"a"}, "s", &calls))
	clock.Advance(31 * time.Second)

	_, err := c.Get(context.Background(), "page1", failLoad(errors.New("boom"), &calls))
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestGet_InFlightServesFreshStale(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	var calls atomic.Int32

	c.Get(context.Background(), "other", constLoad([]string{"old"}, "by_id", &calls))

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Get(context.Background(), "slow", func(ctx context.Context) ([]string, string, error) {
			close(started)
			<-release
			return []string{"new"}, "by_date_ids", nil
		})
	}()
	<-started

	res, err := c.Get(context.Background(), "slow", constLoad([]string{"dup"}, "x", &calls))
	close(release)
	<-done

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusStale || res.Source != "by_id_stale" || res.Value[0] != "old" {
		t.Fatalf("expected stale while in flight, got %s/%s %v", res.Status, res.Source, res.Value)
	}
	if calls.Load() != 1 {
		t.Fatalf("in-flight duplicate must not load, got %d loads", calls.Load())
	}
}

func TestGet_LoadIgnoresCallerCancellation(t *testing.T) {
	c := New[[]string](Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := c.Get(ctx, "k", func(ctx context.Context) ([]string, string, error) {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return []string{"ok"}, "s", nil
	})
	if err != nil {
		t.Fatalf("expected detached load to succeed, got %v", err)
	}
	if res.Value[0] != "ok" {
		t.Fatalf("unexpected value %v", res.Value)
	}
}

func TestStore_EvictsInInsertionOrder(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	var calls atomic.Int32

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("k%d", i)
		c.Get(context.Background(), key, constLoad([]string{key}, "s", &calls))
	}
	if c.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", c.Len())
	}

	// k0 and k1 were evicted, k4 is still hot.
	res, _ := c.Get(context.Background(), "k4", constLoad([]string{"new"}, "s", &calls))
	if res.Status != StatusHit {
		t.Fatalf("expected k4 hit, got %s", res.Status)
	}
	res, _ = c.Get(context.Background(), "k0", constLoad([]string{"new"}, "s", &calls))
	if res.Status != StatusMiss {
		t.Fatalf("expected k0 evicted, got %s", res.Status)
	}
}

func TestPurge_KeepsStale(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	var calls atomic.Int32

	c.Get(context.Background(), "k", constLoad([]string{"a"}, "s", &calls))
	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("expected empty hot tier, got %d", c.Len())
	}

	res, err := c.Get(context.Background(), "k", failLoad(errors.New("down"), &calls))
	if err != nil {
		t.Fatalf("expected stale after purge, got %v", err)
	}
	if res.Status != StatusStale {
		t.Fatalf("expected stale, got %s", res.Status)
	}
}
