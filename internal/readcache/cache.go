// Package readcache is an in-process read-through cache with three tiers: a
// short lived hot map keyed by request signature, coalescing of concurrent
// loads of the same signature, and a single stale entry served when a load
// is already running or has failed.
package readcache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type Status string

const (
	StatusHit       Status = "hit"
	StatusMiss      Status = "miss"
	StatusCoalesced Status = "coalesced"
	StatusStale     Status = "stale"
)

const StaleSuffix = "_stale"

// Entry is immutable once published.
type Entry[T any] struct {
	At     time.Time
	Value  T
	Source string
}

type Result[T any] struct {
	Entry[T]
	Status Status
}

// LoadFunc produces a value and the name of the strategy that produced it.
type LoadFunc[T any] func(ctx context.Context) (T, string, error)

type Options struct {
	HotTTL     time.Duration
	StaleTTL   time.Duration
	MaxEntries int
	// OnFailure sees every failed load before any stale fallback is built.
	OnFailure func(key string, err error)
	Now       func() time.Time
}

type Cache[T any] struct {
	opts Options

	mu       sync.Mutex
	hot      map[string]Entry[T]
	order    []string // insertion order of hot keys
	inflight map[string]struct{}
	stale    *Entry[T]

	group singleflight.Group
}

func New[T any](opts Options) *Cache[T] {
	if opts.HotTTL <= 0 {
		opts.HotTTL = 8 * time.Second
	}
	if opts.StaleTTL <= 0 {
		opts.StaleTTL = 30 * time.Second
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 200
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache[T]{
		opts:     opts,
		hot:      make(map[string]Entry[T]),
		inflight: make(map[string]struct{}),
	}
}

// Get serves key from the hot tier, joins a running load of the same key, or
// runs load. At most one load per key runs at a time and every waiter sees
// its value or its error. The load is detached from ctx cancellation so a
// caller that gives up does not fail the others.
func (c *Cache[T]) Get(ctx context.Context, key string, load LoadFunc[T]) (Result[T], error) {
	now := c.opts.Now()

	c.mu.Lock()
	if e, ok := c.hot[key]; ok && now.Sub(e.At) < c.opts.HotTTL {
		c.mu.Unlock()
		return Result[T]{Entry: e, Status: StatusHit}, nil
	}
	_, running := c.inflight[key]
	if running {
		if s, ok := c.freshStale(now); ok {
			c.mu.Unlock()
			return s, nil
		}
	}
	c.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	executed := false
	v, err, _ := c.group.Do(key, func() (any, error) {
		executed = true
		return c.load(detached, key, load)
	})
	if err != nil {
		c.mu.Lock()
		s, ok := c.freshStale(c.opts.Now())
		c.mu.Unlock()
		if ok {
			return s, nil
		}
		return Result[T]{}, err
	}

	status := StatusMiss
	if !executed {
		status = StatusCoalesced
	}
	return Result[T]{Entry: v.(Entry[T]), Status: status}, nil
}

func (c *Cache[T]) load(ctx context.Context, key string, load LoadFunc[T]) (Entry[T], error) {
	c.mu.Lock()
	c.inflight[key] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
	}()

	value, source, err := load(ctx)
	if err != nil {
		if c.opts.OnFailure != nil {
			c.opts.OnFailure(key, err)
		}
		return Entry[T]{}, err
	}
	e := Entry[T]{At: c.opts.Now(), Value: value, Source: source}
	c.store(key, e)
	return e, nil
}

// store publishes e to the hot tier and as the stale fallback. The two
// writes are independent; neither is rolled back if the other is skipped.
func (c *Cache[T]) store(key string, e Entry[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.hot[key]; !ok {
		c.order = append(c.order, key)
	}
	c.hot[key] = e
	for len(c.order) > c.opts.MaxEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.hot, oldest)
	}
	c.stale = &e
}

// freshStale must be called with c.mu held.
func (c *Cache[T]) freshStale(now time.Time) (Result[T], bool) {
	if c.stale == nil || now.Sub(c.stale.At) >= c.opts.StaleTTL {
		return Result[T]{}, false
	}
	e := *c.stale
	e.Source += StaleSuffix
	return Result[T]{Entry: e, Status: StatusStale}, true
}

// Purge empties the hot tier. The stale entry survives so a failing backend
// still has something to fall back on.
func (c *Cache[T]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hot = make(map[string]Entry[T])
	c.order = nil
}

func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.hot)
}
