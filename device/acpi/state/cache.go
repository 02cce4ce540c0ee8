package state

import (
	"acpievt/device/acpi/mutex"
	"acpievt/kernel"
	"context"
)

// DefaultMaxDepth is the default number of idle states retained by a Cache.
const DefaultMaxDepth = 64

var (
	// ErrNoMemory is returned when a new state cannot be allocated.
	ErrNoMemory = &kernel.Error{Module: "acpi_state", Message: "out of memory"}

	// ErrBadParameter is returned for invalid kinds or nil states.
	ErrBadParameter = &kernel.Error{Module: "acpi_state", Message: "bad parameter"}

	// allocFn allocates a fresh state. It is mocked by tests.
	allocFn = func() *State { return new(State) }
)

// Stats reports Cache activity.
type Stats struct {
	Requests    uint64
	Hits        uint64
	Allocations uint64
	Frees       uint64
	Depth       int
}

// Cache is a free list of idle states. The free list never holds more than
// maxDepth states; releasing a state to a full cache discards it so that the
// memory retained by the pool stays bounded.
//
// The free list is protected by the mutex.Caches ordered mutex.
type Cache struct {
	mutexes  *mutex.Set
	free     Stack
	maxDepth int
	stats    Stats
}

// NewCache creates a state cache that retains up to maxDepth idle states. A
// non-positive maxDepth selects DefaultMaxDepth.
func NewCache(mutexes *mutex.Set, maxDepth int) *Cache {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	return &Cache{mutexes: mutexes, maxDepth: maxDepth}
}

// Acquire returns a zeroed state tagged with kind. Cached states are reused
// when available; otherwise a new state is allocated outside the mutex.
func (c *Cache) Acquire(ctx context.Context, kind Kind) (*State, *kernel.Error) {
	if kind < KindUpdate || kind > KindPackage {
		return nil, ErrBadParameter
	}

	if err := c.mutexes.Acquire(ctx, mutex.Caches); err != nil {
		return nil, err
	}

	c.stats.Requests++
	s := c.free.Pop()
	if s != nil {
		c.stats.Hits++
	} else {
		c.stats.Allocations++
	}

	if err := c.mutexes.Release(ctx, mutex.Caches); err != nil {
		return nil, err
	}

	if s == nil {
		if s = allocFn(); s == nil {
			return nil, ErrNoMemory
		}
	}

	s.reset(kind)
	return s, nil
}

// Release zero-fills s and returns it to the free list. If the free list is
// already at its maximum depth, s is discarded instead.
func (c *Cache) Release(ctx context.Context, s *State) *kernel.Error {
	if s == nil {
		return ErrBadParameter
	}

	*s = State{}

	if err := c.mutexes.Acquire(ctx, mutex.Caches); err != nil {
		return err
	}

	if c.free.Len() >= c.maxDepth {
		c.stats.Frees++
	} else {
		c.free.Push(s)
	}

	return c.mutexes.Release(ctx, mutex.Caches)
}

// Purge discards every idle state held by the cache.
func (c *Cache) Purge(ctx context.Context) *kernel.Error {
	if err := c.mutexes.Acquire(ctx, mutex.Caches); err != nil {
		return err
	}

	for c.free.Pop() != nil {
		c.stats.Frees++
	}

	return c.mutexes.Release(ctx, mutex.Caches)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats(ctx context.Context) (Stats, *kernel.Error) {
	if err := c.mutexes.Acquire(ctx, mutex.Caches); err != nil {
		return Stats{}, err
	}

	stats := c.stats
	stats.Depth = c.free.Len()

	return stats, c.mutexes.Release(ctx, mutex.Caches)
}
