// Package mutex implements the ordered set of mutexes shared by all ACPI
// components. Every mutex has a fixed ordinal; a thread must acquire mutexes
// in ascending ordinal order and release them in the opposite order. Any
// violation is reported to the caller as an error instead of turning into an
// intermittent deadlock.
package mutex

import (
	"acpievt/kernel"
	"context"
	"sync/atomic"
)

// ID identifies one of the ordered mutexes. Lower ids must be acquired first.
type ID uint8

// The list of ordered mutexes, in acquisition order.
const (
	Execute ID = iota
	Interpreter
	Tables
	Namespace
	Events
	Hardware
	Caches

	// NumMutex is the number of mutexes in a Set.
	NumMutex
)

var mutexNames = [NumMutex]string{
	Execute:     "ACPI_MTX_Execute",
	Interpreter: "ACPI_MTX_Interpreter",
	Tables:      "ACPI_MTX_Tables",
	Namespace:   "ACPI_MTX_Namespace",
	Events:      "ACPI_MTX_Events",
	Hardware:    "ACPI_MTX_Hardware",
	Caches:      "ACPI_MTX_Caches",
}

// String implements fmt.Stringer for ID.
func (id ID) String() string {
	if id < NumMutex {
		return mutexNames[id]
	}
	return "ACPI_MTX_Unknown"
}

// Errors returned by Acquire and Release. The ordering errors always point to
// a defect in the caller and are never retried.
var (
	ErrBadParameter     = &kernel.Error{Module: "acpi_mutex", Message: "bad parameter"}
	ErrAlreadyAcquired  = &kernel.Error{Module: "acpi_mutex", Message: "mutex already acquired by this thread"}
	ErrAcquireDeadlock  = &kernel.Error{Module: "acpi_mutex", Message: "invalid acquire order: thread holds a higher-ordered mutex"}
	ErrNotAcquired      = &kernel.Error{Module: "acpi_mutex", Message: "mutex not acquired by this thread"}
	ErrReleaseDeadlock  = &kernel.Error{Module: "acpi_mutex", Message: "invalid release order: thread still holds a higher-ordered mutex"}
	ErrNotInitialized   = &kernel.Error{Module: "acpi_mutex", Message: "mutex set has been closed"}
	ErrAcquireCancelled = &kernel.Error{Module: "acpi_mutex", Message: "acquire cancelled while waiting"}
)

// orderedMutex pairs a binary semaphore with the identity of its holder.
type orderedMutex struct {
	sem chan struct{}

	// owner is NoThread while the mutex is unheld. It is written by the
	// holder and read by any thread checking acquisition order.
	owner atomic.Uint64

	useCount atomic.Uint32
}

// Set is the collection of ordered mutexes. A Set is created when the ACPI
// core is brought up and closed when it shuts down.
type Set struct {
	mutexes [NumMutex]orderedMutex
	closed  chan struct{}
	isDone  atomic.Bool
}

// NewSet creates a Set where all mutexes are unheld.
func NewSet() *Set {
	s := &Set{closed: make(chan struct{})}
	for i := range s.mutexes {
		s.mutexes[i].sem = make(chan struct{}, 1)
	}
	return s
}

// Close destroys the Set. Threads blocked in Acquire are woken up with
// ErrNotInitialized; subsequent calls fail with the same error.
func (s *Set) Close() {
	if s.isDone.CompareAndSwap(false, true) {
		close(s.closed)
	}
}

// Acquire obtains mutex id on behalf of the thread attached to ctx, blocking
// until it becomes available.
func (s *Set) Acquire(ctx context.Context, id ID) *kernel.Error {
	if id >= NumMutex {
		return ErrBadParameter
	}

	tid, ok := ThreadFrom(ctx)
	if !ok {
		return ErrBadParameter
	}

	if s.isDone.Load() {
		return ErrNotInitialized
	}

	// The caller must not hold this mutex nor any mutex that comes after
	// it in the acquisition order.
	for i := id; i < NumMutex; i++ {
		if ThreadID(s.mutexes[i].owner.Load()) != tid {
			continue
		}

		if i == id {
			return ErrAlreadyAcquired
		}
		return ErrAcquireDeadlock
	}

	m := &s.mutexes[id]
	select {
	case m.sem <- struct{}{}:
	case <-s.closed:
		return ErrNotInitialized
	case <-ctx.Done():
		return ErrAcquireCancelled
	}

	m.owner.Store(uint64(tid))
	m.useCount.Add(1)
	return nil
}

// Release relinquishes mutex id. The caller must own it and must have already
// released every mutex that comes after it in the acquisition order.
func (s *Set) Release(ctx context.Context, id ID) *kernel.Error {
	if id >= NumMutex {
		return ErrBadParameter
	}

	tid, ok := ThreadFrom(ctx)
	if !ok {
		return ErrBadParameter
	}

	m := &s.mutexes[id]
	if owner := ThreadID(m.owner.Load()); owner == NoThread || owner != tid {
		return ErrNotAcquired
	}

	for i := id + 1; i < NumMutex; i++ {
		if ThreadID(s.mutexes[i].owner.Load()) == tid {
			return ErrReleaseDeadlock
		}
	}

	// Ownership is cleared before the semaphore is signalled so that the
	// next holder never observes a stale owner.
	m.owner.Store(uint64(NoThread))
	<-m.sem
	return nil
}

// Owner returns the thread currently holding mutex id or NoThread.
func (s *Set) Owner(id ID) ThreadID {
	if id >= NumMutex {
		return NoThread
	}
	return ThreadID(s.mutexes[id].owner.Load())
}

// UseCount returns the number of times mutex id has been acquired.
func (s *Set) UseCount(id ID) uint32 {
	if id >= NumMutex {
		return 0
	}
	return s.mutexes[id].useCount.Load()
}
