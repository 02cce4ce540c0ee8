package mutex

import (
	"context"
	"sync/atomic"
)

// ThreadID identifies a thread of execution for the purpose of mutex
// ownership tracking.
type ThreadID uint64

// NoThread is the owner of an unheld mutex.
const NoThread ThreadID = 0

type threadKey struct{}

var lastThreadID atomic.Uint64

// WithThread returns a copy of ctx carrying a newly allocated ThreadID. Each
// goroutine that acquires ordered mutexes must use its own thread context.
func WithThread(ctx context.Context) context.Context {
	return context.WithValue(ctx, threadKey{}, ThreadID(lastThreadID.Add(1)))
}

// ThreadFrom returns the ThreadID attached to ctx.
func ThreadFrom(ctx context.Context) (ThreadID, bool) {
	if ctx == nil {
		return NoThread, false
	}

	tid, ok := ctx.Value(threadKey{}).(ThreadID)
	return tid, ok && tid != NoThread
}
