package event

import (
	"acpievt/device/acpi/mutex"
	"acpievt/kernel"
	"context"
)

// Submit queues the control method of GPE n for deferred execution. It never
// blocks; ErrQueueFull is returned if the queue has no room left.
func (s *Subsystem) Submit(n uint32) *kernel.Error {
	if s.terminated.Load() {
		return mutex.ErrNotInitialized
	}

	select {
	case s.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued deferred work items.
func (s *Subsystem) Pending() int {
	return len(s.queue)
}

// Start launches workers goroutines that execute queued GPE control methods
// until ctx is cancelled or the subsystem is terminated. Each worker runs
// with its own mutex thread identity.
func (s *Subsystem) Start(ctx context.Context, workers int) *kernel.Error {
	if workers <= 0 {
		return ErrBadParameter
	}

	if s.terminated.Load() {
		return mutex.ErrNotInitialized
	}

	for i := 0; i < workers; i++ {
		s.workers.Add(1)
		go s.worker(mutex.WithThread(ctx))
	}

	s.log.Debugf("started %d deferred worker(s)", workers)
	return nil
}

func (s *Subsystem) worker(ctx context.Context) {
	defer s.workers.Done()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case n := <-s.queue:
			s.runDeferred(ctx, n)
		}
	}
}

// RunPending synchronously executes every queued work item using the thread
// identity carried by ctx and returns the number of items executed.
func (s *Subsystem) RunPending(ctx context.Context) int {
	if s.terminated.Load() {
		return 0
	}

	var count int
	for {
		select {
		case n := <-s.queue:
			s.runDeferred(ctx, n)
			count++
		default:
			return count
		}
	}
}

// runDeferred evaluates the control method of GPE n. The GPE is always
// re-enabled on exit so that it becomes armed again regardless of whether
// the method succeeded.
func (s *Subsystem) runDeferred(ctx context.Context, n uint32) {
	ev := s.event(n)
	if ev == nil {
		return
	}

	var info *gpeInfo
	if err := s.withMutex(ctx, mutex.Events, func() *kernel.Error {
		info = ev.info.Load()
		return nil
	}); err != nil {
		s.log.Errorf("unable to snapshot GPE %#x: %s", n, err.Message)
		info = nil
	}

	if info != nil && info.method != nil && s.ns != nil {
		if err := s.ns.Evaluate(ctx, info.method); err != nil {
			s.log.Errorf("method for GPE %#x failed: %s", n, err.Message)
		}
	}

	if err := s.mutexes.Acquire(ctx, mutex.Hardware); err != nil {
		s.log.Errorf("unable to acquire %s for GPE %#x: %s", mutex.Hardware, n, err.Message)
	} else {
		defer s.mutexes.Release(ctx, mutex.Hardware)
	}

	if info == nil || info.trigger != TriggerEdge {
		s.clearGPEStatus(ev)
	}

	if err := s.setGPEEnable(ev, true); err != nil {
		s.log.Errorf("unable to re-arm GPE %#x: %s", n, err.Message)
	}
}
