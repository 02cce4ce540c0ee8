// Package event implements the ACPI event core: detection and dispatch of
// fixed events and general-purpose events (GPEs) signalled through the SCI,
// plus the deferred execution of GPE control methods.
//
// Detection and dispatch (HandleSCI, DetectFixedEvents, DetectGPEs) run at
// interrupt level. They never block and never acquire an ordered mutex;
// handler and GPE metadata is published through atomic pointers instead.
// All other operations serialize through the ordered mutex set.
package event

import (
	"acpievt/device/acpi/hw"
	"acpievt/device/acpi/mutex"
	"acpievt/device/acpi/osl"
	"acpievt/device/acpi/table"
	"acpievt/kernel"
	"acpievt/kernel/kfmt"
	"context"
	"sync"
	"sync/atomic"
)

const (
	// DefaultMaxGPENumber is the GPE number ceiling used when Config does
	// not specify one.
	DefaultMaxGPENumber = 255

	// DefaultQueueDepth is the capacity of the deferred work queue used
	// when Config does not specify one.
	DefaultQueueDepth = 32

	// maxGPENumberLimit keeps every dense index representable as a uint16
	// with room for the invalid index sentinel.
	maxGPENumberLimit = 0xfffe
)

var (
	ErrConfiguration = &kernel.Error{Module: "acpi_evt", Message: "invalid event configuration"}
	ErrAlreadyExists = &kernel.Error{Module: "acpi_evt", Message: "handler already installed"}
	ErrNotExist      = &kernel.Error{Module: "acpi_evt", Message: "no handler installed"}
	ErrQueueFull     = &kernel.Error{Module: "acpi_evt", Message: "deferred work queue is full"}
	ErrBadParameter  = &kernel.Error{Module: "acpi_evt", Message: "bad parameter"}
)

// Verdict is the result of servicing an event.
type Verdict uint8

const (
	// NotHandled indicates that no event was serviced.
	NotHandled Verdict = iota

	// Handled indicates that at least one event was serviced.
	Handled
)

// String implements fmt.Stringer for Verdict.
func (v Verdict) String() string {
	if v == Handled {
		return "handled"
	}
	return "not handled"
}

// Status describes the hardware and software state of an event.
type Status struct {
	// Set is true if the event status bit is set.
	Set bool

	// Enabled is true if the event enable bit is set.
	Enabled bool

	// HasHandler is true if a handler is installed for the event.
	HasHandler bool
}

// Namespace is the subset of the ACPI namespace required by the event core.
// Handles are opaque to the event core.
type Namespace interface {
	// FindMethods invokes fn for each control method anywhere below the
	// scope at scopePath. fn must be invoked without holding any ordered
	// mutex.
	FindMethods(ctx context.Context, scopePath string, fn func(name string, handle interface{})) *kernel.Error

	// Evaluate runs the control method referenced by handle.
	Evaluate(ctx context.Context, handle interface{}) *kernel.Error

	// AcquireHandle and ReleaseHandle adjust the reference count of the
	// object referenced by handle.
	AcquireHandle(ctx context.Context, handle interface{}) *kernel.Error
	ReleaseHandle(ctx context.Context, handle interface{}) *kernel.Error
}

// Config contains the parameters for bringing up the event core.
type Config struct {
	// Platform provides access to the hardware address spaces.
	Platform osl.Platform

	// FADT describes the fixed and GPE register blocks.
	FADT *table.FADT

	// Namespace is used for discovering and evaluating GPE control
	// methods. It may be nil if no methods are registered.
	Namespace Namespace

	// Mutexes is the ordered mutex set used by the subsystem. If nil, a
	// private set is created and closed when the subsystem terminates.
	Mutexes *mutex.Set

	// MaxGPENumber is the highest GPE number the platform supports.
	MaxGPENumber uint32

	// QueueDepth is the capacity of the deferred work queue.
	QueueDepth int

	// Logger receives the subsystem log output.
	Logger *kfmt.Logger
}

// Subsystem is the context object owning all fixed-event and GPE state. It
// is created by Init and torn down by Terminate.
type Subsystem struct {
	regs      *hw.Registers
	fadt      *table.FADT
	ns        Namespace
	mutexes   *mutex.Set
	ownsMutex bool
	log       *kfmt.Logger

	fixedHandlers [NumFixedEvents]atomic.Pointer[fixedHandler]

	gpeBlocks    []gpeBlock
	gpeRegisters []gpeRegister
	gpeEvents    []gpeEvent
	gpeIndex     []uint16

	queue      chan uint32
	done       chan struct{}
	workers    sync.WaitGroup
	terminated atomic.Bool
}

// Init brings up the event core described by cfg. Fixed events are cleared
// and armed and all GPEs are cleared and disabled. GPE block configuration
// errors abort the initialization and no subsystem is returned.
func Init(ctx context.Context, cfg Config) (*Subsystem, *kernel.Error) {
	if cfg.Platform == nil || cfg.FADT == nil {
		return nil, ErrBadParameter
	}

	if cfg.MaxGPENumber == 0 {
		cfg.MaxGPENumber = DefaultMaxGPENumber
	}
	if cfg.MaxGPENumber > maxGPENumberLimit {
		return nil, ErrConfiguration
	}

	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}

	if cfg.Logger == nil {
		cfg.Logger = &kfmt.Logger{Module: "acpi_evt", Level: kfmt.LevelInfo}
	}

	s := &Subsystem{
		regs:    hw.NewRegisters(cfg.Platform, cfg.FADT),
		fadt:    cfg.FADT,
		ns:      cfg.Namespace,
		mutexes: cfg.Mutexes,
		log:     cfg.Logger,
		queue:   make(chan uint32, cfg.QueueDepth),
		done:    make(chan struct{}),
	}

	if s.mutexes == nil {
		s.mutexes = mutex.NewSet()
		s.ownsMutex = true
	}

	if err := s.initGPEBlocks(cfg.MaxGPENumber); err != nil {
		s.log.Errorf("GPE block configuration rejected: %s", err.Message)
		s.closeMutexes()
		return nil, err
	}

	if err := s.initFixedEvents(ctx); err != nil {
		s.closeMutexes()
		return nil, err
	}

	if err := s.initGPEHardware(ctx); err != nil {
		s.closeMutexes()
		return nil, err
	}

	s.log.Infof("event core online: %d GPE block(s), %d GPE(s)", len(s.gpeBlocks), len(s.gpeEvents))
	return s, nil
}

// Registers returns the logical register map used by the subsystem. It gives
// access to the named bit helpers.
func (s *Subsystem) Registers() *hw.Registers {
	return s.regs
}

// Mutexes returns the ordered mutex set used by the subsystem.
func (s *Subsystem) Mutexes() *mutex.Set {
	return s.mutexes
}

// HandleSCI services an SCI by detecting and dispatching all pending fixed
// events and GPEs. It is meant to be invoked by the platform interrupt
// handler.
func (s *Subsystem) HandleSCI() Verdict {
	return s.DetectFixedEvents() | s.DetectGPEs()
}

// Terminate stops the deferred workers, disables all events, drops every
// installed handler and releases the namespace references held for GPE
// control methods. The subsystem cannot be used after Terminate returns.
func (s *Subsystem) Terminate(ctx context.Context) *kernel.Error {
	if !s.terminated.CompareAndSwap(false, true) {
		return mutex.ErrNotInitialized
	}

	close(s.done)
	s.workers.Wait()

	var (
		firstErr *kernel.Error
		methods  []interface{}
	)
	keep := func(err *kernel.Error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	keep(s.withMutex(ctx, mutex.Events, func() *kernel.Error {
		err := s.withMutex(ctx, mutex.Hardware, func() *kernel.Error {
			var hwErr *kernel.Error
			for ev := FixedEvent(0); ev < NumFixedEvents; ev++ {
				if err := s.regs.WriteBit(fixedEvents[ev].enable, 0); err != nil && hwErr == nil {
					hwErr = err
				}
			}

			for i := range s.gpeRegisters {
				reg := &s.gpeRegisters[i]
				if err := s.regs.Modify(&reg.enable, 8, 0, 0xff, 0); err != nil && hwErr == nil {
					hwErr = err
				}
			}
			return hwErr
		})

		for ev := FixedEvent(0); ev < NumFixedEvents; ev++ {
			s.fixedHandlers[ev].Store(nil)
		}

		for i := range s.gpeEvents {
			info := s.gpeEvents[i].info.Swap(&gpeInfo{})
			if info != nil && info.method != nil {
				methods = append(methods, info.method)
			}
		}
		return err
	}))

	// Namespace references are dropped after the event and hardware
	// mutexes are released as the namespace mutex is ordered below them.
	if s.ns != nil {
		for _, method := range methods {
			keep(s.ns.ReleaseHandle(ctx, method))
		}
	}

	s.closeMutexes()

	if firstErr != nil {
		s.log.Warnf("terminated with errors: %s", firstErr.Message)
	}
	return firstErr
}

func (s *Subsystem) closeMutexes() {
	if s.ownsMutex {
		s.mutexes.Close()
	}
}

// withMutex runs fn while holding the ordered mutex id.
func (s *Subsystem) withMutex(ctx context.Context, id mutex.ID, fn func() *kernel.Error) *kernel.Error {
	if err := s.mutexes.Acquire(ctx, id); err != nil {
		return err
	}

	err := fn()
	if relErr := s.mutexes.Release(ctx, id); err == nil {
		err = relErr
	}
	return err
}
