package event

import (
	"acpievt/device/acpi/mutex"
	"acpievt/device/acpi/table"
	"acpievt/kernel"
	"context"
	"strconv"
	"sync/atomic"
)

// invalidIndex marks GPE numbers that are not backed by any GPE block.
const invalidIndex = 0xffff

// gpeScope is the namespace scope that contains the GPE control methods.
const gpeScope = `\_GPE`

// Trigger describes when the status bit of a GPE is acknowledged.
type Trigger uint8

// The list of supported GPE trigger types.
const (
	// TriggerNone is the trigger type of a GPE that has not been
	// registered yet. Such GPEs are acknowledged like level GPEs.
	TriggerNone Trigger = iota

	// TriggerLevel GPEs keep their status set while the underlying
	// condition holds; status is cleared after servicing.
	TriggerLevel

	// TriggerEdge GPEs are cleared before servicing so that a new edge
	// that arrives while the GPE is serviced is not lost.
	TriggerEdge
)

// String implements fmt.Stringer for Trigger.
func (t Trigger) String() string {
	switch t {
	case TriggerLevel:
		return "level"
	case TriggerEdge:
		return "edge"
	default:
		return "none"
	}
}

// GPEHandler services a GPE. It runs at interrupt level and must not block.
type GPEHandler func(data interface{}) Verdict

// gpeBlock describes one of the GPE register blocks declared by the FADT.
type gpeBlock struct {
	addr     table.GenericAddress
	count    int
	baseGPE  uint32
	firstReg int
}

// gpeRegister describes a status/enable register pair that controls 8 GPEs.
type gpeRegister struct {
	baseGPE uint32
	status  table.GenericAddress
	enable  table.GenericAddress
}

// gpeInfo holds the software state of a GPE. Instances are never modified
// after being published; updates swap in a new instance so that interrupt
// level readers always observe a consistent snapshot.
type gpeInfo struct {
	trigger Trigger
	handler GPEHandler
	data    interface{}
	method  interface{}
}

// gpeEvent describes a single GPE.
type gpeEvent struct {
	number uint32
	mask   uint8
	reg    *gpeRegister
	info   atomic.Pointer[gpeInfo]
}

// initGPEBlocks builds the GPE block, register and event tables together
// with the dense GPE number to event index map.
func (s *Subsystem) initGPEBlocks(maxGPE uint32) *kernel.Error {
	fadt := s.fadt
	candidates := []gpeBlock{
		{
			addr:  fadt.Block(fadt.Ext.GPE0Block, fadt.GPE0Block, fadt.GPE0Length),
			count: int(fadt.GPE0Length / 2),
		},
		{
			addr:    fadt.Block(fadt.Ext.GPE1Block, fadt.GPE1Block, fadt.GPE1Length),
			count:   int(fadt.GPE1Length / 2),
			baseGPE: uint32(fadt.GPE1Base),
		},
	}

	for _, blk := range candidates {
		if !blk.addr.Present() || blk.count == 0 {
			continue
		}

		last := blk.baseGPE + uint32(blk.count*8) - 1
		if last > maxGPE {
			s.log.Errorf("GPE block at %#x ends at GPE %#x which exceeds the maximum GPE number %#x", blk.addr.Address, last, maxGPE)
			return ErrConfiguration
		}

		for _, other := range s.gpeBlocks {
			otherLast := other.baseGPE + uint32(other.count*8) - 1
			if blk.baseGPE <= otherLast && other.baseGPE <= last {
				s.log.Errorf("GPE range [%#x, %#x] overlaps [%#x, %#x]", blk.baseGPE, last, other.baseGPE, otherLast)
				return ErrConfiguration
			}
		}

		s.gpeBlocks = append(s.gpeBlocks, blk)
	}

	var regCount int
	for i := range s.gpeBlocks {
		s.gpeBlocks[i].firstReg = regCount
		regCount += s.gpeBlocks[i].count
	}

	s.gpeRegisters = make([]gpeRegister, regCount)
	s.gpeEvents = make([]gpeEvent, regCount*8)
	s.gpeIndex = make([]uint16, maxGPE+1)
	for i := range s.gpeIndex {
		s.gpeIndex[i] = invalidIndex
	}

	for _, blk := range s.gpeBlocks {
		for i := 0; i < blk.count; i++ {
			regIndex := blk.firstReg + i
			reg := &s.gpeRegisters[regIndex]
			reg.baseGPE = blk.baseGPE + uint32(i*8)
			reg.status = blk.addr.Offset(uint64(i))
			reg.enable = blk.addr.Offset(uint64(blk.count + i))

			for bit := 0; bit < 8; bit++ {
				eventIndex := regIndex*8 + bit
				ev := &s.gpeEvents[eventIndex]
				ev.number = reg.baseGPE + uint32(bit)
				ev.mask = 1 << uint(bit)
				ev.reg = reg
				ev.info.Store(&gpeInfo{})
				s.gpeIndex[ev.number] = uint16(eventIndex)
			}
		}
	}

	return nil
}

// initGPEHardware acknowledges every pending GPE and disables all GPEs.
func (s *Subsystem) initGPEHardware(ctx context.Context) *kernel.Error {
	return s.withMutex(ctx, mutex.Hardware, func() *kernel.Error {
		for i := range s.gpeRegisters {
			reg := &s.gpeRegisters[i]
			if err := s.regs.WriteRaw(&reg.status, 8, 0, 0xff); err != nil {
				return err
			}
			if err := s.regs.WriteRaw(&reg.enable, 8, 0, 0); err != nil {
				return err
			}
		}
		return nil
	})
}

// event returns the descriptor for GPE number n or nil if n is not backed by
// a GPE block.
func (s *Subsystem) event(n uint32) *gpeEvent {
	if n >= uint32(len(s.gpeIndex)) {
		return nil
	}

	index := s.gpeIndex[n]
	if index == invalidIndex {
		return nil
	}
	return &s.gpeEvents[index]
}

// parseGPEMethod extracts the trigger type and GPE number encoded in a GPE
// control method name such as _L1F or _E02.
func parseGPEMethod(name string) (Trigger, uint32, bool) {
	if len(name) == 4 && name[0] == '_' {
		name = name[1:]
	}

	if len(name) != 3 {
		return TriggerNone, 0, false
	}

	var trigger Trigger
	switch name[0] {
	case 'L':
		trigger = TriggerLevel
	case 'E':
		trigger = TriggerEdge
	default:
		return TriggerNone, 0, false
	}

	n, err := strconv.ParseUint(name[1:], 16, 8)
	if err != nil {
		return TriggerNone, 0, false
	}

	return trigger, uint32(n), true
}

type gpeMethod struct {
	name   string
	handle interface{}
}

// RegisterGPEMethods scans the \_GPE scope for control methods named after a
// GPE (_Lxx for level and _Exx for edge GPEs), associates each method with
// its GPE and enables the GPE. Malformed names and GPE numbers outside the
// configured blocks are skipped. A method that cannot be referenced or whose
// GPE cannot be enabled is logged and skipped without affecting the rest of
// the scan. It returns the number of registered methods; an error is only
// returned if the \_GPE scope cannot be scanned.
func (s *Subsystem) RegisterGPEMethods(ctx context.Context) (int, *kernel.Error) {
	if s.ns == nil {
		return 0, ErrConfiguration
	}

	var methods []gpeMethod
	if err := s.ns.FindMethods(ctx, gpeScope, func(name string, handle interface{}) {
		methods = append(methods, gpeMethod{name: name, handle: handle})
	}); err != nil {
		return 0, err
	}

	var registered int
	for _, m := range methods {
		trigger, n, ok := parseGPEMethod(m.name)
		if !ok {
			s.log.Debugf("ignoring non-GPE method %s.%s", gpeScope, m.name)
			continue
		}

		ev := s.event(n)
		if ev == nil {
			s.log.Debugf("ignoring method %s.%s for GPE %#x outside the GPE blocks", gpeScope, m.name, n)
			continue
		}

		if err := s.ns.AcquireHandle(ctx, m.handle); err != nil {
			s.log.Errorf("unable to reference method %s.%s: %s", gpeScope, m.name, err.Message)
			continue
		}

		var prev interface{}
		err := s.withMutex(ctx, mutex.Events, func() *kernel.Error {
			cur := ev.info.Load()
			ev.info.Store(&gpeInfo{trigger: trigger, handler: cur.handler, data: cur.data, method: m.handle})

			if err := s.withMutex(ctx, mutex.Hardware, func() *kernel.Error {
				return s.setGPEEnable(ev, true)
			}); err != nil {
				ev.info.Store(cur)
				return err
			}

			prev = cur.method
			return nil
		})
		if err != nil {
			s.log.Errorf("unable to register method %s.%s for GPE %#x: %s", gpeScope, m.name, n, err.Message)
			if relErr := s.ns.ReleaseHandle(ctx, m.handle); relErr != nil {
				s.log.Errorf("unable to release method %s.%s: %s", gpeScope, m.name, relErr.Message)
			}
			continue
		}

		if prev != nil {
			if err = s.ns.ReleaseHandle(ctx, prev); err != nil {
				s.log.Errorf("unable to release the previous method for GPE %#x: %s", n, err.Message)
			}
		}

		s.log.Debugf("registered %s-triggered method %s.%s for GPE %#x", trigger, gpeScope, m.name, n)
		registered++
	}

	return registered, nil
}

// DetectGPEs scans every GPE register and dispatches each GPE that is both
// signalled and enabled. A register read failure is logged and ends the
// scan.
func (s *Subsystem) DetectGPEs() Verdict {
	verdict := NotHandled

	for i := range s.gpeRegisters {
		reg := &s.gpeRegisters[i]

		status, err := s.regs.ReadRaw(&reg.status, 8, 0)
		if err != nil {
			s.log.Errorf("unable to read GPE status register at %#x: %s", reg.status.Address, err.Message)
			return verdict
		}

		enable, err := s.regs.ReadRaw(&reg.enable, 8, 0)
		if err != nil {
			s.log.Errorf("unable to read GPE enable register at %#x: %s", reg.enable.Address, err.Message)
			return verdict
		}

		active := uint8(status & enable)
		if active == 0 {
			continue
		}

		for bit := uint32(0); bit < 8; bit++ {
			if active&(1<<bit) != 0 {
				verdict |= s.DispatchGPE(reg.baseGPE + bit)
			}
		}
	}

	return verdict
}

// DispatchGPE services GPE n. Edge GPEs are acknowledged before servicing and
// level GPEs after. An installed handler is invoked synchronously; otherwise
// the GPE is disabled and its control method queued for deferred execution.
// GPEs with neither a handler nor a method are left disabled.
func (s *Subsystem) DispatchGPE(n uint32) Verdict {
	ev := s.event(n)
	if ev == nil {
		return NotHandled
	}

	info := ev.info.Load()
	if info.trigger == TriggerEdge {
		s.clearGPEStatus(ev)
	}

	var verdict Verdict
	switch {
	case info.handler != nil:
		verdict = info.handler(info.data)
	case info.method != nil:
		s.disableGPEAtIRQ(ev)
		if err := s.Submit(n); err != nil {
			s.log.Errorf("unable to queue method for GPE %#x: %s", n, err.Message)
			verdict = NotHandled
		} else {
			verdict = Handled
		}
	default:
		s.disableGPEAtIRQ(ev)
		s.log.Errorf("no handler or method for GPE %#x; disabling it", n)
		verdict = NotHandled
	}

	if info.trigger != TriggerEdge {
		s.clearGPEStatus(ev)
	}

	return verdict
}

func (s *Subsystem) clearGPEStatus(ev *gpeEvent) {
	if err := s.regs.WriteRaw(&ev.reg.status, 8, 0, uint64(ev.mask)); err != nil {
		s.log.Errorf("unable to clear GPE %#x: %s", ev.number, err.Message)
	}
}

func (s *Subsystem) disableGPEAtIRQ(ev *gpeEvent) {
	if err := s.setGPEEnable(ev, false); err != nil {
		s.log.Errorf("unable to disable GPE %#x: %s", ev.number, err.Message)
	}
}

func (s *Subsystem) setGPEEnable(ev *gpeEvent, enabled bool) *kernel.Error {
	if enabled {
		return s.regs.Modify(&ev.reg.enable, 8, 0, 0, uint64(ev.mask))
	}
	return s.regs.Modify(&ev.reg.enable, 8, 0, uint64(ev.mask), 0)
}

// InstallGPEHandler installs fn as the handler for GPE n, sets its trigger
// type and enables it. data is passed to fn on each invocation. A control
// method registered for the GPE is retained but is not run while the
// handler is installed.
func (s *Subsystem) InstallGPEHandler(ctx context.Context, n uint32, trigger Trigger, fn GPEHandler, data interface{}) *kernel.Error {
	if fn == nil || (trigger != TriggerLevel && trigger != TriggerEdge) {
		return ErrBadParameter
	}

	ev := s.event(n)
	if ev == nil {
		return ErrBadParameter
	}

	return s.withMutex(ctx, mutex.Events, func() *kernel.Error {
		cur := ev.info.Load()
		if cur.handler != nil {
			return ErrAlreadyExists
		}

		ev.info.Store(&gpeInfo{trigger: trigger, handler: fn, data: data, method: cur.method})

		err := s.withMutex(ctx, mutex.Hardware, func() *kernel.Error {
			if err := s.regs.WriteRaw(&ev.reg.status, 8, 0, uint64(ev.mask)); err != nil {
				return err
			}
			return s.setGPEEnable(ev, true)
		})

		if err != nil {
			ev.info.Store(cur)
			return err
		}

		s.log.Debugf("installed %s-triggered handler for GPE %#x", trigger, n)
		return nil
	})
}

// RemoveGPEHandler disables GPE n and removes its handler. The control
// method registered for the GPE, if any, services the GPE again once it is
// re-enabled.
func (s *Subsystem) RemoveGPEHandler(ctx context.Context, n uint32) *kernel.Error {
	ev := s.event(n)
	if ev == nil {
		return ErrBadParameter
	}

	return s.withMutex(ctx, mutex.Events, func() *kernel.Error {
		cur := ev.info.Load()
		if cur.handler == nil {
			return ErrNotExist
		}

		if err := s.withMutex(ctx, mutex.Hardware, func() *kernel.Error {
			return s.setGPEEnable(ev, false)
		}); err != nil {
			return err
		}

		ev.info.Store(&gpeInfo{trigger: cur.trigger, method: cur.method})
		s.log.Debugf("removed handler for GPE %#x", n)
		return nil
	})
}

// EnableGPE sets the enable bit of GPE n.
func (s *Subsystem) EnableGPE(ctx context.Context, n uint32) *kernel.Error {
	return s.withGPE(ctx, n, func(ev *gpeEvent) *kernel.Error {
		return s.setGPEEnable(ev, true)
	})
}

// DisableGPE clears the enable bit of GPE n.
func (s *Subsystem) DisableGPE(ctx context.Context, n uint32) *kernel.Error {
	return s.withGPE(ctx, n, func(ev *gpeEvent) *kernel.Error {
		return s.setGPEEnable(ev, false)
	})
}

// ClearGPE acknowledges GPE n. Clearing an already clear GPE has no effect.
func (s *Subsystem) ClearGPE(ctx context.Context, n uint32) *kernel.Error {
	return s.withGPE(ctx, n, func(ev *gpeEvent) *kernel.Error {
		return s.regs.WriteRaw(&ev.reg.status, 8, 0, uint64(ev.mask))
	})
}

// GPEStatus reports the state of GPE n.
func (s *Subsystem) GPEStatus(ctx context.Context, n uint32) (Status, *kernel.Error) {
	var st Status
	err := s.withGPE(ctx, n, func(ev *gpeEvent) *kernel.Error {
		status, err := s.regs.ReadRaw(&ev.reg.status, 8, 0)
		if err != nil {
			return err
		}

		enable, err := s.regs.ReadRaw(&ev.reg.enable, 8, 0)
		if err != nil {
			return err
		}

		st = Status{
			Set:        uint8(status)&ev.mask != 0,
			Enabled:    uint8(enable)&ev.mask != 0,
			HasHandler: ev.info.Load().handler != nil,
		}
		return nil
	})

	return st, err
}

// withGPE runs fn for GPE n while holding the hardware mutex.
func (s *Subsystem) withGPE(ctx context.Context, n uint32, fn func(*gpeEvent) *kernel.Error) *kernel.Error {
	ev := s.event(n)
	if ev == nil {
		return ErrBadParameter
	}

	return s.withMutex(ctx, mutex.Hardware, func() *kernel.Error {
		return fn(ev)
	})
}
