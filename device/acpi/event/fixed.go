package event

import (
	"acpievt/device/acpi/hw"
	"acpievt/device/acpi/mutex"
	"acpievt/device/acpi/table"
	"acpievt/kernel"
	"context"
)

// FixedEvent identifies one of the fixed power management events.
type FixedEvent uint8

// The list of fixed events.
const (
	FixedPMTimer FixedEvent = iota
	FixedGlobalLock
	FixedPowerButton
	FixedSleepButton
	FixedRTC

	// NumFixedEvents is the number of fixed events.
	NumFixedEvents
)

// FixedHandler services a fixed event. It runs at interrupt level and must
// not block.
type FixedHandler func(data interface{}) Verdict

type fixedHandler struct {
	fn   FixedHandler
	data interface{}
}

// fixedEventInfo maps a fixed event to its status and enable bits.
type fixedEventInfo struct {
	name   string
	status hw.BitID
	enable hw.BitID
}

var fixedEvents = [NumFixedEvents]fixedEventInfo{
	FixedPMTimer:     {"pm_timer", hw.TimerStatus, hw.TimerEnable},
	FixedGlobalLock:  {"global_lock", hw.GlobalLockStatus, hw.GlobalLockEnable},
	FixedPowerButton: {"power_button", hw.PowerButtonStatus, hw.PowerButtonEnable},
	FixedSleepButton: {"sleep_button", hw.SleepButtonStatus, hw.SleepButtonEnable},
	FixedRTC:         {"rtc", hw.RTCStatus, hw.RTCEnable},
}

// String implements fmt.Stringer for FixedEvent.
func (ev FixedEvent) String() string {
	if ev < NumFixedEvents {
		return fixedEvents[ev].name
	}
	return "unknown"
}

// ParseFixedEvent returns the fixed event with the given name.
func ParseFixedEvent(name string) (FixedEvent, bool) {
	for ev := FixedEvent(0); ev < NumFixedEvents; ev++ {
		if fixedEvents[ev].name == name {
			return ev, true
		}
	}
	return NumFixedEvents, false
}

// Bits returns the named status and enable bits of ev.
func (ev FixedEvent) Bits() (status, enable hw.BitID) {
	if ev >= NumFixedEvents {
		return hw.NumBits, hw.NumBits
	}
	return fixedEvents[ev].status, fixedEvents[ev].enable
}

// masks returns the PM1 status and enable masks for ev.
func (ev FixedEvent) masks() (status, enable uint32) {
	statusBit, _ := hw.Bit(fixedEvents[ev].status)
	enableBit, _ := hw.Bit(fixedEvents[ev].enable)
	return statusBit.Mask, enableBit.Mask
}

// fixedByFirmware returns true if the FADT declares that ev is implemented
// as a control method device instead of a fixed event.
func (s *Subsystem) fixedByFirmware(ev FixedEvent) bool {
	switch ev {
	case FixedPowerButton:
		return s.fadt.Flags&table.FADTFlagPowerButtonIsControlMethod != 0
	case FixedSleepButton:
		return s.fadt.Flags&table.FADTFlagSleepButtonIsControlMethod != 0
	case FixedRTC:
		return s.fadt.Flags&table.FADTFlagRTCWakeNotFixed != 0
	}
	return false
}

// initFixedEvents clears any stale status and arms every fixed event so that
// spurious events are observed and acknowledged by detection even before a
// handler gets installed. Events the firmware implements as control method
// devices are left disabled.
func (s *Subsystem) initFixedEvents(ctx context.Context) *kernel.Error {
	return s.withMutex(ctx, mutex.Hardware, func() *kernel.Error {
		for ev := FixedEvent(0); ev < NumFixedEvents; ev++ {
			if err := s.regs.WriteBit(fixedEvents[ev].status, 1); err != nil {
				return err
			}

			enable := uint32(1)
			if s.fixedByFirmware(ev) {
				enable = 0
				s.log.Debugf("fixed event %s is implemented by firmware; leaving it disabled", ev)
			}

			if err := s.regs.WriteBit(fixedEvents[ev].enable, enable); err != nil {
				return err
			}
		}
		return nil
	})
}

// DetectFixedEvents reads the PM1 status and enable registers and dispatches
// every fixed event that is both signalled and enabled.
func (s *Subsystem) DetectFixedEvents() Verdict {
	status, err := s.regs.ReadRegister(hw.PM1Status)
	if err != nil {
		s.log.Errorf("unable to read PM1 status: %s", err.Message)
		return NotHandled
	}

	enable, err := s.regs.ReadRegister(hw.PM1Enable)
	if err != nil {
		s.log.Errorf("unable to read PM1 enable: %s", err.Message)
		return NotHandled
	}

	verdict := NotHandled
	for ev := FixedEvent(0); ev < NumFixedEvents; ev++ {
		statusMask, enableMask := ev.masks()
		if status&statusMask != 0 && enable&enableMask != 0 {
			verdict |= s.dispatchFixed(ev)
		}
	}

	return verdict
}

// dispatchFixed acknowledges ev and runs its handler synchronously. Events
// without a handler are disabled.
func (s *Subsystem) dispatchFixed(ev FixedEvent) Verdict {
	if err := s.regs.WriteBit(fixedEvents[ev].status, 1); err != nil {
		s.log.Errorf("unable to clear fixed event %s: %s", ev, err.Message)
	}

	h := s.fixedHandlers[ev].Load()
	if h == nil {
		if err := s.regs.WriteBit(fixedEvents[ev].enable, 0); err != nil {
			s.log.Errorf("unable to disable fixed event %s: %s", ev, err.Message)
		}
		s.log.Warnf("no handler for fixed event %s; disabling it", ev)
		return NotHandled
	}

	return h.fn(h.data)
}

// InstallFixedHandler installs fn as the handler for ev and enables the event.
// data is passed to fn on each invocation.
func (s *Subsystem) InstallFixedHandler(ctx context.Context, ev FixedEvent, fn FixedHandler, data interface{}) *kernel.Error {
	if ev >= NumFixedEvents || fn == nil {
		return ErrBadParameter
	}

	return s.withMutex(ctx, mutex.Events, func() *kernel.Error {
		if s.fixedHandlers[ev].Load() != nil {
			return ErrAlreadyExists
		}

		s.fixedHandlers[ev].Store(&fixedHandler{fn: fn, data: data})

		err := s.withMutex(ctx, mutex.Hardware, func() *kernel.Error {
			if err := s.regs.WriteBit(fixedEvents[ev].status, 1); err != nil {
				return err
			}
			return s.regs.WriteBit(fixedEvents[ev].enable, 1)
		})

		if err != nil {
			s.fixedHandlers[ev].Store(nil)
			return err
		}

		s.log.Debugf("installed handler for fixed event %s", ev)
		return nil
	})
}

// RemoveFixedHandler disables ev and removes its handler.
func (s *Subsystem) RemoveFixedHandler(ctx context.Context, ev FixedEvent) *kernel.Error {
	if ev >= NumFixedEvents {
		return ErrBadParameter
	}

	return s.withMutex(ctx, mutex.Events, func() *kernel.Error {
		if s.fixedHandlers[ev].Load() == nil {
			return ErrNotExist
		}

		if err := s.withMutex(ctx, mutex.Hardware, func() *kernel.Error {
			return s.regs.WriteBit(fixedEvents[ev].enable, 0)
		}); err != nil {
			return err
		}

		s.fixedHandlers[ev].Store(nil)
		s.log.Debugf("removed handler for fixed event %s", ev)
		return nil
	})
}

// EnableFixedEvent sets the enable bit of ev.
func (s *Subsystem) EnableFixedEvent(ctx context.Context, ev FixedEvent) *kernel.Error {
	return s.writeFixedBit(ctx, ev, false, 1)
}

// DisableFixedEvent clears the enable bit of ev.
func (s *Subsystem) DisableFixedEvent(ctx context.Context, ev FixedEvent) *kernel.Error {
	return s.writeFixedBit(ctx, ev, false, 0)
}

// ClearFixedEvent acknowledges a pending ev.
func (s *Subsystem) ClearFixedEvent(ctx context.Context, ev FixedEvent) *kernel.Error {
	return s.writeFixedBit(ctx, ev, true, 1)
}

func (s *Subsystem) writeFixedBit(ctx context.Context, ev FixedEvent, status bool, value uint32) *kernel.Error {
	if ev >= NumFixedEvents {
		return ErrBadParameter
	}

	bit := fixedEvents[ev].enable
	if status {
		bit = fixedEvents[ev].status
	}

	return s.withMutex(ctx, mutex.Hardware, func() *kernel.Error {
		return s.regs.WriteBit(bit, value)
	})
}

// FixedEventStatus reports the state of ev.
func (s *Subsystem) FixedEventStatus(ctx context.Context, ev FixedEvent) (Status, *kernel.Error) {
	if ev >= NumFixedEvents {
		return Status{}, ErrBadParameter
	}

	st := Status{HasHandler: s.fixedHandlers[ev].Load() != nil}
	err := s.withMutex(ctx, mutex.Hardware, func() *kernel.Error {
		set, err := s.regs.ReadBit(fixedEvents[ev].status)
		if err != nil {
			return err
		}

		enabled, err := s.regs.ReadBit(fixedEvents[ev].enable)
		if err != nil {
			return err
		}

		st.Set, st.Enabled = set != 0, enabled != 0
		return nil
	})

	return st, err
}
