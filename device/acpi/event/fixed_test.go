package event

import (
	"acpievt/device/acpi/table"
	"acpievt/kernel"
	"strings"
	"testing"
)

// fixedStatusBit returns the byte address and bit of the PM1 status bit for ev.
func fixedStatusBit(ev FixedEvent) (uint64, uint8) {
	mask, _ := ev.masks()
	for bit := uint8(0); bit < 16; bit++ {
		if mask&(1<<bit) != 0 {
			return pm1aEvt + uint64(bit/8), bit % 8
		}
	}
	panic("fixed event without a status bit")
}

func (env *testEnv) assertFixed(ev FixedEvent) {
	addr, bit := fixedStatusBit(ev)
	env.sim.Assert(table.AddressSpaceSysIO, addr, bit)
}

func TestFixedEventNames(t *testing.T) {
	for ev := FixedEvent(0); ev < NumFixedEvents; ev++ {
		parsed, ok := ParseFixedEvent(ev.String())
		if !ok || parsed != ev {
			t.Errorf("expected %q to parse back to %d; got %d, %t", ev.String(), ev, parsed, ok)
		}
	}

	if _, ok := ParseFixedEvent("lid"); ok {
		t.Error("expected unknown fixed event name to be rejected")
	}

	if got := NumFixedEvents.String(); got != "unknown" {
		t.Errorf("expected unknown; got %q", got)
	}
}

func TestFixedEventDispatch(t *testing.T) {
	env := newTestEnv(t, nil)

	var calls int
	if err := env.sub.InstallFixedHandler(env.ctx, FixedPowerButton, func(data interface{}) Verdict {
		calls++
		if data.(int) != 42 {
			t.Errorf("expected handler data 42; got %v", data)
		}
		return Handled
	}, 42); err != nil {
		t.Fatal(err)
	}

	t.Run("with handler", func(t *testing.T) {
		env.assertFixed(FixedPowerButton)
		if got := env.sub.DetectFixedEvents(); got != Handled {
			t.Fatalf("expected %s; got %s", Handled, got)
		}

		if calls != 1 {
			t.Fatalf("expected handler to be called once; got %d", calls)
		}

		st, err := env.sub.FixedEventStatus(env.ctx, FixedPowerButton)
		if err != nil {
			t.Fatal(err)
		}
		if st.Set || !st.Enabled || !st.HasHandler {
			t.Fatalf("expected event to be acknowledged and armed; got %+v", st)
		}
	})

	t.Run("without handler", func(t *testing.T) {
		env.assertFixed(FixedSleepButton)
		if got := env.sub.DetectFixedEvents(); got != NotHandled {
			t.Fatalf("expected %s; got %s", NotHandled, got)
		}

		st, _ := env.sub.FixedEventStatus(env.ctx, FixedSleepButton)
		if st.Set || st.Enabled || st.HasHandler {
			t.Fatalf("expected event to be acknowledged and disabled; got %+v", st)
		}

		if !strings.Contains(env.logs.String(), "no handler for fixed event sleep_button") {
			t.Fatalf("expected missing handler to be logged; got:\n%s", env.logs.String())
		}
	})

	t.Run("disabled event", func(t *testing.T) {
		before := calls
		if err := env.sub.DisableFixedEvent(env.ctx, FixedPowerButton); err != nil {
			t.Fatal(err)
		}

		env.assertFixed(FixedPowerButton)
		if got := env.sub.DetectFixedEvents(); got != NotHandled {
			t.Fatalf("expected %s; got %s", NotHandled, got)
		}

		if calls != before {
			t.Fatal("expected handler of a disabled event not to run")
		}

		if st, _ := env.sub.FixedEventStatus(env.ctx, FixedPowerButton); !st.Set {
			t.Fatal("expected disabled event to stay pending")
		}

		if err := env.sub.ClearFixedEvent(env.ctx, FixedPowerButton); err != nil {
			t.Fatal(err)
		}
		if err := env.sub.EnableFixedEvent(env.ctx, FixedPowerButton); err != nil {
			t.Fatal(err)
		}

		if st, _ := env.sub.FixedEventStatus(env.ctx, FixedPowerButton); st.Set || !st.Enabled {
			t.Fatalf("expected event to be clear and armed; got %+v", st)
		}
	})

	t.Run("simultaneous events", func(t *testing.T) {
		var rtcCalls int
		if err := env.sub.InstallFixedHandler(env.ctx, FixedRTC, func(interface{}) Verdict {
			rtcCalls++
			return NotHandled
		}, nil); err != nil {
			t.Fatal(err)
		}

		before := calls
		env.assertFixed(FixedPowerButton)
		env.assertFixed(FixedRTC)

		if got := env.sub.DetectFixedEvents(); got != Handled {
			t.Fatalf("expected %s; got %s", Handled, got)
		}

		if calls != before+1 || rtcCalls != 1 {
			t.Fatalf("expected both handlers to run once; got power: %d, rtc: %d", calls-before, rtcCalls)
		}
	})
}

func TestFixedHandlerInstallation(t *testing.T) {
	env := newTestEnv(t, nil)
	handler := func(interface{}) Verdict { return Handled }

	specs := []struct {
		descr  string
		ev     FixedEvent
		fn     FixedHandler
		expErr *kernel.Error
	}{
		{"bad event", NumFixedEvents, handler, ErrBadParameter},
		{"nil handler", FixedRTC, nil, ErrBadParameter},
		{"install", FixedRTC, handler, nil},
		{"install twice", FixedRTC, handler, ErrAlreadyExists},
	}

	for _, spec := range specs {
		if err := env.sub.InstallFixedHandler(env.ctx, spec.ev, spec.fn, nil); err != spec.expErr {
			t.Errorf("[%s] expected error %v; got %v", spec.descr, spec.expErr, err)
		}
	}

	if err := env.sub.RemoveFixedHandler(env.ctx, FixedRTC); err != nil {
		t.Fatal(err)
	}

	if st, _ := env.sub.FixedEventStatus(env.ctx, FixedRTC); st.Enabled || st.HasHandler {
		t.Fatalf("expected removed event to be disabled without a handler; got %+v", st)
	}

	specs2 := []struct {
		descr  string
		ev     FixedEvent
		expErr *kernel.Error
	}{
		{"remove twice", FixedRTC, ErrNotExist},
		{"remove bad event", NumFixedEvents, ErrBadParameter},
	}

	for _, spec := range specs2 {
		if err := env.sub.RemoveFixedHandler(env.ctx, spec.ev); err != spec.expErr {
			t.Errorf("[%s] expected error %v; got %v", spec.descr, spec.expErr, err)
		}
	}

	for _, fn := range []func() *kernel.Error{
		func() *kernel.Error { return env.sub.EnableFixedEvent(env.ctx, NumFixedEvents) },
		func() *kernel.Error { return env.sub.DisableFixedEvent(env.ctx, NumFixedEvents) },
		func() *kernel.Error { return env.sub.ClearFixedEvent(env.ctx, NumFixedEvents) },
		func() *kernel.Error {
			_, err := env.sub.FixedEventStatus(env.ctx, NumFixedEvents)
			return err
		},
	} {
		if err := fn(); err != ErrBadParameter {
			t.Errorf("expected ErrBadParameter; got %v", err)
		}
	}
}

func TestInstallFixedHandlerHardwareFailure(t *testing.T) {
	env := newTestEnv(t, nil)

	env.sim.Fail(table.AddressSpaceSysIO, pm1aEvt+1, errInjected)
	err := env.sub.InstallFixedHandler(env.ctx, FixedPowerButton, func(interface{}) Verdict { return Handled }, nil)
	if err != errInjected {
		t.Fatalf("expected injected error; got %v", err)
	}

	if env.sub.fixedHandlers[FixedPowerButton].Load() != nil {
		t.Fatal("expected handler installation to be rolled back")
	}
}

func TestDetectFixedEventsReadFailure(t *testing.T) {
	env := newTestEnv(t, nil)

	env.sim.Fail(table.AddressSpaceSysIO, pm1aEvt, errInjected)
	if got := env.sub.DetectFixedEvents(); got != NotHandled {
		t.Fatalf("expected %s; got %s", NotHandled, got)
	}

	if !strings.Contains(env.logs.String(), "unable to read PM1 status") {
		t.Fatalf("expected read failure to be logged; got:\n%s", env.logs.String())
	}
}
