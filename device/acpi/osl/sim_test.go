package osl

import (
	"acpievt/device/acpi/table"
	"acpievt/kernel"
	"testing"
)

func TestSimReadWrite(t *testing.T) {
	s := NewSim()

	specs := []struct {
		width uint8
		value uint64
	}{
		{8, 0xab},
		{16, 0xbeef},
		{32, 0xdeadbeef},
		{64, 0x0123456789abcdef},
	}

	for _, spec := range specs {
		if err := s.WritePort(0x400, spec.value, spec.width); err != nil {
			t.Fatalf("[width %d] unexpected error: %v", spec.width, err)
		}

		got, err := s.ReadPort(0x400, spec.width)
		if err != nil {
			t.Fatalf("[width %d] unexpected error: %v", spec.width, err)
		}

		if got != spec.value {
			t.Errorf("[width %d] expected to read back 0x%x; got 0x%x", spec.width, spec.value, got)
		}
	}

	if _, err := s.ReadMemory(0x1000, 12); err != ErrInvalidWidth {
		t.Fatalf("expected ErrInvalidWidth; got %v", err)
	}

	pciAddr := PCIAddress{Bus: 1, Device: 0x1f, Function: 3, Register: 0x40}
	if err := s.WritePCIConfig(pciAddr, 0x55aa, 16); err != nil {
		t.Fatal(err)
	}

	if got := s.Peek(table.AddressSpacePCI, PCIKey(pciAddr), 16); got != 0x55aa {
		t.Fatalf("expected PCI register to contain 0x55aa; got 0x%x", got)
	}

	// Peek and Poke are not counted as accesses.
	if exp, got := 9, s.TotalAccesses(); got != exp {
		t.Fatalf("expected %d accesses; got %d", exp, got)
	}
}

func TestSimWriteOneToClear(t *testing.T) {
	s := NewSim()
	s.MarkW1CRange(table.AddressSpaceSysIO, 0x400, 2)
	s.Poke(table.AddressSpaceSysIO, 0x400, 0x0301, 16)

	// Writing 0 must not clear anything.
	s.WritePort(0x400, 0, 16)
	if got := s.Peek(table.AddressSpaceSysIO, 0x400, 16); got != 0x0301 {
		t.Fatalf("expected status to stay 0x0301; got 0x%x", got)
	}

	s.WritePort(0x400, 0x0100, 16)
	if got := s.Peek(table.AddressSpaceSysIO, 0x400, 16); got != 0x0201 {
		t.Fatalf("expected status 0x0201 after clearing bit 8; got 0x%x", got)
	}

	// Mixed byte: only bit 0 is W1C, the rest are plain storage.
	s.MarkW1C(table.AddressSpaceSysMemory, 0x10, 0x01)
	s.Poke(table.AddressSpaceSysMemory, 0x10, 0x01, 8)
	s.WriteMemory(0x10, 0xf1, 8)
	if got := s.Peek(table.AddressSpaceSysMemory, 0x10, 8); got != 0xf0 {
		t.Fatalf("expected 0xf0; got 0x%x", got)
	}
}

func TestSimHeldSource(t *testing.T) {
	s := NewSim()
	s.MarkW1C(table.AddressSpaceSysIO, 0x420, 0xff)
	s.Hold(table.AddressSpaceSysIO, 0x420, 2, true)

	s.WritePort(0x420, 0x04, 8)
	if got := s.Peek(table.AddressSpaceSysIO, 0x420, 8); got != 0x04 {
		t.Fatalf("expected held bit to re-assert; got 0x%x", got)
	}

	s.Hold(table.AddressSpaceSysIO, 0x420, 2, false)
	s.WritePort(0x420, 0x04, 8)
	if got := s.Peek(table.AddressSpaceSysIO, 0x420, 8); got != 0 {
		t.Fatalf("expected bit to clear once the source is released; got 0x%x", got)
	}

	s.Assert(table.AddressSpaceSysIO, 0x420, 7)
	if got := s.Peek(table.AddressSpaceSysIO, 0x420, 8); got != 0x80 {
		t.Fatalf("expected asserted bit 7; got 0x%x", got)
	}
}

func TestSimFaults(t *testing.T) {
	s := NewSim()
	expErr := &kernel.Error{Module: "test", Message: "bus error"}

	s.Fail(table.AddressSpaceSysIO, 0x401, expErr)
	if _, err := s.ReadPort(0x400, 16); err != expErr {
		t.Fatalf("expected injected error; got %v", err)
	}

	if err := s.WritePort(0x401, 0, 8); err != expErr {
		t.Fatalf("expected injected error; got %v", err)
	}

	if _, err := s.ReadPort(0x402, 8); err != nil {
		t.Fatalf("expected access to unaffected port to succeed; got %v", err)
	}

	s.Fail(table.AddressSpaceSysIO, 0x401, nil)
	if _, err := s.ReadPort(0x400, 16); err != nil {
		t.Fatalf("expected fault to be removed; got %v", err)
	}

	if _, err := s.read(table.AddressSpaceSMBus, 0, 8, true); err != errSimUnknownSpace {
		t.Fatalf("expected errSimUnknownSpace; got %v", err)
	}
}

func TestWidthHelpers(t *testing.T) {
	for _, w := range []uint8{8, 16, 32, 64} {
		if !ValidWidth(w) {
			t.Errorf("expected width %d to be valid", w)
		}
	}

	for _, w := range []uint8{0, 4, 24, 128} {
		if ValidWidth(w) {
			t.Errorf("expected width %d to be invalid", w)
		}
	}

	if got := WidthMask(16); got != 0xffff {
		t.Errorf("expected 16-bit mask 0xffff; got 0x%x", got)
	}

	if got := WidthMask(64); got != ^uint64(0) {
		t.Errorf("expected 64-bit mask to cover all bits; got 0x%x", got)
	}
}
