package hw

import (
	"acpievt/device/acpi/table"
	"testing"
)

func TestBitRoundTrip(t *testing.T) {
	regs, _ := testRegisters(true)

	for id := BitID(0); id < NumBits; id++ {
		bit, err := Bit(id)
		if err != nil {
			t.Fatal(err)
		}

		// Status bits are write-1-to-clear and cannot round-trip; they
		// are covered by TestStatusBitWriteClears.
		if bit.Parent == PM1Status {
			continue
		}

		for v := uint32(0); v <= bit.Mask>>bit.Position; v++ {
			if err = regs.WriteBit(id, v); err != nil {
				t.Fatalf("[%s] unexpected error writing %d: %v", id, v, err)
			}

			got, err := regs.ReadBit(id)
			if err != nil {
				t.Fatalf("[%s] unexpected error: %v", id, err)
			}

			if got != v {
				t.Errorf("[%s] expected to read back %d; got %d", id, v, got)
			}
		}
	}
}

func TestWriteBitPreservesOtherBits(t *testing.T) {
	regs, sim := testRegisters(false)
	sim.Poke(table.AddressSpaceSysIO, pm1aCnt, 0x0001, 16)

	if err := regs.WriteBit(SleepType, 5); err != nil {
		t.Fatal(err)
	}

	if got := sim.Peek(table.AddressSpaceSysIO, pm1aCnt, 16); got != 0x1401 {
		t.Fatalf("expected PM1 control to contain 0x1401; got 0x%x", got)
	}
}

func TestStatusBitWriteClears(t *testing.T) {
	regs, sim := testRegisters(true)

	// Power button pending in A, RTC and wake pending in B.
	sim.Poke(table.AddressSpaceSysIO, pm1aEvt, 0x0100, 16)
	sim.Poke(table.AddressSpaceSysIO, pm1bEvt, 0x8400, 16)

	if got, _ := regs.ReadBit(RTCStatus); got != 1 {
		t.Fatalf("expected RTC status to be set; got %d", got)
	}

	if err := regs.WriteBit(RTCStatus, 1); err != nil {
		t.Fatal(err)
	}

	if got, _ := regs.ReadBit(RTCStatus); got != 0 {
		t.Fatalf("expected RTC status to be cleared; got %d", got)
	}

	// Unrelated status bits must not have been cleared.
	if got, _ := regs.ReadRegister(PM1Status); got != 0x8100 {
		t.Fatalf("expected remaining status 0x8100; got 0x%x", got)
	}

	// Writing 0 to a status bit is a no-op.
	before := sim.TotalAccesses()
	if err := regs.WriteBit(WakeStatus, 0); err != nil {
		t.Fatal(err)
	}
	if got := sim.TotalAccesses(); got != before {
		t.Fatalf("expected no hardware access; got %d", got-before)
	}

	if err := regs.ClearStatus(0xffff); err != nil {
		t.Fatal(err)
	}
	if got, _ := regs.ReadRegister(PM1Status); got != 0 {
		t.Fatalf("expected all status bits to be cleared; got 0x%x", got)
	}
}

func TestBitErrors(t *testing.T) {
	regs, _ := testRegisters(false)

	if _, err := regs.ReadBit(NumBits); err != ErrBadParameter {
		t.Fatalf("expected ErrBadParameter; got %v", err)
	}

	if err := regs.WriteBit(NumBits, 0); err != ErrBadParameter {
		t.Fatalf("expected ErrBadParameter; got %v", err)
	}

	if err := regs.WriteBit(SCIEnable, 2); err != ErrBadParameter {
		t.Fatalf("expected ErrBadParameter for a value wider than the field; got %v", err)
	}

	if _, err := Bit(NumBits); err != ErrBadParameter {
		t.Fatalf("expected ErrBadParameter; got %v", err)
	}

	if got := NumBits.String(); got != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN; got %q", got)
	}
}

func TestBitWidth(t *testing.T) {
	specs := map[BitID]uint8{
		SCIEnable:  1,
		SleepType:  3,
		WakeStatus: 1,
	}

	for id, exp := range specs {
		bit, _ := Bit(id)
		if got := bit.Width(); got != exp {
			t.Errorf("[%s] expected width %d; got %d", id, exp, got)
		}
	}
}
