package hw

import (
	"acpievt/device/acpi/osl"
	"acpievt/device/acpi/table"
	"acpievt/kernel"
	"testing"
)

func TestReadWriteRouting(t *testing.T) {
	specs := []struct {
		space table.AddressSpace
		addr  uint64
		key   uint64
	}{
		{table.AddressSpaceSysMemory, 0xfed40000, 0xfed40004},
		{table.AddressSpaceSysIO, 0x400, 0x404},
		{
			table.AddressSpacePCI,
			// segment 0, bus 2, device 0x1f, function 3, register 0x40
			0x0002001f00030040,
			osl.PCIKey(osl.PCIAddress{Bus: 2, Device: 0x1f, Function: 3, Register: 0x44}),
		},
	}

	for _, spec := range specs {
		t.Run(spec.space.String(), func(t *testing.T) {
			sim := osl.NewSim()
			reg := &table.GenericAddress{Space: spec.space, Address: spec.addr}

			for _, width := range []uint8{8, 16, 32, 64} {
				exp := uint64(0xfeedfacecafebeef) & osl.WidthMask(width)
				if err := Write(sim, width, 0xfeedfacecafebeef, reg, 4); err != nil {
					t.Fatalf("[width %d] unexpected error: %v", width, err)
				}

				if got := sim.Peek(spec.space, spec.key, width); got != exp {
					t.Fatalf("[width %d] expected hardware to contain 0x%x; got 0x%x", width, exp, got)
				}

				got, err := Read(sim, width, reg, 4)
				if err != nil {
					t.Fatalf("[width %d] unexpected error: %v", width, err)
				}

				if got != exp {
					t.Fatalf("[width %d] expected to read 0x%x; got 0x%x", width, exp, got)
				}
			}
		})
	}
}

func TestReadWriteMissingRegister(t *testing.T) {
	sim := osl.NewSim()

	for _, reg := range []*table.GenericAddress{nil, {Space: table.AddressSpaceSysIO}} {
		got, err := Read(sim, 16, reg, 0)
		if err != nil || got != 0 {
			t.Fatalf("expected (0, nil) when reading a missing register; got (0x%x, %v)", got, err)
		}

		if err = Write(sim, 16, 0xffff, reg, 0); err != nil {
			t.Fatalf("expected write to a missing register to succeed; got %v", err)
		}
	}

	if got := sim.TotalAccesses(); got != 0 {
		t.Fatalf("expected no hardware accesses; got %d", got)
	}
}

func TestReadWriteUnsupportedAddressSpace(t *testing.T) {
	sim := osl.NewSim()

	for _, space := range []table.AddressSpace{
		table.AddressSpaceEmbController,
		table.AddressSpaceSMBus,
		table.AddressSpaceFuncFixedHW,
		table.AddressSpace(0x42),
	} {
		reg := &table.GenericAddress{Space: space, Address: 0x400}

		if _, err := Read(sim, 8, reg, 0); err != ErrUnsupportedAddressSpace {
			t.Errorf("[%s] expected ErrUnsupportedAddressSpace; got %v", space, err)
		}

		if err := Write(sim, 8, 1, reg, 0); err != ErrUnsupportedAddressSpace {
			t.Errorf("[%s] expected ErrUnsupportedAddressSpace; got %v", space, err)
		}
	}

	if got := sim.TotalAccesses(); got != 0 {
		t.Fatalf("expected no hardware accesses; got %d", got)
	}
}

func TestReadWriteBadWidth(t *testing.T) {
	sim := osl.NewSim()
	reg := &table.GenericAddress{Space: table.AddressSpaceSysIO, Address: 0x400}

	if _, err := Read(sim, 12, reg, 0); err != ErrBadParameter {
		t.Fatalf("expected ErrBadParameter; got %v", err)
	}

	if err := Write(sim, 0, 0, reg, 0); err != ErrBadParameter {
		t.Fatalf("expected ErrBadParameter; got %v", err)
	}
}

func TestReadWritePlatformErrors(t *testing.T) {
	sim := osl.NewSim()
	expErr := &kernel.Error{Module: "test", Message: "machine check"}
	sim.Fail(table.AddressSpaceSysMemory, 0x1000, expErr)

	reg := &table.GenericAddress{Space: table.AddressSpaceSysMemory, Address: 0x1000}
	if _, err := Read(sim, 32, reg, 0); err != expErr {
		t.Fatalf("expected platform error to be propagated; got %v", err)
	}

	if err := Write(sim, 32, 0, reg, 0); err != expErr {
		t.Fatalf("expected platform error to be propagated; got %v", err)
	}
}

func TestDecodePCIAddress(t *testing.T) {
	got := DecodePCIAddress(0x0102001f00070010, 4)
	exp := osl.PCIAddress{Segment: 1, Bus: 2, Device: 0x1f, Function: 7, Register: 0x14}

	if got != exp {
		t.Fatalf("expected %+v; got %+v", exp, got)
	}
}
