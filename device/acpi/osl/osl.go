// Package osl defines the platform accessors that the ACPI event core uses to
// reach hardware registers and provides implementations for a simulated
// chipset and for a Linux host.
package osl

import "acpievt/kernel"

var (
	// ErrInvalidWidth is returned by platform implementations when asked
	// to perform an access that is not 8, 16, 32 or 64 bits wide.
	ErrInvalidWidth = &kernel.Error{Module: "osl", Message: "invalid access width"}
)

// PCIAddress identifies a register in PCI configuration space.
type PCIAddress struct {
	Segment  uint16
	Bus      uint8
	Device   uint16
	Function uint16
	Register uint16
}

// Platform is implemented by objects that can perform 8, 16, 32 or 64-bit
// wide accesses to system memory, system I/O ports and PCI configuration
// space. Implementations must not block as they are invoked while servicing
// the SCI.
type Platform interface {
	ReadMemory(addr uint64, width uint8) (uint64, *kernel.Error)
	WriteMemory(addr uint64, value uint64, width uint8) *kernel.Error

	ReadPort(port uint64, width uint8) (uint64, *kernel.Error)
	WritePort(port uint64, value uint64, width uint8) *kernel.Error

	ReadPCIConfig(addr PCIAddress, width uint8) (uint64, *kernel.Error)
	WritePCIConfig(addr PCIAddress, value uint64, width uint8) *kernel.Error
}

// ValidWidth returns true if width is a supported access width in bits.
func ValidWidth(width uint8) bool {
	switch width {
	case 8, 16, 32, 64:
		return true
	}
	return false
}

// WidthMask returns a mask covering the low width bits of a value.
func WidthMask(width uint8) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}
