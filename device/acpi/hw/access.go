// Package hw implements access to the ACPI fixed hardware. It reads and writes
// registers described by generic address structures regardless of the address
// space that backs them, composes split A/B register pairs into a single
// logical register and provides get/set access to named register bits.
package hw

import (
	"acpievt/device/acpi/osl"
	"acpievt/device/acpi/table"
	"acpievt/kernel"
)

var (
	// ErrBadParameter is returned for unsupported access widths and
	// unknown register or bit ids.
	ErrBadParameter = &kernel.Error{Module: "acpi_hw", Message: "bad parameter"}

	// ErrUnsupportedAddressSpace is returned when a register descriptor
	// refers to an address space other than system memory, system I/O or
	// PCI configuration space.
	ErrUnsupportedAddressSpace = &kernel.Error{Module: "acpi_hw", Message: "unsupported address space"}
)

// Read performs a width-bit read of the register described by reg at the
// given byte offset. A nil or unpopulated descriptor denotes an optional
// register that firmware did not provide; reading it succeeds and yields 0.
func Read(p osl.Platform, width uint8, reg *table.GenericAddress, offset uint64) (uint64, *kernel.Error) {
	if !osl.ValidWidth(width) {
		return 0, ErrBadParameter
	}

	if !reg.Present() {
		return 0, nil
	}

	addr := reg.Address + offset
	switch reg.Space {
	case table.AddressSpaceSysMemory:
		return p.ReadMemory(addr, width)
	case table.AddressSpaceSysIO:
		return p.ReadPort(addr, width)
	case table.AddressSpacePCI:
		return p.ReadPCIConfig(DecodePCIAddress(reg.Address, offset), width)
	default:
		return 0, ErrUnsupportedAddressSpace
	}
}

// Write performs a width-bit write of value to the register described by reg
// at the given byte offset. Writes to a nil or unpopulated descriptor are
// silently discarded.
func Write(p osl.Platform, width uint8, value uint64, reg *table.GenericAddress, offset uint64) *kernel.Error {
	if !osl.ValidWidth(width) {
		return ErrBadParameter
	}

	if !reg.Present() {
		return nil
	}

	value &= osl.WidthMask(width)
	addr := reg.Address + offset
	switch reg.Space {
	case table.AddressSpaceSysMemory:
		return p.WriteMemory(addr, value, width)
	case table.AddressSpaceSysIO:
		return p.WritePort(addr, value, width)
	case table.AddressSpacePCI:
		return p.WritePCIConfig(DecodePCIAddress(reg.Address, offset), value, width)
	default:
		return ErrUnsupportedAddressSpace
	}
}

// DecodePCIAddress splits a PCI configuration space generic address into its
// components. The address is laid out as:
//
//	[63:56] segment [55:48] bus [47:32] device [31:16] function [15:0] register
//
// offset is added to the register field.
func DecodePCIAddress(addr uint64, offset uint64) osl.PCIAddress {
	return osl.PCIAddress{
		Segment:  uint16(addr >> 56),
		Bus:      uint8(addr >> 48),
		Device:   uint16(addr >> 32),
		Function: uint16(addr >> 16),
		Register: uint16(addr) + uint16(offset),
	}
}
