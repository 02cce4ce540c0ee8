package hw

import (
	"acpievt/device/acpi/osl"
	"acpievt/device/acpi/table"
	"acpievt/kernel"
	"acpievt/kernel/sync"
)

// RegisterID identifies a logical ACPI fixed hardware register.
type RegisterID uint8

// The list of logical registers. PM1 status, enable and control are each
// backed by an "A" register and an optional "B" companion.
const (
	PM1Status RegisterID = iota
	PM1Enable
	PM1Control
	PM2Control
	PMTimer
	SMICommand

	numRegisters
)

var registerNames = [numRegisters]string{
	PM1Status:  "PM1_STS",
	PM1Enable:  "PM1_EN",
	PM1Control: "PM1_CNT",
	PM2Control: "PM2_CNT",
	PMTimer:    "PM_TMR",
	SMICommand: "SMI_CMD",
}

// String implements fmt.Stringer for RegisterID.
func (id RegisterID) String() string {
	if id < numRegisters {
		return registerNames[id]
	}
	return "UNKNOWN"
}

// logicalRegister maps a logical register to its A and B physical registers.
// Both physical registers share the same sub-offset and access width.
type logicalRegister struct {
	a, b   table.GenericAddress
	offset uint64
	width  uint8
}

// Registers provides access to the logical fixed hardware registers described
// by a FADT.
type Registers struct {
	platform osl.Platform
	regs     [numRegisters]logicalRegister

	// lock protects read/modify/write sequences. It is a spinlock as
	// these sequences are also performed while servicing the SCI.
	lock sync.Spinlock
}

// NewRegisters builds the logical register map for the register blocks
// declared by fadt. The PM1 event blocks are split in two halves: the status
// register occupies the first half and the enable register the second.
func NewRegisters(p osl.Platform, fadt *table.FADT) *Registers {
	var (
		pm1aEvt = fadt.Block(fadt.Ext.PM1aEventBlock, fadt.PM1aEventBlock, fadt.PM1EventLength)
		pm1bEvt = fadt.Block(fadt.Ext.PM1bEventBlock, fadt.PM1bEventBlock, fadt.PM1EventLength)
		pm1aCnt = fadt.Block(fadt.Ext.PM1aControlBlock, fadt.PM1aControlBlock, fadt.PM1ControlLength)
		pm1bCnt = fadt.Block(fadt.Ext.PM1bControlBlock, fadt.PM1bControlBlock, fadt.PM1ControlLength)
		pm2Cnt  = fadt.Block(fadt.Ext.PM2ControlBlock, fadt.PM2ControlBlock, fadt.PM2ControlLength)
		pmTmr   = fadt.Block(fadt.Ext.PMTimerBlock, fadt.PMTimerBlock, fadt.PMTimerLength)
		smiCmd  = fadt.Block(table.GenericAddress{}, fadt.SMICommandPort, 1)
	)

	r := &Registers{platform: p}
	r.regs[PM1Status] = logicalRegister{a: pm1aEvt, b: pm1bEvt, width: 16}
	r.regs[PM1Enable] = logicalRegister{a: pm1aEvt, b: pm1bEvt, offset: uint64(fadt.PM1EventLength / 2), width: 16}
	r.regs[PM1Control] = logicalRegister{a: pm1aCnt, b: pm1bCnt, width: 16}
	r.regs[PM2Control] = logicalRegister{a: pm2Cnt, width: 8}
	r.regs[PMTimer] = logicalRegister{a: pmTmr, width: 32}
	r.regs[SMICommand] = logicalRegister{a: smiCmd, width: 8}

	return r
}

// Platform returns the platform used for register accesses.
func (r *Registers) Platform() osl.Platform {
	return r.platform
}

// Describe returns the A and B descriptors, sub-offset and width of a logical
// register. It is used for diagnostics.
func (r *Registers) Describe(id RegisterID) (a, b table.GenericAddress, offset uint64, width uint8, err *kernel.Error) {
	if id >= numRegisters {
		return a, b, 0, 0, ErrBadParameter
	}

	reg := &r.regs[id]
	return reg.a, reg.b, reg.offset, reg.width, nil
}

// ReadRegister reads a logical register. For registers with a B companion,
// both halves are read and OR'd together; a missing companion contributes 0.
func (r *Registers) ReadRegister(id RegisterID) (uint32, *kernel.Error) {
	if id >= numRegisters {
		return 0, ErrBadParameter
	}

	reg := &r.regs[id]
	valA, err := Read(r.platform, reg.width, &reg.a, reg.offset)
	if err != nil {
		return 0, err
	}

	valB, err := Read(r.platform, reg.width, &reg.b, reg.offset)
	if err != nil {
		return 0, err
	}

	return uint32(valA | valB), nil
}

// WriteRegister writes value to a logical register. Registers with a B
// companion receive the same value in both halves.
//
// Status bits are cleared by writing 1 to them; callers writing PM1Status
// must pass a value that only contains the bits to be cleared.
func (r *Registers) WriteRegister(id RegisterID, value uint32) *kernel.Error {
	if id >= numRegisters {
		return ErrBadParameter
	}

	reg := &r.regs[id]
	if err := Write(r.platform, reg.width, uint64(value), &reg.a, reg.offset); err != nil {
		return err
	}

	return Write(r.platform, reg.width, uint64(value), &reg.b, reg.offset)
}

// Timer returns the current value of the PM timer.
func (r *Registers) Timer() (uint32, *kernel.Error) {
	return r.ReadRegister(PMTimer)
}

// Modify performs an atomic (with respect to other Modify, WriteBit and
// ClearStatus callers) read/modify/write of an arbitrary register: the bits
// in clearMask are cleared and the bits in setMask are set.
func (r *Registers) Modify(reg *table.GenericAddress, width uint8, offset uint64, clearMask, setMask uint64) *kernel.Error {
	r.lock.Acquire()
	defer r.lock.Release()

	val, err := Read(r.platform, width, reg, offset)
	if err != nil {
		return err
	}

	return Write(r.platform, width, (val&^clearMask)|setMask, reg, offset)
}

// ReadRaw reads an arbitrary register described by reg.
func (r *Registers) ReadRaw(reg *table.GenericAddress, width uint8, offset uint64) (uint64, *kernel.Error) {
	return Read(r.platform, width, reg, offset)
}

// WriteRaw writes an arbitrary register described by reg.
func (r *Registers) WriteRaw(reg *table.GenericAddress, width uint8, offset uint64, value uint64) *kernel.Error {
	return Write(r.platform, width, value, reg, offset)
}
