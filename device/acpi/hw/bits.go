package hw

import "acpievt/kernel"

// BitID identifies a named bit (or multi-bit field) within a logical register.
type BitID uint8

// The list of named register bits.
const (
	TimerStatus BitID = iota
	BusMasterStatus
	GlobalLockStatus
	PowerButtonStatus
	SleepButtonStatus
	RTCStatus
	WakeStatus

	TimerEnable
	GlobalLockEnable
	PowerButtonEnable
	SleepButtonEnable
	RTCEnable

	SCIEnable
	BusMasterReload
	GlobalLockRelease
	SleepType
	SleepEnable

	ArbiterDisable

	// NumBits is the number of defined named bits.
	NumBits
)

// BitRegister describes the location of a named bit field.
type BitRegister struct {
	Name     string
	Parent   RegisterID
	Position uint8
	Mask     uint32
}

// Width returns the number of bits in the field.
func (b BitRegister) Width() uint8 {
	var n uint8
	for m := b.Mask >> b.Position; m != 0; m >>= 1 {
		n++
	}
	return n
}

var bitRegisters = [NumBits]BitRegister{
	TimerStatus:       {"TMR_STS", PM1Status, 0, 0x0001},
	BusMasterStatus:   {"BM_STS", PM1Status, 4, 0x0010},
	GlobalLockStatus:  {"GBL_STS", PM1Status, 5, 0x0020},
	PowerButtonStatus: {"PWRBTN_STS", PM1Status, 8, 0x0100},
	SleepButtonStatus: {"SLPBTN_STS", PM1Status, 9, 0x0200},
	RTCStatus:         {"RTC_STS", PM1Status, 10, 0x0400},
	WakeStatus:        {"WAK_STS", PM1Status, 15, 0x8000},

	TimerEnable:       {"TMR_EN", PM1Enable, 0, 0x0001},
	GlobalLockEnable:  {"GBL_EN", PM1Enable, 5, 0x0020},
	PowerButtonEnable: {"PWRBTN_EN", PM1Enable, 8, 0x0100},
	SleepButtonEnable: {"SLPBTN_EN", PM1Enable, 9, 0x0200},
	RTCEnable:         {"RTC_EN", PM1Enable, 10, 0x0400},

	SCIEnable:         {"SCI_EN", PM1Control, 0, 0x0001},
	BusMasterReload:   {"BM_RLD", PM1Control, 1, 0x0002},
	GlobalLockRelease: {"GBL_RLS", PM1Control, 2, 0x0004},
	SleepType:         {"SLP_TYP", PM1Control, 10, 0x1c00},
	SleepEnable:       {"SLP_EN", PM1Control, 13, 0x2000},

	ArbiterDisable: {"ARB_DIS", PM2Control, 0, 0x01},
}

// Bit returns the descriptor for a named bit.
func Bit(id BitID) (BitRegister, *kernel.Error) {
	if id >= NumBits {
		return BitRegister{}, ErrBadParameter
	}
	return bitRegisters[id], nil
}

// String implements fmt.Stringer for BitID.
func (id BitID) String() string {
	if id < NumBits {
		return bitRegisters[id].Name
	}
	return "UNKNOWN"
}

// ReadBit returns the value of a named bit field shifted down to bit 0.
func (r *Registers) ReadBit(id BitID) (uint32, *kernel.Error) {
	if id >= NumBits {
		return 0, ErrBadParameter
	}

	bit := &bitRegisters[id]
	val, err := r.ReadRegister(bit.Parent)
	if err != nil {
		return 0, err
	}

	return (val & bit.Mask) >> bit.Position, nil
}

// WriteBit sets a named bit field to value. Fields living in PM1Status are
// write-1-to-clear: the register is written with only the field bits set so
// that no other pending status bit gets cleared as a side effect. All other
// fields are updated with a read/modify/write of their parent register.
func (r *Registers) WriteBit(id BitID, value uint32) *kernel.Error {
	if id >= NumBits {
		return ErrBadParameter
	}

	bit := &bitRegisters[id]
	if value > bit.Mask>>bit.Position {
		return ErrBadParameter
	}

	fieldVal := (value << bit.Position) & bit.Mask

	r.lock.Acquire()
	defer r.lock.Release()

	if bit.Parent == PM1Status {
		if fieldVal == 0 {
			return nil
		}
		return r.WriteRegister(PM1Status, fieldVal)
	}

	regVal, err := r.ReadRegister(bit.Parent)
	if err != nil {
		return err
	}

	return r.WriteRegister(bit.Parent, (regVal&^bit.Mask)|fieldVal)
}

// ClearStatus clears the PM1 status bits in mask.
func (r *Registers) ClearStatus(mask uint32) *kernel.Error {
	r.lock.Acquire()
	defer r.lock.Release()

	return r.WriteRegister(PM1Status, mask)
}
