// Package table contains the layouts of the firmware tables that describe
// where the ACPI fixed hardware and GPE register blocks live.
package table

import "unsafe"

// Resolver is an interface implemented by objects that can lookup an ACPI table
// by its name.
//
// LookupTable attempts to locate a table by name returning back a pointer to
// its standard header or nil if the table could not be found. The resolver
// must make sure that the entire table contents are accessible to the caller.
type Resolver interface {
	LookupTable(string) *SDTHeader
}

// SDTHeader defines the common header for all ACPI-related tables.
type SDTHeader struct {
	// The signature defines the table type.
	Signature [4]byte

	// The length of the table
	Length uint32

	// Tables with revision >= 2 provide 64-bit generic address structures
	// that supersede the legacy 32-bit block addresses.
	Revision uint8

	// A value that when added to the sum of all other bytes in the table
	// should result in the value 0.
	Checksum uint8

	// OEM specific information
	OEMID       [6]byte
	OEMTableID  [8]byte
	OEMRevision uint32

	// Information about the ASL compiler that generated this table
	CreatorID       uint32
	CreatorRevision uint32
}

// AddressSpace defines the location where a set of registers resides.
type AddressSpace uint8

// The list of address space types. Only the first three are routed by the
// register access layer; the remaining ones are reported as unsupported.
const (
	AddressSpaceSysMemory AddressSpace = iota
	AddressSpaceSysIO
	AddressSpacePCI
	AddressSpaceEmbController
	AddressSpaceSMBus
	AddressSpaceFuncFixedHW AddressSpace = 0x7f
)

// String implements fmt.Stringer for AddressSpace.
func (s AddressSpace) String() string {
	switch s {
	case AddressSpaceSysMemory:
		return "SystemMemory"
	case AddressSpaceSysIO:
		return "SystemIO"
	case AddressSpacePCI:
		return "PCIConfig"
	case AddressSpaceEmbController:
		return "EmbeddedControl"
	case AddressSpaceSMBus:
		return "SMBus"
	case AddressSpaceFuncFixedHW:
		return "FunctionalFixedHW"
	default:
		return "Unknown"
	}
}

// GenericAddress specifies a register range located in a particular address
// space. A zero Address means that firmware did not provide the register.
type GenericAddress struct {
	Space      AddressSpace
	BitWidth   uint8
	BitOffset  uint8
	AccessSize uint8
	Address    uint64
}

// Present returns true if the address describes an actual register.
func (ga *GenericAddress) Present() bool {
	return ga != nil && ga.Address != 0
}

// Offset returns a copy of ga whose address has been advanced by off bytes.
func (ga GenericAddress) Offset(off uint64) GenericAddress {
	if ga.Address != 0 {
		ga.Address += off
	}
	return ga
}

// FADT64 contains the 64-bit FADT extensions which are used by ACPI2+
type FADT64 struct {
	FirmwareControl uint64

	Dsdt uint64

	PM1aEventBlock   GenericAddress
	PM1bEventBlock   GenericAddress
	PM1aControlBlock GenericAddress
	PM1bControlBlock GenericAddress
	PM2ControlBlock  GenericAddress
	PMTimerBlock     GenericAddress
	GPE0Block        GenericAddress
	GPE1Block        GenericAddress
}

// FADT (Fixed ACPI Description Table) is an ACPI table containing information
// about fixed register blocks used for power management.
type FADT struct {
	SDTHeader

	FirmwareCtrl uint32
	Dsdt         uint32

	reserved uint8

	PreferredPowerManagementProfile uint8
	SCIInterrupt                    uint16
	SMICommandPort                  uint32
	AcpiEnable                      uint8
	AcpiDisable                     uint8
	S4BIOSReq                       uint8
	PSTATEControl                   uint8
	PM1aEventBlock                  uint32
	PM1bEventBlock                  uint32
	PM1aControlBlock                uint32
	PM1bControlBlock                uint32
	PM2ControlBlock                 uint32
	PMTimerBlock                    uint32
	GPE0Block                       uint32
	GPE1Block                       uint32
	PM1EventLength                  uint8
	PM1ControlLength                uint8
	PM2ControlLength                uint8
	PMTimerLength                   uint8
	GPE0Length                      uint8
	GPE1Length                      uint8
	GPE1Base                        uint8
	CStateControl                   uint8
	WorstC2Latency                  uint16
	WorstC3Latency                  uint16
	FlushSize                       uint16
	FlushStride                     uint16
	DutyOffset                      uint8
	DutyWidth                       uint8
	DayAlarm                        uint8
	MonthAlarm                      uint8
	Century                         uint8

	// Reserved in ACPI 1.0; used since ACPI 2.0+
	BootArchitectureFlags uint16

	reserved2 uint8
	Flags     uint32

	ResetReg GenericAddress

	ResetValue uint8
	reserved3  [3]uint8

	// 64-bit pointers to the above structures used by ACPI 2.0+
	Ext FADT64
}

// FADT feature flags consulted by the event core.
const (
	// FADTFlagPowerButtonIsControlMethod indicates that the power button
	// is handled as a control method device instead of a fixed event.
	FADTFlagPowerButtonIsControlMethod uint32 = 1 << 4

	// FADTFlagSleepButtonIsControlMethod is the sleep button equivalent
	// of FADTFlagPowerButtonIsControlMethod.
	FADTFlagSleepButtonIsControlMethod uint32 = 1 << 5

	// FADTFlagRTCWakeNotFixed indicates that RTC wake status is not
	// supported in fixed register space.
	FADTFlagRTCWakeNotFixed uint32 = 1 << 6
)

// Block returns the generic address for a register block. The 64-bit
// extended address is preferred for revision 2+ tables; otherwise, or if the
// extended address is not set, a SystemIO address is synthesized from the
// legacy 32-bit port number. The bit width is derived from the legacy length
// field which is always populated.
func (f *FADT) Block(ext GenericAddress, legacy uint32, length uint8) GenericAddress {
	if f.Revision >= 2 && ext.Address != 0 {
		if ext.BitWidth == 0 {
			ext.BitWidth = length * 8
		}
		return ext
	}

	if legacy == 0 {
		return GenericAddress{}
	}

	return GenericAddress{
		Space:    AddressSpaceSysIO,
		BitWidth: length * 8,
		Address:  uint64(legacy),
	}
}

// Map is a Resolver backed by a set of tables indexed by signature.
type Map map[string]*SDTHeader

// LookupTable implements Resolver.
func (m Map) LookupTable(name string) *SDTHeader {
	return m[name]
}

// Bytes returns the h.Length bytes of the table that starts at h. The caller
// must ensure that the entire table is addressable through h.
func Bytes(h *SDTHeader) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(h)), h.Length)
}

// Seal updates the checksum of the table that starts at h so that all
// h.Length bytes of the table add up to zero.
func Seal(h *SDTHeader) {
	var sum uint8

	h.Checksum = 0
	for _, b := range Bytes(h) {
		sum += b
	}
	h.Checksum = -sum
}
