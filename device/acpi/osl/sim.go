package osl

import (
	"acpievt/device/acpi/table"
	"acpievt/kernel"
	"encoding/binary"
	"sync"
)

// simSpaces is the number of address spaces modelled by Sim.
const simSpaces = 3

var errSimUnknownSpace = &kernel.Error{Module: "osl", Message: "sim: address space not modelled"}

// Sim is a Platform that models a chipset in memory. Every address space is
// a sparse byte array. Individual bits can be marked as write-1-to-clear (to
// model status registers) and as held (to model level-triggered sources that
// keep asserting their status bit while the underlying condition persists).
//
// Sim is safe for concurrent use.
type Sim struct {
	mu sync.Mutex

	mem  [simSpaces]map[uint64]byte
	w1c  [simSpaces]map[uint64]byte
	held [simSpaces]map[uint64]byte

	faults   [simSpaces]map[uint64]*kernel.Error
	accesses [simSpaces]int
}

// NewSim creates an empty simulated chipset.
func NewSim() *Sim {
	s := &Sim{}
	for i := 0; i < simSpaces; i++ {
		s.mem[i] = make(map[uint64]byte)
		s.w1c[i] = make(map[uint64]byte)
		s.held[i] = make(map[uint64]byte)
		s.faults[i] = make(map[uint64]*kernel.Error)
	}
	return s
}

// PCIKey flattens a PCI config address into the key used by Sim for the
// PCI address space.
func PCIKey(addr PCIAddress) uint64 {
	return uint64(addr.Segment&0xff)<<56 |
		uint64(addr.Bus)<<48 |
		uint64(addr.Device)<<32 |
		uint64(addr.Function)<<16 |
		uint64(addr.Register)
}

// ReadMemory implements Platform.
func (s *Sim) ReadMemory(addr uint64, width uint8) (uint64, *kernel.Error) {
	return s.read(table.AddressSpaceSysMemory, addr, width, true)
}

// WriteMemory implements Platform.
func (s *Sim) WriteMemory(addr uint64, value uint64, width uint8) *kernel.Error {
	return s.write(table.AddressSpaceSysMemory, addr, value, width, true)
}

// ReadPort implements Platform.
func (s *Sim) ReadPort(port uint64, width uint8) (uint64, *kernel.Error) {
	return s.read(table.AddressSpaceSysIO, port, width, true)
}

// WritePort implements Platform.
func (s *Sim) WritePort(port uint64, value uint64, width uint8) *kernel.Error {
	return s.write(table.AddressSpaceSysIO, port, value, width, true)
}

// ReadPCIConfig implements Platform.
func (s *Sim) ReadPCIConfig(addr PCIAddress, width uint8) (uint64, *kernel.Error) {
	return s.read(table.AddressSpacePCI, PCIKey(addr), width, true)
}

// WritePCIConfig implements Platform.
func (s *Sim) WritePCIConfig(addr PCIAddress, value uint64, width uint8) *kernel.Error {
	return s.write(table.AddressSpacePCI, PCIKey(addr), value, width, true)
}

// Peek reads a value without counting it as a hardware access and without
// triggering any injected fault.
func (s *Sim) Peek(space table.AddressSpace, addr uint64, width uint8) uint64 {
	v, _ := s.read(space, addr, width, false)
	return v
}

// Poke stores a value bypassing write-1-to-clear semantics. It is used to
// seed register contents.
func (s *Sim) Poke(space table.AddressSpace, addr uint64, value uint64, width uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !ValidWidth(width) || int(space) >= simSpaces {
		return
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	for i := uint64(0); i < uint64(width/8); i++ {
		s.mem[space][addr+i] = buf[i]
	}
}

// MarkW1C flags the bits in mask of the byte at addr as write-1-to-clear.
func (s *Sim) MarkW1C(space table.AddressSpace, addr uint64, mask byte) {
	s.mu.Lock()
	s.w1c[space][addr] |= mask
	s.mu.Unlock()
}

// MarkW1CRange flags every bit of length bytes starting at addr as
// write-1-to-clear.
func (s *Sim) MarkW1CRange(space table.AddressSpace, addr uint64, length int) {
	for i := 0; i < length; i++ {
		s.MarkW1C(space, addr+uint64(i), 0xff)
	}
}

// Assert sets bit of the byte at addr, modelling a hardware source raising
// its status bit.
func (s *Sim) Assert(space table.AddressSpace, addr uint64, bit uint8) {
	s.mu.Lock()
	s.mem[space][addr] |= 1 << bit
	s.mu.Unlock()
}

// Hold raises (asserted=true) or lowers a level-triggered source. While a
// source is held its status bit is re-asserted immediately after every clear.
func (s *Sim) Hold(space table.AddressSpace, addr uint64, bit uint8, asserted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if asserted {
		s.held[space][addr] |= 1 << bit
		s.mem[space][addr] |= 1 << bit
		return
	}

	s.held[space][addr] &^= 1 << bit
}

// Fail injects err for any access that touches addr. Passing a nil err removes
// the injected fault.
func (s *Sim) Fail(space table.AddressSpace, addr uint64, err *kernel.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.faults[space], addr)
		return
	}
	s.faults[space][addr] = err
}

// Accesses returns the number of Platform reads and writes performed against
// the given address space.
func (s *Sim) Accesses(space table.AddressSpace) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accesses[space]
}

// TotalAccesses returns the number of Platform reads and writes performed
// against all address spaces.
func (s *Sim) TotalAccesses() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int
	for _, n := range s.accesses {
		total += n
	}
	return total
}

func (s *Sim) read(space table.AddressSpace, addr uint64, width uint8, count bool) (uint64, *kernel.Error) {
	if !ValidWidth(width) {
		return 0, ErrInvalidWidth
	}

	if int(space) >= simSpaces {
		return 0, errSimUnknownSpace
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if count {
		s.accesses[space]++
		if err := s.faultFor(space, addr, width); err != nil {
			return 0, err
		}
	}

	var buf [8]byte
	for i := uint64(0); i < uint64(width/8); i++ {
		buf[i] = s.mem[space][addr+i]
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (s *Sim) write(space table.AddressSpace, addr uint64, value uint64, width uint8, count bool) *kernel.Error {
	if !ValidWidth(width) {
		return ErrInvalidWidth
	}

	if int(space) >= simSpaces {
		return errSimUnknownSpace
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if count {
		s.accesses[space]++
		if err := s.faultFor(space, addr, width); err != nil {
			return err
		}
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	for i := uint64(0); i < uint64(width/8); i++ {
		var (
			cur  = s.mem[space][addr+i]
			w1c  = s.w1c[space][addr+i]
			next = buf[i]
		)

		// Writing 1 to a write-1-to-clear bit clears it; writing 0 leaves
		// it untouched. All other bits are plain storage.
		next = (next &^ w1c) | (cur & w1c &^ next)

		// Held sources re-assert their status bit right away.
		next |= s.held[space][addr+i] & w1c

		s.mem[space][addr+i] = next
	}

	return nil
}

func (s *Sim) faultFor(space table.AddressSpace, addr uint64, width uint8) *kernel.Error {
	for i := uint64(0); i < uint64(width/8); i++ {
		if err := s.faults[space][addr+i]; err != nil {
			return err
		}
	}
	return nil
}
