//go:build linux

package osl

import (
	"acpievt/kernel"
	"acpievt/kernel/kfmt"
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	errOpenDevMem   = &kernel.Error{Module: "osl", Message: "unable to open /dev/mem"}
	errOpenDevPort  = &kernel.Error{Module: "osl", Message: "unable to open /dev/port"}
	errMapMemory    = &kernel.Error{Module: "osl", Message: "unable to map physical memory page"}
	errPortAccess   = &kernel.Error{Module: "osl", Message: "I/O port access failed"}
	errPCIAccess    = &kernel.Error{Module: "osl", Message: "PCI config space access failed"}
	errLinuxClosed  = &kernel.Error{Module: "osl", Message: "platform has been closed"}
	errShortAccess  = &kernel.Error{Module: "osl", Message: "short read or write"}
	errPageBoundary = &kernel.Error{Module: "osl", Message: "memory access crosses a page boundary"}

	// Overridden by tests.
	devMemPath    = "/dev/mem"
	devPortPath   = "/dev/port"
	pciConfigPath = func(addr PCIAddress) string {
		return fmt.Sprintf("/sys/bus/pci/devices/%04x:%02x:%02x.%d/config",
			addr.Segment, addr.Bus, addr.Device, addr.Function)
	}
)

// Linux is a Platform backed by the host kernel. Physical memory is reached
// through mmap'd pages of /dev/mem, I/O ports through /dev/port and PCI
// configuration space through the sysfs config files. It requires
// CAP_SYS_RAWIO.
type Linux struct {
	mu sync.Mutex

	memFd, portFd int
	pageSize      uint64
	pages         map[uint64][]byte
	pciFds        map[PCIAddress]int
	closed        bool

	// Log receives diagnostics about failed host calls. It may be nil.
	Log *kfmt.Logger
}

// OpenLinux opens the host device nodes used by the Linux platform.
func OpenLinux(log *kfmt.Logger) (*Linux, *kernel.Error) {
	memFd, err := unix.Open(devMemPath, unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		log.Errorf("open %s: %v", devMemPath, err)
		return nil, errOpenDevMem
	}

	portFd, err := unix.Open(devPortPath, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		unix.Close(memFd)
		log.Errorf("open %s: %v", devPortPath, err)
		return nil, errOpenDevPort
	}

	return &Linux{
		memFd:    memFd,
		portFd:   portFd,
		pageSize: uint64(unix.Getpagesize()),
		pages:    make(map[uint64][]byte),
		pciFds:   make(map[PCIAddress]int),
		Log:      log,
	}, nil
}

// Close unmaps all memory pages and closes all open device nodes.
func (l *Linux) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true

	for _, page := range l.pages {
		unix.Munmap(page)
	}
	for _, fd := range l.pciFds {
		unix.Close(fd)
	}
	unix.Close(l.memFd)
	unix.Close(l.portFd)
}

// ReadMemory implements Platform.
func (l *Linux) ReadMemory(addr uint64, width uint8) (uint64, *kernel.Error) {
	ptr, err := l.memPointer(addr, width)
	if err != nil {
		return 0, err
	}

	switch width {
	case 8:
		return uint64(*(*uint8)(ptr)), nil
	case 16:
		return uint64(*(*uint16)(ptr)), nil
	case 32:
		return uint64(*(*uint32)(ptr)), nil
	default:
		return *(*uint64)(ptr), nil
	}
}

// WriteMemory implements Platform.
func (l *Linux) WriteMemory(addr uint64, value uint64, width uint8) *kernel.Error {
	ptr, err := l.memPointer(addr, width)
	if err != nil {
		return err
	}

	switch width {
	case 8:
		*(*uint8)(ptr) = uint8(value)
	case 16:
		*(*uint16)(ptr) = uint16(value)
	case 32:
		*(*uint32)(ptr) = uint32(value)
	default:
		*(*uint64)(ptr) = value
	}
	return nil
}

// ReadPort implements Platform.
func (l *Linux) ReadPort(port uint64, width uint8) (uint64, *kernel.Error) {
	if !ValidWidth(width) {
		return 0, ErrInvalidWidth
	}

	var buf [8]byte
	if err := l.pread(l.portFd, buf[:width/8], int64(port), errPortAccess); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// WritePort implements Platform.
func (l *Linux) WritePort(port uint64, value uint64, width uint8) *kernel.Error {
	if !ValidWidth(width) {
		return ErrInvalidWidth
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	return l.pwrite(l.portFd, buf[:width/8], int64(port), errPortAccess)
}

// ReadPCIConfig implements Platform.
func (l *Linux) ReadPCIConfig(addr PCIAddress, width uint8) (uint64, *kernel.Error) {
	if !ValidWidth(width) {
		return 0, ErrInvalidWidth
	}

	fd, err := l.pciFd(addr)
	if err != nil {
		return 0, err
	}

	var buf [8]byte
	if err = l.pread(fd, buf[:width/8], int64(addr.Register), errPCIAccess); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// WritePCIConfig implements Platform.
func (l *Linux) WritePCIConfig(addr PCIAddress, value uint64, width uint8) *kernel.Error {
	if !ValidWidth(width) {
		return ErrInvalidWidth
	}

	fd, err := l.pciFd(addr)
	if err != nil {
		return err
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	return l.pwrite(fd, buf[:width/8], int64(addr.Register), errPCIAccess)
}

// memPointer returns a pointer to the mapped location of physical address
// addr, mapping its page on first use.
func (l *Linux) memPointer(addr uint64, width uint8) (unsafe.Pointer, *kernel.Error) {
	if !ValidWidth(width) {
		return nil, ErrInvalidWidth
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, errLinuxClosed
	}

	pageAddr := addr &^ (l.pageSize - 1)
	offset := addr - pageAddr
	if offset+uint64(width/8) > l.pageSize {
		return nil, errPageBoundary
	}

	page, ok := l.pages[pageAddr]
	if !ok {
		var err error
		page, err = unix.Mmap(l.memFd, int64(pageAddr), int(l.pageSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			l.Log.Errorf("mmap physical page 0x%x: %v", pageAddr, err)
			return nil, errMapMemory
		}
		l.pages[pageAddr] = page
	}

	return unsafe.Pointer(&page[offset]), nil
}

func (l *Linux) pciFd(addr PCIAddress) (int, *kernel.Error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return -1, errLinuxClosed
	}

	// Config fds are shared by all registers of a function.
	key := addr
	key.Register = 0
	if fd, ok := l.pciFds[key]; ok {
		return fd, nil
	}

	path := pciConfigPath(addr)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		l.Log.Errorf("open %s: %v", path, err)
		return -1, errPCIAccess
	}
	l.pciFds[key] = fd
	return fd, nil
}

func (l *Linux) pread(fd int, buf []byte, off int64, failErr *kernel.Error) *kernel.Error {
	n, err := unix.Pread(fd, buf, off)
	if err != nil {
		l.Log.Errorf("pread at 0x%x: %v", off, err)
		return failErr
	}
	if n != len(buf) {
		return errShortAccess
	}
	return nil
}

func (l *Linux) pwrite(fd int, buf []byte, off int64, failErr *kernel.Error) *kernel.Error {
	n, err := unix.Pwrite(fd, buf, off)
	if err != nil {
		l.Log.Errorf("pwrite at 0x%x: %v", off, err)
		return failErr
	}
	if n != len(buf) {
		return errShortAccess
	}
	return nil
}
