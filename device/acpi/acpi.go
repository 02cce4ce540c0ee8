// Package acpi provides the ACPI driver. The driver locates the FADT, brings
// up the event core (ordered mutexes, generic state cache, namespace, fixed
// events and GPEs) and registers the GPE control methods found in the loaded
// definition blocks.
package acpi

import (
	"acpievt/device"
	"acpievt/device/acpi/event"
	"acpievt/device/acpi/hw"
	"acpievt/device/acpi/mutex"
	"acpievt/device/acpi/namespace"
	"acpievt/device/acpi/osl"
	"acpievt/device/acpi/state"
	"acpievt/device/acpi/table"
	"acpievt/kernel"
	"acpievt/kernel/kfmt"
	"bytes"
	"context"
	"io"
	"unsafe"
)

var (
	errMissingFADT           = &kernel.Error{Module: "acpi", Message: "could not locate the FADT"}
	errTableChecksumMismatch = &kernel.Error{Module: "acpi", Message: "detected checksum mismatch while parsing ACPI table header"}

	fadtSignature = "FACP"

	// definitionBlocks contains the loaders registered via
	// RegisterDefinitionBlock.
	definitionBlocks []LoadFn
)

// LoadFn populates the namespace with the objects declared by a definition
// block.
type LoadFn func(ctx context.Context, ns *namespace.Namespace) *kernel.Error

// RegisterDefinitionBlock registers a loader that is invoked by DriverInit
// once the namespace has been created and before the GPE control methods
// are registered.
func RegisterDefinitionBlock(fn LoadFn) {
	definitionBlocks = append(definitionBlocks, fn)
}

// Core bundles the components brought up by the ACPI driver.
type Core struct {
	Mutexes   *mutex.Set
	Cache     *state.Cache
	Namespace *namespace.Namespace
	Events    *event.Subsystem
}

// Driver implements device.Driver for the ACPI event core.
type Driver struct {
	tables   table.Resolver
	platform osl.Platform

	// LogLevel controls the verbosity of the event core logger.
	LogLevel kfmt.Level

	// QueueDepth is the capacity of the deferred GPE work queue. If zero,
	// event.DefaultQueueDepth is used.
	QueueDepth int

	// MaxGPENumber is the highest GPE number supported by the platform.
	// If zero, event.DefaultMaxGPENumber is used.
	MaxGPENumber uint32

	// DefinitionBlocks are loaded after the blocks registered via
	// RegisterDefinitionBlock.
	DefinitionBlocks []LoadFn

	fadt *table.FADT
	core *Core
}

// New returns a driver that uses tables to locate the FADT and p to access
// the hardware registers.
func New(tables table.Resolver, p osl.Platform) *Driver {
	return &Driver{tables: tables, platform: p, LogLevel: kfmt.LevelInfo}
}

// DriverName returns the name of this driver.
func (*Driver) DriverName() string {
	return "ACPI"
}

// DriverVersion returns the version of this driver.
func (*Driver) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// Core returns the components brought up by DriverInit or nil if the driver
// has not been initialized.
func (drv *Driver) Core() *Core {
	return drv.core
}

// FADT returns the FADT located by DriverInit.
func (drv *Driver) FADT() *table.FADT {
	return drv.fadt
}

// DriverInit initializes this driver.
func (drv *Driver) DriverInit(w io.Writer) *kernel.Error {
	header := drv.tables.LookupTable(fadtSignature)
	if header == nil {
		return errMissingFADT
	}

	if !validTable(header) {
		return errTableChecksumMismatch
	}

	drv.fadt = (*table.FADT)(unsafe.Pointer(header))

	var (
		ctx     = mutex.WithThread(context.Background())
		mutexes = mutex.NewSet()
		cache   = state.NewCache(mutexes, state.DefaultMaxDepth)
		ns      = namespace.New(mutexes, cache)
	)

	loaders := append(append([]LoadFn(nil), definitionBlocks...), drv.DefinitionBlocks...)
	for _, load := range loaders {
		if err := load(ctx, ns); err != nil {
			mutexes.Close()
			return err
		}
	}

	events, err := event.Init(ctx, event.Config{
		Platform:     drv.platform,
		FADT:         drv.fadt,
		Namespace:    ns,
		Mutexes:      mutexes,
		MaxGPENumber: drv.MaxGPENumber,
		QueueDepth:   drv.QueueDepth,
		Logger:       &kfmt.Logger{Module: "acpi_evt", Sink: w, Level: drv.LogLevel},
	})
	if err != nil {
		mutexes.Close()
		return err
	}

	methods, err := events.RegisterGPEMethods(ctx)
	if err != nil {
		events.Terminate(ctx)
		mutexes.Close()
		return err
	}

	drv.core = &Core{Mutexes: mutexes, Cache: cache, Namespace: ns, Events: events}

	drv.printRegisterInfo(w)
	kfmt.Fprintf(w, "registered %d GPE method(s)\n", methods)
	return nil
}

func (drv *Driver) printRegisterInfo(w io.Writer) {
	header := drv.fadt.SDTHeader
	kfmt.Fprintf(w, "FACP rev %d %6x (%6s %8s)\n",
		header.Revision,
		header.Length,
		string(header.OEMID[:]),
		string(header.OEMTableID[:]),
	)

	var (
		regs = drv.core.Events.Registers()
		line bytes.Buffer
	)

	for id := hw.PM1Status; id <= hw.SMICommand; id++ {
		a, b, offset, width, _ := regs.Describe(id)
		if !a.Present() {
			continue
		}

		line.Reset()
		kfmt.Fprintf(&line, "%-8s %s 0x%x+%d", id, a.Space, a.Address, offset)
		if b.Present() {
			kfmt.Fprintf(&line, " | %s 0x%x+%d", b.Space, b.Address, offset)
		}
		kfmt.Fprintf(w, "%s (%d-bit)\n", line.Bytes(), width)
	}
}

// validTable calculates the checksum for the ACPI table that starts at header
// and returns true if the table is valid.
func validTable(header *table.SDTHeader) bool {
	var sum uint8
	for _, b := range table.Bytes(header) {
		sum += b
	}

	return sum == 0
}

func probeForACPI(tables table.Resolver, p osl.Platform) device.Driver {
	if tables == nil || p == nil || tables.LookupTable(fadtSignature) == nil {
		return nil
	}

	return New(tables, p)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderACPI,
		Probe: probeForACPI,
	})
}
