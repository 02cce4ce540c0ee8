// Package device provides the driver registry used to detect and initialize
// the platform device drivers.
package device

import (
	"acpievt/device/acpi/osl"
	"acpievt/device/acpi/table"
	"acpievt/kernel"
	"acpievt/kernel/kfmt"
	"io"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprintf.
	DriverInit(io.Writer) *kernel.Error
}

// ProbeFn is a function that scans for the presence of a particular
// piece of hardware and returns a driver for it. Firmware tables are
// located via the supplied resolver and hardware registers are accessed
// through the supplied platform.
type ProbeFn func(table.Resolver, osl.Platform) Driver

// DetectOrder specifies when each driver's probe function will be invoked
// by the hardware detection code.
type DetectOrder int8

// The list of supported detection orders.
const (
	// DetectOrderEarly is used by drivers that must be probed before
	// any other driver.
	DetectOrderEarly DetectOrder = -128

	// DetectOrderBeforeACPI is used by drivers that must be probed
	// before the ACPI event core is brought up.
	DetectOrderBeforeACPI DetectOrder = -127

	// DetectOrderACPI is used by drivers that depend on the ACPI event
	// core.
	DetectOrderACPI DetectOrder = 0

	// DetectOrderLast is used by drivers that must be probed last.
	DetectOrderLast DetectOrder = 127
)

// DriverInfo is used by device drivers to register themselves.
type DriverInfo struct {
	// Order specifies at which stage of the hardware detection process
	// the driver's probe function will be invoked.
	Order DetectOrder

	// Probe is a function that checks whether the hardware is available
	// and returns a Driver instance for it.
	Probe ProbeFn
}

// DriverInfoList is a list of registered drivers that implements
// sort.Interface.
type DriverInfoList []*DriverInfo

// Len returns the length of the driver info list.
func (l DriverInfoList) Len() int { return len(l) }

// Swap exchanges 2 elements in the driver info list.
func (l DriverInfoList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

// Less compares 2 elements of the driver info list.
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }

var (
	registeredDrivers DriverInfoList
)

// RegisterDriver adds the supplied driver info object to the list of
// registered drivers. The list can be retrieved by calling DriverList().
func RegisterDriver(info *DriverInfo) {
	registeredDrivers = append(registeredDrivers, info)
}

// DriverList returns the list of registered drivers.
func DriverList() DriverInfoList {
	return registeredDrivers
}

// Probe executes the probe function for each driver in list and initializes
// the drivers that report their hardware as present. Init output is written
// to w with a prefix identifying the driver. Drivers that fail to initialize
// are skipped.
func Probe(list DriverInfoList, res table.Resolver, p osl.Platform, w io.Writer) []Driver {
	var active []Driver

	for _, info := range list {
		drv := info.Probe(res, p)
		if drv == nil {
			continue
		}

		major, minor, patch := drv.DriverVersion()
		log := &kfmt.Logger{Module: "hal", Sink: w, Level: kfmt.LevelInfo}
		drvOut := log.Writer(kfmt.LevelInfo)

		if err := drv.DriverInit(drvOut); err != nil {
			log.Errorf("%s(%d.%d.%d): init failed: %s", drv.DriverName(), major, minor, patch, err.Message)
			continue
		}

		log.Infof("%s(%d.%d.%d): initialized", drv.DriverName(), major, minor, patch)
		active = append(active, drv)
	}

	return active
}
