// Package kfmt provides the logging primitives used by the ACPI event core.
// Output is sent to a configurable sink; anything printed before a sink is
// attached is kept in a ring buffer and replayed once SetOutputSink is called.
package kfmt

import (
	"acpievt/kernel/sync"
	"fmt"
	"io"
)

var (
	// earlyPrintBuffer is a ring buffer that stores Printf output before
	// an output sink is attached.
	earlyPrintBuffer ringBuffer

	// outputSink is a io.Writer where Printf will send its output. If set
	// to nil, then the output will be redirected to the earlyPrintBuffer.
	outputSink io.Writer

	// sinkLock serializes access to outputSink and earlyPrintBuffer.
	// Printf may be called from SCI dispatch paths which must not sleep.
	sinkLock sync.Spinlock
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the earlyPrintBuffer to it.
func SetOutputSink(w io.Writer) {
	sinkLock.Acquire()
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
	}
	sinkLock.Release()
}

// Printf formats according to a format specifier and writes to the active
// output sink or, if no sink is attached, to the early print ring buffer.
func Printf(format string, args ...interface{}) {
	sinkLock.Acquire()
	if outputSink != nil {
		fmt.Fprintf(outputSink, format, args...)
	} else {
		fmt.Fprintf(&earlyPrintBuffer, format, args...)
	}
	sinkLock.Release()
}

// Fprintf behaves like Printf but writes its output to w. A nil w selects the
// default output sink.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	if w == nil {
		Printf(format, args...)
		return
	}

	fmt.Fprintf(w, format, args...)
}
