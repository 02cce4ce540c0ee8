// Command acpievt drives the ACPI event core against a simulated chipset.
// It raises the requested fixed events and GPEs, services the resulting
// SCIs and prints a trace of the dispatch decisions.
package main

import (
	"acpievt/device"
	"acpievt/device/acpi"
	"acpievt/device/acpi/event"
	"acpievt/device/acpi/mutex"
	"acpievt/device/acpi/osl"
	"acpievt/device/acpi/table"
	"acpievt/kernel"
	"acpievt/kernel/kfmt"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
)

var (
	traceColor   = color.New(color.FgCyan)
	handledColor = color.New(color.FgGreen)
	missColor    = color.New(color.FgYellow)
	errColor     = color.New(color.FgRed)
	methodColor  = color.New(color.FgMagenta)

	errMethodFailed = &kernel.Error{Module: "acpievt", Message: "method reported failure"}

	// probeOutput receives the driver probe and init output.
	probeOutput io.Writer = os.Stderr
)

func main() {
	configPath := flag.String("config", "", "platform description (JSON); a built-in chipset is used if empty")
	eventSpec := flag.String("events", "fixed:power,gpe:2,gpe:0x21", "comma separated events to raise (gpe:N, fixed:NAME)")
	workers := flag.Int("workers", 0, "number of deferred workers; 0 runs deferred work inline")
	dump := flag.Bool("dump", false, "dump the event core state before exiting")
	noColor := flag.Bool("no-color", false, "disable colored output")
	host := flag.Bool("host", false, "read the configured registers of the host chipset instead of simulating events (linux only)")
	flag.Parse()

	if *noColor {
		color.NoColor = true
	}

	kfmt.SetOutputSink(os.Stderr)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		exit(err)
	}

	if *host {
		if err = readHost(cfg); err != nil {
			exit(err)
		}
		return
	}

	events, err := parseEvents(*eventSpec)
	if err != nil {
		exit(err)
	}

	if err = simulate(cfg, events, *workers, *dump); err != nil {
		exit(err)
	}
}

func exit(err error) {
	errColor.Fprintf(os.Stderr, "acpievt: %v\n", err)
	os.Exit(1)
}

func simulate(cfg *platformConfig, events []simEvent, workers int, dump bool) error {
	var (
		sim    = cfg.sim()
		fadt   = cfg.fadt()
		tables = table.Map{"FACP": &fadt.SDTHeader}
		ctx    = mutex.WithThread(context.Background())
	)

	drivers := tuneDrivers(device.DriverList(), cfg)
	sort.Sort(drivers)

	var core *acpi.Core
	for _, drv := range device.Probe(drivers, tables, sim, probeOutput) {
		if acpiDrv, ok := drv.(*acpi.Driver); ok {
			core = acpiDrv.Core()
		}
	}

	if core == nil {
		return fmt.Errorf("ACPI event core failed to initialize")
	}

	sub := core.Events
	if err := sub.InstallFixedHandler(ctx, event.FixedPowerButton, func(data interface{}) event.Verdict {
		handledColor.Printf("  %s pressed\n", data)
		return event.Handled
	}, "power button"); err != nil {
		return err
	}

	if workers > 0 {
		if err := sub.Start(context.Background(), workers); err != nil {
			return err
		}
	}

	for _, ev := range events {
		raise(cfg, sim, ev)

		verdict := sub.HandleSCI()
		c := handledColor
		if verdict != event.Handled {
			c = missColor
		}
		c.Printf("  SCI: %s\n", verdict)

		if workers == 0 {
			if n := sub.RunPending(ctx); n != 0 {
				traceColor.Printf("  ran %d deferred item(s)\n", n)
			}
		}
	}

	for workers > 0 && sub.Pending() != 0 {
		time.Sleep(time.Millisecond)
	}

	if dump {
		sub.Dump(os.Stdout)
	}

	if err := sub.Terminate(ctx); err != nil {
		return err
	}
	return nil
}

// tuneDrivers returns a copy of list whose probe functions apply the platform
// settings of cfg to the ACPI driver before it is initialized.
func tuneDrivers(list device.DriverInfoList, cfg *platformConfig) device.DriverInfoList {
	tuned := make(device.DriverInfoList, 0, len(list))
	for _, info := range list {
		probe := info.Probe
		tuned = append(tuned, &device.DriverInfo{
			Order: info.Order,
			Probe: func(res table.Resolver, p osl.Platform) device.Driver {
				drv := probe(res, p)
				if acpiDrv, ok := drv.(*acpi.Driver); ok {
					acpiDrv.MaxGPENumber = cfg.MaxGPE
					acpiDrv.DefinitionBlocks = append(acpiDrv.DefinitionBlocks, cfg.definitionBlock())
				}
				return drv
			},
		})
	}
	return tuned
}

func raise(cfg *platformConfig, sim *osl.Sim, ev simEvent) {
	traceColor.Printf("raise %s\n", ev)

	if ev.fixed {
		space, addr, bit := cfg.fixedStatusBit(ev.fixedEv)
		sim.Assert(space, addr, bit)
		return
	}

	space, addr, bit, ok := cfg.gpeStatusBit(ev.gpe)
	if !ok {
		missColor.Printf("  GPE %#x is not backed by a GPE block\n", ev.gpe)
		return
	}
	sim.Assert(space, addr, bit)
}
