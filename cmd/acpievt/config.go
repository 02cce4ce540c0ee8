package main

import (
	"acpievt/device/acpi"
	"acpievt/device/acpi/event"
	"acpievt/device/acpi/hw"
	"acpievt/device/acpi/namespace"
	"acpievt/device/acpi/osl"
	"acpievt/device/acpi/table"
	"acpievt/kernel"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unsafe"
)

// blockConfig describes a register block.
type blockConfig struct {
	// Space is either "io" (the default) or "memory".
	Space   string `json:"space"`
	Address uint64 `json:"address"`
	Length  uint8  `json:"length"`
}

// methodConfig describes a GPE control method.
type methodConfig struct {
	Name string `json:"name"`

	// Fail makes the method report an error when evaluated.
	Fail bool `json:"fail"`
}

// platformConfig describes the simulated chipset.
type platformConfig struct {
	PM1aEvent   blockConfig    `json:"pm1a_event"`
	PM1bEvent   blockConfig    `json:"pm1b_event"`
	PM1aControl blockConfig    `json:"pm1a_control"`
	PM1bControl blockConfig    `json:"pm1b_control"`
	PMTimer     blockConfig    `json:"pm_timer"`
	GPE0        blockConfig    `json:"gpe0"`
	GPE1        blockConfig    `json:"gpe1"`
	GPE1Base    uint8          `json:"gpe1_base"`
	MaxGPE      uint32         `json:"max_gpe"`
	Flags       uint32         `json:"flags"`
	Methods     []methodConfig `json:"methods"`
}

func defaultConfig() *platformConfig {
	return &platformConfig{
		PM1aEvent:   blockConfig{Address: 0x400, Length: 4},
		PM1aControl: blockConfig{Address: 0x404, Length: 2},
		PMTimer:     blockConfig{Address: 0x408, Length: 4},
		GPE0:        blockConfig{Address: 0x420, Length: 4},
		GPE1:        blockConfig{Address: 0x430, Length: 2},
		GPE1Base:    0x20,
		Methods: []methodConfig{
			{Name: "_L02"},
			{Name: "_E21"},
		},
	}
}

func loadConfig(path string) (*platformConfig, error) {
	if path == "" {
		return defaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &platformConfig{}
	if err = json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (b blockConfig) space() table.AddressSpace {
	if b.Space == "memory" {
		return table.AddressSpaceSysMemory
	}
	return table.AddressSpaceSysIO
}

// generic returns the 64-bit generic address of the block.
func (b blockConfig) generic() table.GenericAddress {
	if b.Address == 0 {
		return table.GenericAddress{}
	}
	return table.GenericAddress{Space: b.space(), BitWidth: b.Length * 8, Address: b.Address}
}

// fadt builds a sealed revision 2 FADT describing the configured blocks.
func (cfg *platformConfig) fadt() *table.FADT {
	fadt := &table.FADT{
		SDTHeader: table.SDTHeader{
			Signature:  [4]byte{'F', 'A', 'C', 'P'},
			Length:     uint32(unsafe.Sizeof(table.FADT{})),
			Revision:   2,
			OEMID:      [6]byte{'A', 'C', 'P', 'I', 'S', 'M'},
			OEMTableID: [8]byte{'A', 'C', 'P', 'I', 'E', 'V', 'T', ' '},
		},
		PM1EventLength:   cfg.PM1aEvent.Length,
		PM1ControlLength: cfg.PM1aControl.Length,
		PMTimerLength:    cfg.PMTimer.Length,
		GPE0Length:       cfg.GPE0.Length,
		GPE1Length:       cfg.GPE1.Length,
		GPE1Base:         cfg.GPE1Base,
		Flags:            cfg.Flags,
	}

	fadt.Ext.PM1aEventBlock = cfg.PM1aEvent.generic()
	fadt.Ext.PM1bEventBlock = cfg.PM1bEvent.generic()
	fadt.Ext.PM1aControlBlock = cfg.PM1aControl.generic()
	fadt.Ext.PM1bControlBlock = cfg.PM1bControl.generic()
	fadt.Ext.PMTimerBlock = cfg.PMTimer.generic()
	fadt.Ext.GPE0Block = cfg.GPE0.generic()
	fadt.Ext.GPE1Block = cfg.GPE1.generic()

	table.Seal(&fadt.SDTHeader)
	return fadt
}

// sim builds a simulated chipset whose status registers are
// write-1-to-clear.
func (cfg *platformConfig) sim() *osl.Sim {
	sim := osl.NewSim()
	for _, blk := range []blockConfig{cfg.PM1aEvent, cfg.PM1bEvent} {
		if blk.Address != 0 {
			sim.MarkW1CRange(blk.space(), blk.Address, int(blk.Length/2))
		}
	}

	for _, blk := range []blockConfig{cfg.GPE0, cfg.GPE1} {
		if blk.Address != 0 {
			sim.MarkW1CRange(blk.space(), blk.Address, int(blk.Length/2))
		}
	}
	return sim
}

// gpeStatusBit returns the location of the status bit for GPE n.
func (cfg *platformConfig) gpeStatusBit(n uint32) (table.AddressSpace, uint64, uint8, bool) {
	blocks := []struct {
		blk  blockConfig
		base uint32
	}{
		{cfg.GPE0, 0},
		{cfg.GPE1, uint32(cfg.GPE1Base)},
	}

	for _, b := range blocks {
		count := uint32(b.blk.Length / 2)
		if b.blk.Address == 0 || n < b.base || n >= b.base+count*8 {
			continue
		}

		rel := n - b.base
		return b.blk.space(), b.blk.Address + uint64(rel/8), uint8(rel % 8), true
	}

	return 0, 0, 0, false
}

// fixedStatusBit returns the location of the PM1a status bit for ev.
func (cfg *platformConfig) fixedStatusBit(ev event.FixedEvent) (table.AddressSpace, uint64, uint8) {
	statusID, _ := ev.Bits()
	bit, _ := hw.Bit(statusID)
	return cfg.PM1aEvent.space(), cfg.PM1aEvent.Address + uint64(bit.Position/8), bit.Position % 8
}

// simEvent is an event to be raised on the simulated chipset.
type simEvent struct {
	fixed   bool
	fixedEv event.FixedEvent
	gpe     uint32
}

func (ev simEvent) String() string {
	if ev.fixed {
		return "fixed:" + ev.fixedEv.String()
	}
	return fmt.Sprintf("gpe:%#x", ev.gpe)
}

// parseEvents parses a comma separated list of events such as
// "gpe:3,fixed:power_button,gpe:0x21". Fixed event names may omit the
// "_button" suffix.
func parseEvents(spec string) ([]simEvent, error) {
	var events []simEvent

	for _, item := range strings.Split(spec, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		kind, arg, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("malformed event %q", item)
		}

		switch kind {
		case "gpe":
			n, err := strconv.ParseUint(arg, 0, 32)
			if err != nil {
				return nil, fmt.Errorf("malformed GPE number in %q", item)
			}
			events = append(events, simEvent{gpe: uint32(n)})
		case "fixed":
			ev, ok := event.ParseFixedEvent(arg)
			if !ok {
				ev, ok = event.ParseFixedEvent(arg + "_button")
			}
			if !ok {
				return nil, fmt.Errorf("unknown fixed event in %q", item)
			}
			events = append(events, simEvent{fixed: true, fixedEv: ev})
		default:
			return nil, fmt.Errorf("unknown event kind in %q", item)
		}
	}

	return events, nil
}

// definitionBlock returns a loader that declares the configured GPE methods
// under \_GPE. Each method traces its evaluation.
func (cfg *platformConfig) definitionBlock() acpi.LoadFn {
	return func(ctx context.Context, ns *namespace.Namespace) *kernel.Error {
		for _, m := range cfg.Methods {
			m := m
			if _, err := ns.Add(ctx, `\_GPE`, m.Name, namespace.TypeMethod, func(context.Context) *kernel.Error {
				methodColor.Printf("  method \\_GPE.%s evaluated\n", m.Name)
				if m.Fail {
					return errMethodFailed
				}
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	}
}
