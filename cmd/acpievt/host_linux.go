//go:build linux

package main

import (
	"acpievt/device/acpi/hw"
	"acpievt/device/acpi/osl"
	"acpievt/kernel/kfmt"
	"os"
)

// readHost prints the PM1 and GPE registers of the host chipset at the
// locations given by cfg. Registers are only read; no event is serviced.
func readHost(cfg *platformConfig) error {
	l, err := osl.OpenLinux(&kfmt.Logger{Module: "host", Sink: os.Stderr, Level: kfmt.LevelWarn})
	if err != nil {
		return err
	}
	defer l.Close()

	regs := hw.NewRegisters(l, cfg.fadt())
	for _, id := range []hw.RegisterID{hw.PM1Status, hw.PM1Enable, hw.PM1Control, hw.PMTimer} {
		val, err := regs.ReadRegister(id)
		if err != nil {
			errColor.Printf("%-8s %s\n", id, err.Message)
			continue
		}
		traceColor.Printf("%-8s 0x%08x\n", id, val)
	}

	for blockIndex, blk := range []blockConfig{cfg.GPE0, cfg.GPE1} {
		ga := blk.generic()
		count := uint64(blk.Length / 2)
		for i := uint64(0); i < count; i++ {
			status, err := regs.ReadRaw(&ga, 8, i)
			if err != nil {
				return err
			}

			enable, err := regs.ReadRaw(&ga, 8, count+i)
			if err != nil {
				return err
			}

			c := traceColor
			if status&enable != 0 {
				c = handledColor
			}
			c.Printf("GPE%d[%d] STS 0x%02x EN 0x%02x\n", blockIndex, i, status, enable)
		}
	}

	return nil
}
