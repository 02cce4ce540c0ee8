package main

import (
	"acpievt/device/acpi/event"
	"acpievt/device/acpi/table"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unsafe"

	"github.com/fatih/color"
)

func TestParseEvents(t *testing.T) {
	events, err := parseEvents("gpe:3, fixed:power,gpe:0x21,fixed:rtc,")
	if err != nil {
		t.Fatal(err)
	}

	exp := []simEvent{
		{gpe: 3},
		{fixed: true, fixedEv: event.FixedPowerButton},
		{gpe: 0x21},
		{fixed: true, fixedEv: event.FixedRTC},
	}

	if len(events) != len(exp) {
		t.Fatalf("expected %d events; got %d", len(exp), len(events))
	}

	for i := range exp {
		if events[i] != exp[i] {
			t.Errorf("[event %d] expected %s; got %s", i, exp[i], events[i])
		}
	}

	for _, spec := range []string{"gpe", "gpe:xyz", "fixed:lid", "irq:3"} {
		if _, err := parseEvents(spec); err == nil {
			t.Errorf("[%q] expected an error", spec)
		}
	}
}

func TestGPEStatusBit(t *testing.T) {
	cfg := defaultConfig()

	specs := []struct {
		gpe     uint32
		expAddr uint64
		expBit  uint8
		expOK   bool
	}{
		{0x00, 0x420, 0, true},
		{0x0b, 0x421, 3, true},
		{0x10, 0, 0, false},
		{0x21, 0x430, 1, true},
		{0x28, 0, 0, false},
	}

	for _, spec := range specs {
		space, addr, bit, ok := cfg.gpeStatusBit(spec.gpe)
		if ok != spec.expOK || addr != spec.expAddr || bit != spec.expBit {
			t.Errorf("[GPE %#x] expected (%#x, %d, %t); got (%#x, %d, %t)", spec.gpe, spec.expAddr, spec.expBit, spec.expOK, addr, bit, ok)
		}

		if ok && space != table.AddressSpaceSysIO {
			t.Errorf("[GPE %#x] expected SystemIO; got %s", spec.gpe, space)
		}
	}

	space, addr, bit := cfg.fixedStatusBit(event.FixedPowerButton)
	if space != table.AddressSpaceSysIO || addr != 0x401 || bit != 0 {
		t.Errorf("unexpected power button status location: %s %#x %d", space, addr, bit)
	}
}

func TestConfigFADT(t *testing.T) {
	fadt := defaultConfig().fadt()

	var sum uint8
	base := unsafe.Pointer(fadt)
	for i := uintptr(0); i < uintptr(fadt.Length); i++ {
		sum += *(*uint8)(unsafe.Add(base, i))
	}

	if sum != 0 {
		t.Fatalf("expected sealed FADT checksum to be valid; sum is %#x", sum)
	}

	gpe0 := fadt.Block(fadt.Ext.GPE0Block, fadt.GPE0Block, fadt.GPE0Length)
	if gpe0.Address != 0x420 || gpe0.Space != table.AddressSpaceSysIO {
		t.Fatalf("unexpected GPE0 block: %+v", gpe0)
	}

	if pm1b := fadt.Block(fadt.Ext.PM1bEventBlock, fadt.PM1bEventBlock, fadt.PM1EventLength); pm1b.Present() {
		t.Fatalf("expected PM1b event block to be absent; got %+v", pm1b)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platform.json")
	data := `{
		"pm1a_event": {"address": 1024, "length": 4},
		"gpe0": {"space": "memory", "address": 4275306496, "length": 8},
		"methods": [{"name": "_L07", "fail": true}]
	}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.GPE0.space() != table.AddressSpaceSysMemory || cfg.GPE0.Address != 0xfed40000 || cfg.GPE0.Length != 8 {
		t.Fatalf("unexpected GPE0 config: %+v", cfg.GPE0)
	}

	if len(cfg.Methods) != 1 || cfg.Methods[0].Name != "_L07" || !cfg.Methods[0].Fail {
		t.Fatalf("unexpected methods: %+v", cfg.Methods)
	}

	if _, err = loadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}

	if err = os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err = loadConfig(path); err == nil {
		t.Fatal("expected an error for a malformed config file")
	}

	if cfg, err = loadConfig(""); err != nil || len(cfg.Methods) != 2 {
		t.Fatalf("expected the built-in config; got %+v, %v", cfg, err)
	}
}

func TestSimulate(t *testing.T) {
	color.NoColor = true

	cfg := defaultConfig()
	cfg.Methods = append(cfg.Methods, methodConfig{Name: "_E03", Fail: true})

	events, err := parseEvents("fixed:power,gpe:2,gpe:3,gpe:0x21,gpe:0x10,fixed:sleep")
	if err != nil {
		t.Fatal(err)
	}

	if err = simulate(cfg, events, 0, true); err != nil {
		t.Fatal(err)
	}
}

func TestSimulateGPECeiling(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	defer func(w io.Writer) { probeOutput = w }(probeOutput)
	probeOutput = &buf

	specs := []struct {
		maxGPE uint32
		expErr bool
	}{
		// GPE1 covers GPEs 0x20-0x27
		{0x10, true},
		{0x26, true},
		{0x27, false},
		{0, false},
	}

	for _, spec := range specs {
		buf.Reset()

		cfg := defaultConfig()
		cfg.MaxGPE = spec.maxGPE

		err := simulate(cfg, nil, 0, false)
		if gotErr := err != nil; gotErr != spec.expErr {
			t.Errorf("[max GPE %#x] expected error %t; got %v\n%s", spec.maxGPE, spec.expErr, err, buf.String())
			continue
		}

		if spec.expErr && !strings.Contains(buf.String(), "init failed: "+event.ErrConfiguration.Message) {
			t.Errorf("[max GPE %#x] expected a configuration error to be logged; got:\n%s", spec.maxGPE, buf.String())
		}
	}
}
