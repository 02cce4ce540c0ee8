package device

import (
	"acpievt/device/acpi/osl"
	"acpievt/device/acpi/table"
	"acpievt/kernel"
	"bytes"
	"io"
	"sort"
	"strings"
	"testing"
)

func TestDriverInfoListSorting(t *testing.T) {
	defer func() {
		registeredDrivers = nil
	}()

	origlist := []*DriverInfo{
		{Order: DetectOrderACPI},
		{Order: DetectOrderLast},
		{Order: DetectOrderBeforeACPI},
		{Order: DetectOrderEarly},
	}

	for _, drv := range origlist {
		RegisterDriver(drv)
	}

	registeredList := DriverList()
	if exp, got := len(origlist), len(registeredList); got != exp {
		t.Fatalf("expected DriverList() to return %d entries; got %d", exp, got)
	}

	sort.Sort(registeredList)
	expOrder := []int{3, 2, 0, 1}
	for i, exp := range expOrder {
		if registeredList[i] != origlist[exp] {
			t.Errorf("expected sorted entry %d to be %v; got %v", i, origlist[exp], registeredList[i])
		}
	}
}

type testDriver struct {
	name    string
	initErr *kernel.Error
	inited  bool
}

func (d *testDriver) DriverName() string                    { return d.name }
func (d *testDriver) DriverVersion() (uint16, uint16, uint16) { return 1, 2, 3 }
func (d *testDriver) DriverInit(w io.Writer) *kernel.Error {
	d.inited = true
	io.WriteString(w, "hello from "+d.name+"\n")
	return d.initErr
}

func TestProbe(t *testing.T) {
	var (
		res      = table.Map{}
		sim      = osl.NewSim()
		good     = &testDriver{name: "good"}
		failing  = &testDriver{name: "failing", initErr: &kernel.Error{Module: "test", Message: "init failed"}}
		buf      bytes.Buffer
		probeRes table.Resolver
		probeP   osl.Platform
	)

	list := DriverInfoList{
		{Probe: func(r table.Resolver, p osl.Platform) Driver {
			probeRes, probeP = r, p
			return good
		}},
		{Probe: func(table.Resolver, osl.Platform) Driver { return nil }},
		{Probe: func(table.Resolver, osl.Platform) Driver { return failing }},
	}

	active := Probe(list, res, sim, &buf)
	if len(active) != 1 || active[0] != good {
		t.Fatalf("expected only the good driver to be active; got %v", active)
	}

	if probeP != osl.Platform(sim) || probeRes == nil {
		t.Fatal("expected probe function to receive the resolver and platform")
	}

	if !good.inited || !failing.inited {
		t.Fatal("expected DriverInit to be invoked for every probed driver")
	}

	for _, exp := range []string{
		"[hal] info: hello from good",
		"[hal] info: good(1.2.3): initialized",
		"[hal] error: failing(1.2.3): init failed: init failed",
	} {
		if !strings.Contains(buf.String(), exp) {
			t.Errorf("expected output to contain %q; got:\n%s", exp, buf.String())
		}
	}
}
