package kfmt

import (
	"bytes"
	"testing"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{Module: "acpi", Sink: &buf, Level: LevelInfo}

	l.Debugf("dropped %d", 1)
	l.Infof("gpe %d enabled", 3)
	l.Errorf("line one\nline two\n")

	exp := "[acpi] info: gpe 3 enabled\n" +
		"[acpi] error: line one\n" +
		"[acpi] error: line two\n"

	if got := buf.String(); got != exp {
		t.Fatalf("expected output:\n%q\ngot:\n%q", exp, got)
	}
}

func TestLoggerWriter(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{Sink: &buf, Level: LevelDebug}

	w := l.Writer(LevelWarn)
	if n, err := w.Write([]byte("a\nb\n")); err != nil || n != 4 {
		t.Fatalf("expected (4, nil); got (%d, %v)", n, err)
	}

	if exp, got := "warn: a\nwarn: b\n", buf.String(); got != exp {
		t.Fatalf("expected %q; got %q", exp, got)
	}
}

func TestNilLogger(t *testing.T) {
	var l *Logger

	if l.Enabled(LevelError) {
		t.Fatal("expected nil logger to be disabled")
	}

	// Must not panic
	l.Errorf("ignored")
	l.Writer(LevelError).Write([]byte("ignored"))
}

func TestLevelString(t *testing.T) {
	specs := []struct {
		lvl Level
		exp string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{LevelNone, "none"},
	}

	for _, spec := range specs {
		if got := spec.lvl.String(); got != spec.exp {
			t.Errorf("expected level %d to stringify as %q; got %q", spec.lvl, spec.exp, got)
		}
	}
}
