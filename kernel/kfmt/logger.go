package kfmt

import (
	"bytes"
	"fmt"
	"io"
)

// Level defines the severity of a log entry.
type Level uint8

// The list of supported log levels.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

var levelNames = [...]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
}

// String implements fmt.Stringer for Level.
func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "none"
}

// Logger emits log entries tagged with the name of the module that produced
// them. Entries below Level are dropped. Each line of an entry is prefixed
// with "[module] level: ".
//
// A nil *Logger is valid and discards everything.
type Logger struct {
	// Module is injected at the beginning of each line.
	Module string

	// Sink receives the formatted output. If nil, output is routed via
	// Printf to the global output sink.
	Sink io.Writer

	// Level is the minimum severity that gets logged.
	Level Level
}

// Debugf logs a debug-level message.
func (l *Logger) Debugf(format string, args ...interface{}) { l.logf(LevelDebug, format, args...) }

// Infof logs an info-level message.
func (l *Logger) Infof(format string, args ...interface{}) { l.logf(LevelInfo, format, args...) }

// Warnf logs a warning.
func (l *Logger) Warnf(format string, args ...interface{}) { l.logf(LevelWarn, format, args...) }

// Errorf logs an error.
func (l *Logger) Errorf(format string, args ...interface{}) { l.logf(LevelError, format, args...) }

// Enabled returns true if entries with the given level would be emitted.
func (l *Logger) Enabled(lvl Level) bool {
	return l != nil && lvl >= l.Level && lvl < LevelNone
}

// Writer returns an io.Writer that logs every line written to it using the
// supplied level. It is used to route multi-line dumps through the logger.
func (l *Logger) Writer(lvl Level) io.Writer {
	return levelWriter{l: l, lvl: lvl}
}

func (l *Logger) logf(lvl Level, format string, args ...interface{}) {
	if !l.Enabled(lvl) {
		return
	}

	l.emit(lvl, []byte(fmt.Sprintf(format, args...)))
}

func (l *Logger) emit(lvl Level, msg []byte) {
	var buf bytes.Buffer
	for _, line := range bytes.Split(bytes.TrimRight(msg, "\n"), []byte{'\n'}) {
		if l.Module != "" {
			buf.WriteByte('[')
			buf.WriteString(l.Module)
			buf.WriteString("] ")
		}
		buf.WriteString(lvl.String())
		buf.WriteString(": ")
		buf.Write(line)
		buf.WriteByte('\n')
	}

	if l.Sink != nil {
		l.Sink.Write(buf.Bytes())
		return
	}

	Printf("%s", buf.Bytes())
}

type levelWriter struct {
	l   *Logger
	lvl Level
}

func (w levelWriter) Write(p []byte) (int, error) {
	if w.l.Enabled(w.lvl) && len(p) != 0 {
		w.l.emit(w.lvl, p)
	}
	return len(p), nil
}
