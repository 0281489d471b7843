// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package mocklog implements the ambient logger used throughout the
// buildroot controller. Messages are written to a package-level writer at
// or below the configured verbosity, in the same prefixed-line shape the
// teacher code base uses for its own console logger. In addition to the
// console writer, the controller's state/root/build phases log through
// named Sinks (NewSink, Sink.Attach) whose Logf writes each record to a
// result-directory log file and also echoes it to the console (mirroring
// mock's "logs go everywhere" behavior). Records logged with the
// package-level functions reach the console only.
package mocklog

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

var messageColors = map[messageLevel]string{
	FatalLevel: "\x1b[31m",
	ErrorLevel: "\x1b[31m",
	WarnLevel:  "\x1b[33m",
	InfoLevel:  "\x1b[34m",
}

var (
	mu          sync.Mutex
	loggerLevel = InfoLevel
	logWriter   = io.Writer(os.Stderr)
)

func init() {
	if l, err := strconv.Atoi(os.Getenv("MOCKBUILD_MESSAGELEVEL")); err == nil {
		loggerLevel = messageLevel(l)
	}
}

func prefix(msgLevel messageLevel, color bool) string {
	reset := "\x1b[0m"
	c := messageColors[msgLevel]
	if !color {
		c, reset = "", ""
	}
	return fmt.Sprintf("%s%-8s%s ", c, msgLevel.String()+":", reset)
}

func writef(msgLevel messageLevel, format string, a ...interface{}) {
	mu.Lock()
	level, w := loggerLevel, logWriter
	mu.Unlock()

	if level < msgLevel {
		return
	}

	message := strings.TrimRight(fmt.Sprintf(format, a...), "\n")
	fmt.Fprintf(w, "%s%s\n", prefix(msgLevel, true), message)
}

// Fatalf logs at FatalLevel and terminates the process.
func Fatalf(format string, a ...interface{}) {
	writef(FatalLevel, format, a...)
	os.Exit(255)
}

// Errorf logs at ErrorLevel. It does not terminate the process; callers
// still propagate the underlying error to their caller.
func Errorf(format string, a ...interface{}) { writef(ErrorLevel, format, a...) }

// Warningf logs at WarnLevel.
func Warningf(format string, a ...interface{}) { writef(WarnLevel, format, a...) }

// Infof logs at InfoLevel. This is the level used for state transitions.
func Infof(format string, a ...interface{}) { writef(InfoLevel, format, a...) }

// Verbosef logs at VerboseLevel.
func Verbosef(format string, a ...interface{}) { writef(VerboseLevel, format, a...) }

// Debugf logs at DebugLevel.
func Debugf(format string, a ...interface{}) { writef(DebugLevel, format, a...) }

// SetLevel sets the minimum verbosity written to the console sink.
func SetLevel(l int) {
	mu.Lock()
	defer mu.Unlock()
	loggerLevel = messageLevel(l)
}

// GetLevel returns the current verbosity level.
func GetLevel() int {
	mu.Lock()
	defer mu.Unlock()
	return int(loggerLevel)
}

// SetWriter replaces the console writer, returning the previous one so
// tests can restore it.
func SetWriter(w io.Writer) io.Writer {
	mu.Lock()
	defer mu.Unlock()
	old := logWriter
	if w != nil {
		logWriter = w
	}
	return old
}

// Sink is a named, append-mode destination that Sink.Logf writes every
// record to in addition to the console, modeling the three logging.Logger
// instances ("mock", "mock.Root.build", "mock.Root.state") in the
// original implementation.
type Sink struct {
	mu     sync.Mutex
	name   string
	fmtStr string
	file   io.WriteCloser
}

// NewSink constructs a named sink; fmtStr is retained for reporting only,
// since Go's structured call sites don't need the original's printf-style
// format string to produce a line — the line is already fully formed by
// writef's caller.
func NewSink(name, fmtStr string) *Sink {
	return &Sink{name: name, fmtStr: fmtStr}
}

// Attach opens path in append-create mode and binds it as the sink's
// backing file. Calling Attach twice on an already-attached sink is a
// no-op, matching resetLogging's required idempotence.
func (s *Sink) Attach(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	s.file = f
	return nil
}

// Attached reports whether Attach has already succeeded once.
func (s *Sink) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file != nil
}

// Logf writes a formatted, timestamp-free record to the sink's file, if
// attached, in addition to echoing it to the console at InfoLevel.
func (s *Sink) Logf(format string, a ...interface{}) {
	msg := fmt.Sprintf(format, a...)
	Infof("%s", msg)

	s.mu.Lock()
	f := s.file
	s.mu.Unlock()
	if f != nil {
		fmt.Fprintf(f, "%s\n", msg)
	}
}

// Close releases the sink's underlying file handle, if any.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
