// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package rootstate implements the buildroot controller's state machine.
// Transitions are free-form labels emitted to a state sink (spec.md §9's
// open question resolves the alphabet from observed call sites); the named
// constants below are that enumerated alphabet.
package rootstate

const (
	Unstarted    = "unstarted"
	InitPlugins  = "init plugins"
	Start        = "start"
	Clean        = "clean"
	LockBuildroot = "lock buildroot"
	Init         = "init"
	RunningYum   = "running yum"
	Setup        = "setup"
	Build        = "build"
)

// Sink receives a formatted informational record every time the state
// changes.
type Sink interface {
	Logf(format string, a ...interface{})
}

// Machine tracks the controller's current state and logs every
// transition.
type Machine struct {
	sink    Sink
	current string
}

// NewMachine returns a Machine in the Unstarted state, logging to sink.
func NewMachine(sink Sink) *Machine {
	return &Machine{sink: sink, current: Unstarted}
}

// Set transitions to newState and logs the change. It returns the new
// state for convenient chaining at call sites that also want the value.
func (m *Machine) Set(newState string) string {
	m.current = newState
	if m.sink != nil {
		m.sink.Logf("State Changed: %s", newState)
	}
	return m.current
}

// Current returns the state without changing it, equivalent to calling
// the original's state() with no argument.
func (m *Machine) Current() string {
	return m.current
}
