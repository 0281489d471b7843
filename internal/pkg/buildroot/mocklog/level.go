// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package mocklog

// messageLevel mirrors the ordering used by the teacher's own message
// logger: negative values (FatalLevel through LogLevel) are quieter than
// InfoLevel, positive values are progressively more verbose than InfoLevel.
type messageLevel int

const (
	FatalLevel   messageLevel = -4
	ErrorLevel   messageLevel = -3
	WarnLevel    messageLevel = -2
	LogLevel     messageLevel = -1
	InfoLevel    messageLevel = 0
	VerboseLevel messageLevel = 1
	Verbose2Level messageLevel = 2
	Verbose3Level messageLevel = 3
	DebugLevel   messageLevel = 4
)

func (l messageLevel) String() string {
	switch l {
	case FatalLevel:
		return "FATAL"
	case ErrorLevel:
		return "ERROR"
	case WarnLevel:
		return "WARNING"
	case LogLevel:
		return "LOG"
	case InfoLevel:
		return "INFO"
	case VerboseLevel, Verbose2Level, Verbose3Level:
		return "VERBOSE"
	case DebugLevel:
		return "DEBUG"
	default:
		return "LOG"
	}
}
