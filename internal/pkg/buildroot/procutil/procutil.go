// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package procutil is the process-execution collaborator the buildroot
// controller's higher-level packages depend on. spec.md §1 treats
// "low-level process execution and output capture" as an external
// collaborator; this package is that collaborator's concrete
// implementation, grounded on Apptainer's own subprocess-invocation style
// in internal/pkg/build/sources/conveyorPacker_yum.go (exec.CommandContext,
// explicit argv vectors rather than shell strings, Stdout/Stderr wiring)
// and on mock.util.do's personality/chroot/timeout/logger parameters.
package procutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// Options configures one subprocess invocation.
type Options struct {
	// Chroot, if non-empty, is passed as the subprocess's root directory
	// via SysProcAttr.Chroot; Dir should generally be set to "/" in that
	// case since paths are then relative to the chroot.
	Chroot string
	// Dir is the working directory inside the (possibly chrooted)
	// process.
	Dir string
	// Personality applies setarch-style architecture emulation, e.g.
	// "linux32", when non-empty.
	Personality string
	// Uid/Gid, when UseCredential is true, drop the child process to
	// this identity via SysProcAttr.Credential — used for the
	// permanently-dropped build-user invocations spec.md §4.8 step 7, 9
	// and 13 require.
	UseCredential bool
	Uid           uint32
	Gid           uint32
	// Env is appended to the subprocess's environment.
	Env []string
	// LogWriter, if non-nil, additionally receives a copy of the
	// subprocess's combined output as it streams, for the build log.
	LogWriter io.Writer
	// Timeout, if non-zero, bounds the subprocess's run time: Run derives
	// a child context with this timeout from ctx.
	Timeout time.Duration
}

// Result describes the outcome of a Run call.
type Result struct {
	Output   string
	ExitCode int
}

// Run executes name with args under opts, returning a *Result. A
// Timeout in opts (if non-zero and ctx has no earlier deadline) is
// applied by deriving a child context internally, matching the two
// rpmbuild invocations in spec.md §4.8 that must enforce a per-call
// timeout.
func Run(ctx context.Context, name string, args []string, opts Options) (*Result, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	bin := name
	argv := append([]string{}, args...)
	if opts.Personality != "" {
		argv = append([]string{opts.Personality, name}, args...)
		bin = "setarch"
	}

	cmd := exec.CommandContext(ctx, bin, argv...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	attr := &syscall.SysProcAttr{}
	if opts.Chroot != "" {
		attr.Chroot = opts.Chroot
	}
	if opts.UseCredential {
		attr.Credential = &syscall.Credential{Uid: opts.Uid, Gid: opts.Gid}
	}
	cmd.SysProcAttr = attr

	var buf bytes.Buffer
	var out io.Writer = &buf
	if opts.LogWriter != nil {
		out = io.MultiWriter(&buf, opts.LogWriter)
	}
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()

	result := &Result{Output: buf.String()}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctx.Err() == context.DeadlineExceeded {
		return result, errors.Errorf("command %q timed out after %s", name, opts.Timeout)
	}
	if err != nil {
		return result, errors.Wrapf(err, "command %q failed (exit %s)", name, strconv.Itoa(result.ExitCode))
	}
	return result, nil
}

// Chrootf is a convenience for building a single, formatted argv[0]
// message used in error wrapping.
func Chrootf(rootdir, format string, a ...interface{}) string {
	return fmt.Sprintf("%s (chroot %s)", fmt.Sprintf(format, a...), rootdir)
}
