// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package devnodes populates a chroot's dev/ tree with the fixed set of
// character device nodes and symlinks a buildroot needs, grounded on
// Apptainer's own makePseudoDevices (internal/pkg/build/sources,
// YumConveyor) which builds the identical (major, minor, mode) table with
// syscall.Mknod, extended here with the tty/console/ptmx nodes and the
// best-effort SELinux context copy the original mock tool performs via
// chcon.
package devnodes

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

type node struct {
	path  string
	mode  uint32
	major uint32
	minor uint32
}

// table is deliberately unexported and exhaustive: spec.md §4.5 and §8
// both require the populator to create exactly this set of nodes and no
// others.
var table = []node{
	{"dev/null", unix.S_IFCHR | 0o666, 1, 3},
	{"dev/zero", unix.S_IFCHR | 0o666, 1, 5},
	{"dev/random", unix.S_IFCHR | 0o666, 1, 8},
	{"dev/urandom", unix.S_IFCHR | 0o444, 1, 9},
	{"dev/tty", unix.S_IFCHR | 0o666, 5, 0},
	{"dev/console", unix.S_IFCHR | 0o600, 5, 1},
	{"dev/ptmx", unix.S_IFCHR | 0o666, 5, 2},
}

var stdFDSymlinks = map[string]string{
	"dev/stdin":  "/proc/self/fd/0",
	"dev/stdout": "/proc/self/fd/1",
	"dev/stderr": "/proc/self/fd/2",
}

// ContextCopier applies a best-effort security-context copy from a host
// reference path to a chroot path, mirroring the original's
// "chcon --reference=/<path> <chroot-path>" call. Failures are always
// ignored by Populate so the populator works on hosts without mandatory
// access control configured.
type ContextCopier func(hostRef, chrootPath string) error

// Populate resets rootdir/dev, recreates dev/pts, and creates the fixed
// device-node table plus standard-stream symlinks, under umask 0. The
// previous umask is always restored, on every exit path.
func Populate(rootdir string, copyContext ContextCopier) error {
	prevMask := unix.Umask(0)
	defer unix.Umask(prevMask)

	devPath := filepath.Join(rootdir, "dev")
	if err := os.RemoveAll(devPath); err != nil {
		return fmt.Errorf("removing %s: %w", devPath, err)
	}
	if err := os.MkdirAll(filepath.Join(devPath, "pts"), 0o755); err != nil {
		return fmt.Errorf("creating %s/pts: %w", devPath, err)
	}

	for _, n := range table {
		path := filepath.Join(rootdir, n.path)
		dev := unix.Mkdev(n.major, n.minor)
		if err := unix.Mknod(path, n.mode, int(dev)); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		if copyContext != nil {
			_ = copyContext("/"+n.path, path)
		}
	}

	for link, target := range stdFDSymlinks {
		path := filepath.Join(rootdir, link)
		_ = os.Remove(path)
		if err := os.Symlink(target, path); err != nil {
			return fmt.Errorf("symlinking %s: %w", path, err)
		}
	}

	return nil
}

// Nodes returns the fixed device table, for tests that need to assert
// Populate produced exactly this set and no other.
func Nodes() []string {
	names := make([]string, len(table))
	for i, n := range table {
		names[i] = n.path
	}
	return names
}
