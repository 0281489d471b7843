// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package rootlock implements the buildroot controller's exclusive
// advisory lock, grounded on the teacher's pkg/util/fs/lock package
// (open + flock(LOCK_EX|LOCK_NB) on a file descriptor). The lock file
// itself is never deleted by the controller: concurrent openers rely on
// inode identity, exactly as spec.md §4.3 requires.
package rootlock

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/berrors"
)

const lockFileName = "buildroot.lock"

// Handle holds an acquired (or attempted) lock on a buildroot's base
// directory.
type Handle struct {
	basedir string
	fd      int
	held    bool
}

// TryLock opens basedir/buildroot.lock in append-create mode and attempts
// a non-blocking exclusive advisory lock on its descriptor.
//
// Contention returns a *berrors.BuildRootLocked error. Inability to open
// the file (e.g. basedir does not exist yet, as happens during an early
// clean()) is a soft failure: TryLock returns a nil error and an unheld
// Handle, which callers tolerate.
func TryLock(basedir string) (*Handle, error) {
	path := filepath.Join(basedir, lockFileName)

	fd, err := unix.Open(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return &Handle{basedir: basedir}, nil
	}

	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if err == unix.EWOULDBLOCK || err == unix.EAGAIN {
			return nil, &berrors.BuildRootLocked{BaseDir: basedir}
		}
		return &Handle{basedir: basedir}, nil
	}

	return &Handle{basedir: basedir, fd: fd, held: true}, nil
}

// Held reports whether this handle actually holds the lock.
func (h *Handle) Held() bool {
	return h != nil && h.held
}

// Release drops the lock, if held. It is safe to call on a nil or unheld
// handle, and safe to call more than once.
func (h *Handle) Release() error {
	if h == nil || !h.held {
		return nil
	}
	err := unix.Flock(h.fd, unix.LOCK_UN)
	closeErr := unix.Close(h.fd)
	h.held = false
	if err != nil {
		return err
	}
	return closeErr
}
