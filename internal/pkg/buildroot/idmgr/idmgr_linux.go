// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package idmgr mediates the three identities a buildroot controller moves
// between: the real administrator (normally root), a temporarily-dropped
// build identity that can still be restored to administrator, and a
// permanently-dropped build identity used to spawn subprocesses that must
// be unable to regain privilege. It is grounded on the teacher's own
// internal/pkg/util/priv package (Setresuid-based thread privilege
// escalate/drop), generalized to the two-identity, nestable scopes the
// buildroot lifecycle requires.
package idmgr

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"
)

// Manager mediates privilege transitions for one controller. All methods
// lock the OS thread for the duration of a dropped scope: Go's uid/gid are
// process-wide under Linux's NPTL threading model only when every thread
// performs the same call, so the manager coordinates through a mutex and
// keeps the calling goroutine pinned via runtime.LockOSThread while a scope
// is active, matching the teacher's own pattern in priv_linux.go.
type Manager struct {
	mu       sync.Mutex
	adminUID int
	adminGID int
	buildUID int
	buildGID int
	depth    int // nesting depth of the currently active dropped scope
}

// New returns a Manager that treats the process's real uid/gid as the
// administrator identity and (buildUID, buildGID) as the unprivileged
// build identity.
func New(buildUID, buildGID int) *Manager {
	return &Manager{
		adminUID: unix.Getuid(),
		adminGID: unix.Getgid(),
		buildUID: buildUID,
		buildGID: buildGID,
	}
}

// DropPrivsTemp temporarily assumes the unprivileged build identity via
// Setresuid/Setresgid, leaving the saved-uid set to the administrator so
// RestorePrivs can return to it. Every exit path from the caller's scope
// must call RestorePrivs, typically via defer.
func (m *Manager) DropPrivsTemp() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	runtime.LockOSThread()
	m.depth++

	if err := unix.Setresgid(m.buildGID, m.buildGID, m.adminGID); err != nil {
		return m.unwindLocked(fmt.Errorf("dropping group privileges: %w", err))
	}
	if err := unix.Setresuid(m.buildUID, m.buildUID, m.adminUID); err != nil {
		return m.unwindLocked(fmt.Errorf("dropping user privileges: %w", err))
	}
	return nil
}

// BecomeUser is the stronger form used when spawning a subprocess that must
// be unable to regain privilege: it sets real, effective, and saved ids all
// to uid/gid, so no syscall from that identity can recover administrator
// rights. The caller must still invoke RestorePrivs at the enclosing scope
// so the Manager's own process-wide state is restored.
func (m *Manager) BecomeUser(uid, gid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	runtime.LockOSThread()
	m.depth++

	if err := unix.Setresgid(gid, gid, gid); err != nil {
		return m.unwindLocked(fmt.Errorf("becoming group %d: %w", gid, err))
	}
	if err := unix.Setresuid(uid, uid, uid); err != nil {
		return m.unwindLocked(fmt.Errorf("becoming user %d: %w", uid, err))
	}
	return nil
}

// RestorePrivs restores the administrator identity. It is idempotent when
// already administrator: calling it without a matching drop is a no-op
// beyond re-asserting the administrator ids, which always succeeds for the
// real administrator thread.
func (m *Manager) RestorePrivs() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := unix.Setresgid(m.adminGID, m.adminGID, m.adminGID); err != nil {
		return fmt.Errorf("restoring group privileges: %w", err)
	}
	if err := unix.Setresuid(m.adminUID, m.adminUID, m.adminUID); err != nil {
		return fmt.Errorf("restoring user privileges: %w", err)
	}
	if m.depth > 0 {
		m.depth--
		runtime.UnlockOSThread()
	}
	return nil
}

// unwindLocked restores the administrator identity after a failed drop and
// returns the original error; called with m.mu already held.
func (m *Manager) unwindLocked(cause error) error {
	_ = unix.Setresgid(m.adminGID, m.adminGID, m.adminGID)
	_ = unix.Setresuid(m.adminUID, m.adminUID, m.adminUID)
	m.depth--
	runtime.UnlockOSThread()
	return cause
}

// IsAdmin reports whether the calling thread currently holds the
// administrator identity; used by tests and by best-effort callers that
// tolerate already-dropped state.
func (m *Manager) IsAdmin() bool {
	return unix.Geteuid() == m.adminUID && unix.Getegid() == m.adminGID
}
