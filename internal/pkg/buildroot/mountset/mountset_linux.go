// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package mountset

import "golang.org/x/sys/unix"

// UnixMounter is the production Mounter, issuing real mount(2)/umount(2)
// syscalls.
type UnixMounter struct{}

// Mount implements Mounter.
func (UnixMounter) Mount(spec Spec) error {
	return unix.Mount(spec.Source, spec.Target, spec.FSType, spec.Flags, spec.Data)
}

// Unmount implements Mounter, passing MNT_DETACH-free umount(2) (the
// controller prefers a plain umount and treats failure as best-effort at
// the Registry level, not here).
func (UnixMounter) Unmount(target string) error {
	return unix.Unmount(target, 0)
}
