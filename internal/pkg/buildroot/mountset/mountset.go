// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package mountset maintains the buildroot controller's ordered mount and
// unmount specifications and drives idempotent mount-all / unmount-all
// operations, grounded on mock's own self-description ("mount 'normal' fs
// like /dev/ /proc/ /sys") and on the teacher's syscall-level mount
// handling conventions elsewhere in the pack.
package mountset

// Spec describes one mount point the controller manages inside the
// chroot.
type Spec struct {
	// Source is the informational source/device name passed to mount(2),
	// e.g. "mock_chroot_proc".
	Source string
	// FSType is the filesystem type, e.g. "proc", "sysfs", "devpts".
	FSType string
	// Target is the absolute chroot path the filesystem is mounted onto.
	Target string
	// Flags are mount(2) flags; 0 for the simple virtual filesystems this
	// controller manages.
	Flags uintptr
	// Data is passed as the mount(2) data argument (fstype-specific
	// options); empty for proc/sysfs/devpts.
	Data string
}

// Mounter performs the actual mount/unmount syscalls. Production code uses
// the unix-backed implementation in mountset_linux.go; tests substitute a
// fake to assert ordering and best-effort unmount without touching the
// real kernel mount table.
type Mounter interface {
	Mount(spec Spec) error
	Unmount(target string) error
}

// Registry holds the ordered mount specs and their unmounts. Unmount order
// need not be the reverse of mount order (spec.md §4.4); callers append to
// Unmounts independently.
type Registry struct {
	m        Mounter
	Mounts   []Spec
	Unmounts []string
}

// New returns a Registry bound to a Mounter, seeded with the proc and sys
// binds every buildroot requires.
func New(m Mounter, rootdir string) *Registry {
	r := &Registry{m: m}
	r.Mounts = []Spec{
		{Source: "mock_chroot_proc", FSType: "proc", Target: rootdir + "/proc"},
		{Source: "mock_chroot_sysfs", FSType: "sysfs", Target: rootdir + "/sys"},
	}
	r.Unmounts = []string{
		rootdir + "/proc",
		rootdir + "/sys",
	}
	return r
}

// AddDevpts appends the devpts mount/unmount pair used when device
// population is enabled, deduplicated by exact target path so repeated
// calls (e.g. Init running twice against an already-configured registry)
// do not double-mount.
func (r *Registry) AddDevpts(rootdir string) {
	target := rootdir + "/dev/pts"

	for _, s := range r.Mounts {
		if s.Target == target {
			return
		}
	}
	r.Mounts = append(r.Mounts, Spec{Source: "mock_chroot_devpts", FSType: "devpts", Target: target})

	for _, t := range r.Unmounts {
		if t == target {
			return
		}
	}
	r.Unmounts = append(r.Unmounts, target)
}

// MountAll issues each mount spec in order. Any failure aborts immediately;
// the caller is responsible for invoking UnmountAll afterward regardless of
// how many mounts actually succeeded.
func (r *Registry) MountAll() error {
	for _, s := range r.Mounts {
		if err := r.m.Mount(s); err != nil {
			return err
		}
	}
	return nil
}

// UnmountAll issues each unmount in list order with errors swallowed: this
// is deliberately best-effort cleanup, so a controller crash never leaves
// unmount from running at all, but a single busy mount point never blocks
// releasing the rest.
func (r *Registry) UnmountAll() {
	for _, target := range r.Unmounts {
		_ = r.m.Unmount(target)
	}
}
