// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package chrootpath is the single choke point for building paths inside a
// chroot buildroot. Every read or write under rootdir must be produced by
// Resolve (or Resolver.Resolve); raw concatenation of rootdir with
// user-supplied fragments is forbidden so that an accidental escape above
// the chroot root is visible in code review.
package chrootpath

import (
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// Resolver joins chroot-relative fragments against a fixed rootdir.
type Resolver struct {
	rootdir string
}

// NewResolver returns a Resolver bound to rootdir, which must already be an
// absolute, cleaned path (the controller computes it once at construction
// time as basedir/root).
func NewResolver(rootdir string) Resolver {
	return Resolver{rootdir: filepath.Clean(rootdir)}
}

// Root returns the resolver's bound rootdir.
func (r Resolver) Root() string { return r.rootdir }

// Resolve joins rootdir with the given fragments and collapses any
// resulting "//" to "/". It does not interpret "..": callers are expected
// to pass already-sanitized fragments, per spec.
func (r Resolver) Resolve(fragments ...string) string {
	tmp := r.rootdir + "/" + strings.Join(fragments, "/")
	for strings.Contains(tmp, "//") {
		tmp = strings.ReplaceAll(tmp, "//", "/")
	}
	return tmp
}

// ResolveSecure behaves like Resolve, but additionally resolves symlinks
// and ".." components (via securejoin) as if rootdir were the filesystem
// root, so the result never escapes rootdir through a symlink a previous
// pipeline stage may have planted inside the chroot. An escaping component
// is clamped to rootdir rather than reported as an error.
// This is an extra safety net layered on top of Resolve's pure-string
// contract; it performs actual filesystem lookups and so is used only at
// the handful of sites that open a path for reading/writing content that
// ultimately originates from the untrusted source package.
func (r Resolver) ResolveSecure(fragments ...string) (string, error) {
	rel := strings.Join(fragments, "/")
	return securejoin.SecureJoin(r.rootdir, rel)
}
