// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package builduser provisions the unprivileged build identity inside a
// chroot: (re)creating its user/group entries via the chroot's own
// useradd/groupadd, unlocking its passwd entry, and laying out its home
// directory tree. Grounded on mock.Root._makeBuildUser and
// mock.Root._buildDirSetup.
package builduser

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/berrors"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/chrootpath"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/idmgr"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/procutil"
)

// ChrootRunner runs argv[0](argv[1:]...) inside a chroot, mirroring the
// controller's doChroot. It is supplied by the caller so this package
// never has to know the chroot's root path directly beyond path
// resolution.
type ChrootRunner func(ctx context.Context, argv ...string) (*procutil.Result, error)

// Provisioner creates and configures the build identity for one chroot.
type Provisioner struct {
	Resolve chrootpath.Resolver
	Run     ChrootRunner

	Uid, Gid    int
	User, Group string
	Home        string // chroot-relative, e.g. "builddir/build"
	// Useradd is a %(uid)s/%(gid)s/%(user)s/%(group)s/%(home)s template,
	// e.g. "/usr/sbin/useradd -o -m -u %(uid)s -g %(group)s -d %(home)s %(user)s".
	Useradd string
}

// NewChrootRunner returns a ChrootRunner that shells out via procutil with
// the given chroot root and personality.
func NewChrootRunner(rootdir, personality string) ChrootRunner {
	return func(ctx context.Context, argv ...string) (*procutil.Result, error) {
		if len(argv) == 0 {
			return nil, fmt.Errorf("empty argv")
		}
		return procutil.Run(ctx, argv[0], argv[1:], procutil.Options{
			Chroot:      rootdir,
			Dir:         "/",
			Personality: personality,
		})
	}
}

// EnsureUser (re)creates the build user and group inside the chroot: it
// removes any stale identity left by a previous build, blows away and
// recreates the home directory, recreates the group and user via the
// chroot's own tools, then unlocks the new passwd entry. Matching
// _makeBuildUser, userdel/groupdel failures from a nonexistent prior
// identity are tolerated; every later step is fatal.
func (p *Provisioner) EnsureUser(ctx context.Context) error {
	useraddBin := p.Resolve.Resolve("usr/sbin/useradd")
	if _, err := os.Stat(useraddBin); err != nil {
		return &berrors.RootError{Msg: "could not find useradd in chroot, maybe the install failed?"}
	}

	home := p.Resolve.Resolve(p.Home)
	if err := os.RemoveAll(home); err != nil {
		return fmt.Errorf("clearing build home %s: %w", home, err)
	}

	_, _ = p.Run(ctx, "/usr/sbin/userdel", "-r", p.User)
	_, _ = p.Run(ctx, "/usr/sbin/groupdel", p.Group)

	if _, err := p.Run(ctx, "/usr/sbin/groupadd", "-g", strconv.Itoa(p.Gid), p.Group); err != nil {
		return fmt.Errorf("creating build group %s: %w", p.Group, err)
	}

	argv := strings.Fields(expandTemplate(p.Useradd, p.Uid, p.Gid, p.User, p.Group, p.Home))
	if len(argv) == 0 {
		return &berrors.RootError{Msg: "useradd template expanded to an empty command"}
	}
	if _, err := p.Run(ctx, argv...); err != nil {
		return fmt.Errorf("creating build user %s: %w", p.User, err)
	}

	return p.unlockPasswd()
}

// unlockPasswd strips the "!!" password-lock marker mock's useradd leaves
// behind, equivalent to the teacher's
// perl -p -i -e 's/^(user:)!!/$1/;' /etc/passwd, done here as a direct
// file edit rather than invoking a chroot subprocess for it.
func (p *Provisioner) unlockPasswd() error {
	path := p.Resolve.Resolve("etc/passwd")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading passwd: %w", err)
	}

	prefix := []byte(p.User + ":!!")
	lines := bytes.Split(data, []byte("\n"))
	changed := false
	for i, line := range lines {
		if bytes.HasPrefix(line, prefix) {
			lines[i] = append([]byte(p.User+":"), line[len(prefix):]...)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return os.WriteFile(path, bytes.Join(lines, []byte("\n")), 0o644)
}

// SetupBuildDir runs as the unprivileged build identity: it creates the
// RPM topdir layout, takes ownership of everything under the home
// directory, and writes .rpmmacros. Matching _buildDirSetup, the identity
// switch brackets the whole function via defer. It uses mgr's reversible
// DropPrivsTemp rather than BecomeUser since the administrator identity
// must be recoverable once setup finishes; uid/gid must match the build
// identity mgr was constructed with.
func SetupBuildDir(mgr *idmgr.Manager, resolve chrootpath.Resolver, uid, gid int, builddir, home string, macros map[string]string) error {
	if err := mgr.DropPrivsTemp(); err != nil {
		return fmt.Errorf("assuming build identity: %w", err)
	}
	defer mgr.RestorePrivs()

	for _, sub := range []string{"RPMS", "SRPMS", "SOURCES", "SPECS", "BUILD", "originals"} {
		dir := resolve.Resolve(builddir, sub)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	homeDir := resolve.Resolve(home)
	err := filepath.Walk(homeDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == homeDir {
			return nil
		}
		if chErr := os.Chown(path, uid, -1); chErr != nil {
			return chErr
		}
		return os.Chmod(path, 0o755)
	})
	if err != nil {
		return fmt.Errorf("taking ownership of %s: %w", homeDir, err)
	}

	return writeRpmMacros(resolve.Resolve(home, ".rpmmacros"), macros)
}

// writeRpmMacros writes one "key value" line per macro, sorted by key for
// deterministic output. Keys are written verbatim, so they carry their own
// leading "%" (e.g. "%_topdir").
func writeRpmMacros(path string, macros map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	keys := make([]string, 0, len(macros))
	for k := range macros {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, err := fmt.Fprintf(f, "%s %s\n", k, macros[k]); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}

// expandTemplate substitutes mock's %(name)s placeholders.
func expandTemplate(tmpl string, uid, gid int, user, group, home string) string {
	r := strings.NewReplacer(
		"%(uid)s", strconv.Itoa(uid),
		"%(gid)s", strconv.Itoa(gid),
		"%(user)s", user,
		"%(group)s", group,
		"%(home)s", home,
	)
	return r.Replace(tmpl)
}
