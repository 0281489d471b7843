// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package buildexec drives the rpm/rpmbuild pipeline that turns a source
// package into binary packages inside an already-initialized chroot,
// grounded directly on mock.Root.build and _copySrpmIntoChroot.
package buildexec

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/berrors"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/chrootpath"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/procutil"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/rootstate"
)

// Mounts abstracts the controller's mount registry so tests can substitute
// a fake rather than touching the real kernel mount table.
type Mounts interface {
	MountAll() error
	UnmountAll()
}

// Privs abstracts the reversible privilege-drop scope build() brackets
// itself in; production wiring supplies *idmgr.Manager.
type Privs interface {
	DropPrivsTemp() error
	RestorePrivs() error
}

// State abstracts the controller's state machine.
type State interface {
	Set(newState string) string
}

// HookFirer fires a named lifecycle stage.
type HookFirer func(stage string) error

// DepsInstaller resolves and installs the rebuilt source package's build
// dependencies; production wiring supplies yumbridge.Bridge.InstallSrpmDeps
// bound to the rebuilt srpm's header.
type DepsInstaller func(ctx context.Context, rebuiltSrpm string) error

// Builder drives one build() invocation against one chroot.
type Builder struct {
	Resolve    chrootpath.Resolver
	Mounts     Mounts
	Privs      Privs
	State      State
	Fire       HookFirer
	InstallDeps DepsInstaller

	TargetArch  string
	BuildDir    string // chroot-relative, e.g. "builddir/build"
	Home        string // chroot-relative build-user home, used as HOME env
	ResultDir   string // host path results are copied out to
	ChrootUID   uint32
	ChrootGID   uint32
	Personality string
	BuildLog    io.Writer
}

// Build rebuilds srpmPath into binary packages under ResultDir. It mirrors
// mock.Root.build's hook/state sequence exactly: earlyprebuild fires
// before anything else happens, postbuild fires unconditionally once
// mounts are torn down and privileges restored, even on failure.
func (b *Builder) Build(ctx context.Context, srpmPath string, timeout time.Duration) error {
	if b.Fire != nil {
		if err := b.Fire("earlyprebuild"); err != nil {
			return fmt.Errorf("earlyprebuild hook: %w", err)
		}
	}

	err := b.build(ctx, srpmPath, timeout)

	if b.Fire != nil {
		if ferr := b.Fire("postbuild"); ferr != nil && err == nil {
			err = ferr
		}
	}
	return err
}

func (b *Builder) build(ctx context.Context, srpmPath string, timeout time.Duration) error {
	if err := b.Mounts.MountAll(); err != nil {
		return fmt.Errorf("mounting buildroot: %w", err)
	}
	defer b.Mounts.UnmountAll()

	if err := b.Privs.DropPrivsTemp(); err != nil {
		return fmt.Errorf("assuming build identity: %w", err)
	}
	defer b.Privs.RestorePrivs()

	if b.State != nil {
		b.State.Set(rootstate.Setup)
	}

	chrootSrpm, err := b.copySrpmIntoChroot(srpmPath)
	if err != nil {
		return err
	}

	if _, err := b.runDropped(ctx, []string{"rpm", "-Uvh", "--nodeps", chrootSrpm}, 0); err != nil {
		return fmt.Errorf("installing source package: %w", err)
	}

	chrootSpec, err := b.findSpec(filepath.Base(chrootSrpm))
	if err != nil {
		return err
	}

	bsArgv := []string{"rpmbuild", "-bs", "--target", b.TargetArch, "--nodeps", chrootSpec}
	if _, err := b.runDropped(ctx, bsArgv, timeout); err != nil {
		return fmt.Errorf("building source rpm: %w", err)
	}

	rebuilt, err := filepath.Glob(b.Resolve.Resolve(b.BuildDir, "SRPMS", "*.src.rpm"))
	if err != nil {
		return fmt.Errorf("globbing rebuilt srpm: %w", err)
	}
	if len(rebuilt) != 1 {
		return &berrors.PkgError{Msg: "didn't find single rebuilt srpm"}
	}

	if b.InstallDeps != nil {
		if err := b.InstallDeps(ctx, rebuilt[0]); err != nil {
			return err
		}
	}

	if b.State != nil {
		b.State.Set(rootstate.Build)
	}
	if b.Fire != nil {
		if err := b.Fire("prebuild"); err != nil {
			return fmt.Errorf("prebuild hook: %w", err)
		}
	}

	bbArgv := []string{"rpmbuild", "-bb", "--target", b.TargetArch, "--nodeps", chrootSpec}
	if _, err := b.runDropped(ctx, bbArgv, timeout); err != nil {
		return fmt.Errorf("building binary rpms: %w", err)
	}

	return b.collectArtifacts()
}

// runDropped executes argv inside the chroot under a freshly forked
// process with identity permanently dropped to the build uid/gid, so rpm
// and rpmbuild can never regain privilege even if they try.
func (b *Builder) runDropped(ctx context.Context, argv []string, timeout time.Duration) (*procutil.Result, error) {
	return procutil.Run(ctx, argv[0], argv[1:], procutil.Options{
		Chroot:        b.Resolve.Root(),
		Dir:           "/",
		Personality:   b.Personality,
		UseCredential: true,
		Uid:           b.ChrootUID,
		Gid:           b.ChrootGID,
		Env:           []string{"HOME=" + b.Home},
		LogWriter:     b.BuildLog,
		Timeout:       timeout,
	})
}

// copySrpmIntoChroot copies srpmPath into builddir/originals and returns
// its chroot-absolute path.
func (b *Builder) copySrpmIntoChroot(srpmPath string) (string, error) {
	base := filepath.Base(srpmPath)
	dest, err := b.Resolve.ResolveSecure(b.BuildDir, "originals", base)
	if err != nil {
		return "", fmt.Errorf("resolving destination for source package: %w", err)
	}
	if err := copyFile(srpmPath, dest); err != nil {
		return "", fmt.Errorf("copying source package into chroot: %w", err)
	}
	return "/" + filepath.Join(b.BuildDir, "originals", base), nil
}

// findSpec locates the spec file the rebuilt srpm unpacked under
// BuildDir/SPECS and returns it as a chroot-absolute path. rpmbuild -bs
// unpacks the untrusted source package's contents into SPECS, so the
// chosen candidate is re-resolved through ResolveSecure before its path
// is handed to the next rpmbuild invocation, guarding against a symlink
// the source package planted there to escape rootdir. filepath.Glob
// returns matches in sorted order, so when more than one *.spec file is
// present the first lexicographically is used and the build proceeds.
func (b *Builder) findSpec(srpmBasename string) (string, error) {
	specs, err := filepath.Glob(b.Resolve.Resolve(b.BuildDir, "SPECS", "*.spec"))
	if err != nil {
		return "", fmt.Errorf("globbing spec file: %w", err)
	}
	if len(specs) < 1 {
		return "", &berrors.PkgError{Msg: fmt.Sprintf("no spec file found in srpm: %s", srpmBasename)}
	}

	secure, err := b.Resolve.ResolveSecure(b.BuildDir, "SPECS", filepath.Base(specs[0]))
	if err != nil {
		return "", fmt.Errorf("resolving spec file: %w", err)
	}
	rel := strings.TrimPrefix(secure, b.Resolve.Root())
	return "/" + strings.TrimPrefix(rel, "/"), nil
}

// collectArtifacts copies every built rpm/srpm under BuildDir to
// ResultDir.
func (b *Builder) collectArtifacts() error {
	rpms, err := filepath.Glob(b.Resolve.Resolve(b.BuildDir, "RPMS", "*.rpm"))
	if err != nil {
		return fmt.Errorf("globbing rpms: %w", err)
	}
	srpms, err := filepath.Glob(b.Resolve.Resolve(b.BuildDir, "SRPMS", "*.rpm"))
	if err != nil {
		return fmt.Errorf("globbing srpms: %w", err)
	}

	for _, item := range append(rpms, srpms...) {
		dest := filepath.Join(b.ResultDir, filepath.Base(item))
		if err := copyFile(item, dest); err != nil {
			return fmt.Errorf("copying package to result dir: %w", err)
		}
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
