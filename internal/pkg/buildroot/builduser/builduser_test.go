package builduser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
	"gotest.tools/v3/assert"

	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/berrors"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/chrootpath"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/idmgr"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/procutil"
)

// requireRoot skips tests that need real chown/Setresuid privileges.
func requireRoot(t *testing.T) {
	t.Helper()
	if unix.Geteuid() != 0 {
		t.Skip("requires root to exercise real ownership/privilege transitions")
	}
}

func newFakeRoot(t *testing.T) chrootpath.Resolver {
	t.Helper()
	dir := t.TempDir()
	assert.NilError(t, os.MkdirAll(filepath.Join(dir, "usr/sbin"), 0o755))
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "usr/sbin/useradd"), []byte("#!/bin/sh\n"), 0o755))
	assert.NilError(t, os.MkdirAll(filepath.Join(dir, "etc"), 0o755))
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "etc/passwd"), []byte("root:x:0:0::/root:/bin/sh\nmockbuild:!!:1000:1000::/builddir/build:/bin/sh\n"), 0o644))
	return chrootpath.NewResolver(dir)
}

func TestEnsureUserFailsWithoutUseradd(t *testing.T) {
	r := chrootpath.NewResolver(t.TempDir())
	p := &Provisioner{
		Resolve: r,
		Run: func(ctx context.Context, argv ...string) (*procutil.Result, error) {
			t.Fatal("should not run any command when useradd is missing")
			return nil, nil
		},
	}
	err := p.EnsureUser(context.Background())
	var rerr *berrors.RootError
	assert.Assert(t, errors.As(err, &rerr))
}

func TestEnsureUserRunsExpectedSequence(t *testing.T) {
	r := newFakeRoot(t)
	var calls [][]string
	p := &Provisioner{
		Resolve: r,
		Uid:     1000, Gid: 1000,
		User: "mockbuild", Group: "mockbuild",
		Home:    "builddir/build",
		Useradd: "/usr/sbin/useradd -o -m -u %(uid)s -g %(group)s -d %(home)s %(user)s",
		Run: func(ctx context.Context, argv ...string) (*procutil.Result, error) {
			calls = append(calls, argv)
			return &procutil.Result{}, nil
		},
	}

	assert.NilError(t, p.EnsureUser(context.Background()))
	assert.Equal(t, len(calls), 4)
	assert.DeepEqual(t, calls[0], []string{"/usr/sbin/userdel", "-r", "mockbuild"})
	assert.DeepEqual(t, calls[1], []string{"/usr/sbin/groupdel", "mockbuild"})
	assert.DeepEqual(t, calls[2], []string{"/usr/sbin/groupadd", "-g", "1000", "mockbuild"})
	assert.DeepEqual(t, calls[3], []string{
		"/usr/sbin/useradd", "-o", "-m", "-u", "1000", "-g", "mockbuild", "-d", "builddir/build", "mockbuild",
	})

	passwd, err := os.ReadFile(filepath.Join(r.Root(), "etc/passwd"))
	assert.NilError(t, err)
	assert.Assert(t, !strings.Contains(string(passwd), "mockbuild:!!"))
	assert.Assert(t, strings.Contains(string(passwd), "mockbuild::1000"))
}

func TestEnsureUserPropagatesGroupaddFailure(t *testing.T) {
	r := newFakeRoot(t)
	p := &Provisioner{
		Resolve: r,
		User:    "mockbuild", Group: "mockbuild",
		Run: func(ctx context.Context, argv ...string) (*procutil.Result, error) {
			if argv[0] == "/usr/sbin/groupadd" {
				return nil, errors.New("group exists")
			}
			return &procutil.Result{}, nil
		},
	}
	err := p.EnsureUser(context.Background())
	assert.ErrorContains(t, err, "creating build group")
}

func TestSetupBuildDirCreatesTopdirAndMacros(t *testing.T) {
	requireRoot(t)

	root := t.TempDir()
	home := "builddir/build"
	assert.NilError(t, os.MkdirAll(filepath.Join(root, home), 0o755))
	// SetupBuildDir runs as the build identity, which must be able to reach
	// root and own the tree it populates, as it does after useradd -m.
	assert.NilError(t, os.Chmod(filepath.Dir(root), 0o755))
	assert.NilError(t, os.Chmod(root, 0o755))
	assert.NilError(t, os.Chown(filepath.Join(root, "builddir"), 65534, 65534))
	assert.NilError(t, os.Chown(filepath.Join(root, home), 65534, 65534))
	r := chrootpath.NewResolver(root)

	mgr := idmgr.New(65534, 65534)
	err := SetupBuildDir(mgr, r, 65534, 65534, "builddir", home, map[string]string{
		"%_topdir": "/builddir/build",
		"%dist":    ".el6",
	})
	assert.NilError(t, err)

	for _, sub := range []string{"RPMS", "SRPMS", "SOURCES", "SPECS", "BUILD", "originals"} {
		info, statErr := os.Stat(filepath.Join(root, "builddir", sub))
		assert.NilError(t, statErr)
		assert.Assert(t, info.IsDir())
	}

	macros, err := os.ReadFile(filepath.Join(root, home, ".rpmmacros"))
	assert.NilError(t, err)
	assert.Equal(t, string(macros), "%_topdir /builddir/build\n%dist .el6\n")
}
