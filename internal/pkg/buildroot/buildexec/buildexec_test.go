package buildexec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/berrors"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/chrootpath"
)

type fakeMounts struct {
	mountErr     error
	mounted      bool
	unmountCalls int
}

func (f *fakeMounts) MountAll() error {
	if f.mountErr != nil {
		return f.mountErr
	}
	f.mounted = true
	return nil
}

func (f *fakeMounts) UnmountAll() { f.unmountCalls++ }

type fakePrivs struct {
	dropErr     error
	dropped     bool
	restoreCalls int
}

func (f *fakePrivs) DropPrivsTemp() error {
	if f.dropErr != nil {
		return f.dropErr
	}
	f.dropped = true
	return nil
}

func (f *fakePrivs) RestorePrivs() error { f.restoreCalls++; return nil }

func newBuilder(t *testing.T) (*Builder, chrootpath.Resolver) {
	t.Helper()
	root := t.TempDir()
	r := chrootpath.NewResolver(root)
	b := &Builder{
		Resolve:   r,
		Mounts:    &fakeMounts{},
		Privs:     &fakePrivs{},
		BuildDir:  "builddir/build",
		ResultDir: t.TempDir(),
	}
	return b, r
}

func TestBuildAbortsWhenMountFails(t *testing.T) {
	b, _ := newBuilder(t)
	mounts := &fakeMounts{mountErr: errors.New("mount busy")}
	b.Mounts = mounts

	var order []string
	b.Fire = func(stage string) error { order = append(order, stage); return nil }

	err := b.Build(context.Background(), "foo.src.rpm", 0)
	assert.ErrorContains(t, err, "mounting buildroot")
	assert.DeepEqual(t, order, []string{"earlyprebuild", "postbuild"})
	assert.Equal(t, mounts.unmountCalls, 0)
}

func TestBuildAbortsWhenPrivilegeDropFails(t *testing.T) {
	b, _ := newBuilder(t)
	privs := &fakePrivs{dropErr: errors.New("setresuid denied")}
	b.Privs = privs

	err := b.Build(context.Background(), "foo.src.rpm", 0)
	assert.ErrorContains(t, err, "assuming build identity")
	mounts := b.Mounts.(*fakeMounts)
	assert.Equal(t, mounts.unmountCalls, 1)
}

func TestCopySrpmIntoChrootCopiesFileAndReturnsChrootPath(t *testing.T) {
	b, r := newBuilder(t)
	assert.NilError(t, os.MkdirAll(r.Resolve(b.BuildDir, "originals"), 0o755))

	src := filepath.Join(t.TempDir(), "pkg-1.0.src.rpm")
	assert.NilError(t, os.WriteFile(src, []byte("fake srpm"), 0o644))

	chrootPath, err := b.copySrpmIntoChroot(src)
	assert.NilError(t, err)
	assert.Equal(t, chrootPath, "/builddir/build/originals/pkg-1.0.src.rpm")

	data, err := os.ReadFile(r.Resolve(b.BuildDir, "originals", "pkg-1.0.src.rpm"))
	assert.NilError(t, err)
	assert.Equal(t, string(data), "fake srpm")
}

func TestFindSpecFailsWhenNoneFound(t *testing.T) {
	b, r := newBuilder(t)
	assert.NilError(t, os.MkdirAll(r.Resolve(b.BuildDir, "SPECS"), 0o755))

	_, err := b.findSpec("pkg-1.0.src.rpm")
	var perr *berrors.PkgError
	assert.Assert(t, errors.As(err, &perr))
}

func TestFindSpecReturnsChrootRelativePath(t *testing.T) {
	b, r := newBuilder(t)
	specsDir := r.Resolve(b.BuildDir, "SPECS")
	assert.NilError(t, os.MkdirAll(specsDir, 0o755))
	assert.NilError(t, os.WriteFile(filepath.Join(specsDir, "pkg.spec"), []byte("Name: pkg\n"), 0o644))

	chrootSpec, err := b.findSpec("pkg-1.0.src.rpm")
	assert.NilError(t, err)
	assert.Equal(t, chrootSpec, "/builddir/build/SPECS/pkg.spec")
}

func TestFindSpecUsesFirstLexicographicWhenMultiplePresent(t *testing.T) {
	b, r := newBuilder(t)
	specsDir := r.Resolve(b.BuildDir, "SPECS")
	assert.NilError(t, os.MkdirAll(specsDir, 0o755))
	assert.NilError(t, os.WriteFile(filepath.Join(specsDir, "zzz.spec"), []byte("Name: zzz\n"), 0o644))
	assert.NilError(t, os.WriteFile(filepath.Join(specsDir, "aaa.spec"), []byte("Name: aaa\n"), 0o644))

	chrootSpec, err := b.findSpec("pkg-1.0.src.rpm")
	assert.NilError(t, err)
	assert.Equal(t, chrootSpec, "/builddir/build/SPECS/aaa.spec")
}

func TestCollectArtifactsCopiesRpmsAndSrpms(t *testing.T) {
	b, r := newBuilder(t)
	rpmsDir := r.Resolve(b.BuildDir, "RPMS")
	srpmsDir := r.Resolve(b.BuildDir, "SRPMS")
	assert.NilError(t, os.MkdirAll(rpmsDir, 0o755))
	assert.NilError(t, os.MkdirAll(srpmsDir, 0o755))
	assert.NilError(t, os.WriteFile(filepath.Join(rpmsDir, "pkg-1.0.x86_64.rpm"), []byte("bin"), 0o644))
	assert.NilError(t, os.WriteFile(filepath.Join(srpmsDir, "pkg-1.0.src.rpm"), []byte("src"), 0o644))

	assert.NilError(t, b.collectArtifacts())

	_, err := os.Stat(filepath.Join(b.ResultDir, "pkg-1.0.x86_64.rpm"))
	assert.NilError(t, err)
	_, err = os.Stat(filepath.Join(b.ResultDir, "pkg-1.0.src.rpm"))
	assert.NilError(t, err)
}
