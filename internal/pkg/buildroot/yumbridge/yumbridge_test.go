package yumbridge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/berrors"
	"github.com/mockbuilder/buildroot/pkg/buildroot/types"
)

type fakeHeader struct{ reqs []string }

func (f fakeHeader) BuildRequires() []string { return f.reqs }

func TestYumOfflineAddsDashC(t *testing.T) {
	b := &Bridge{YumPath: "/bin/echo", RootDir: "/tmp/root", Online: false}
	out, err := b.Yum(context.Background(), "update", true)
	assert.NilError(t, err)
	assert.Assert(t, strings.Contains(out, "-C"))
	assert.Assert(t, strings.Contains(out, "--installroot /tmp/root"))
}

func TestYumOnlineOmitsDashC(t *testing.T) {
	b := &Bridge{YumPath: "/bin/echo", RootDir: "/tmp/root", Online: true}
	out, err := b.Yum(context.Background(), "update", true)
	assert.NilError(t, err)
	assert.Assert(t, !strings.Contains(out, "-C"))
}

func TestYumFiresHooksInOrder(t *testing.T) {
	var order []string
	b := &Bridge{
		YumPath: "/bin/echo", RootDir: "/x", Online: true,
		Fire: func(stage string) error { order = append(order, stage); return nil },
	}
	_, err := b.Yum(context.Background(), "install foo", true)
	assert.NilError(t, err)
	assert.DeepEqual(t, order, []string{"preyum", "postyum"})
}

func TestYumWrapsFailureAsYumError(t *testing.T) {
	b := &Bridge{YumPath: "/bin/false", RootDir: "/x", Online: true}
	_, err := b.Yum(context.Background(), "install foo", true)
	var yerr *berrors.YumError
	assert.Assert(t, errors.As(err, &yerr))
}

func TestInstallSrpmDepsHappyPath(t *testing.T) {
	b := &Bridge{YumPath: "/bin/echo", RootDir: "/x", Online: true}

	reader := func(srpms []string) ([]types.SrpmHeader, error) {
		return []types.SrpmHeader{fakeHeader{reqs: []string{"libfoo >= 2"}}}, nil
	}

	called := false
	err := b.InstallSrpmDeps(context.Background(), []string{"pkg.src.rpm"}, "", nil, reader,
		func() error { called = true; return nil },
		func() error { return nil },
	)
	assert.NilError(t, err)
	assert.Assert(t, called)
}

func TestInstallSrpmDepsSkipsInstallWhenNoRequirements(t *testing.T) {
	b := &Bridge{YumPath: "/bin/echo", RootDir: "/x", Online: true}
	reader := func(srpms []string) ([]types.SrpmHeader, error) { return nil, nil }

	called := false
	err := b.InstallSrpmDeps(context.Background(), nil, "", nil, reader,
		func() error { called = true; return nil },
		func() error { return nil },
	)
	assert.NilError(t, err)
	assert.Assert(t, !called)
}

func TestUniqReqsDedupsPreservingOrder(t *testing.T) {
	got := uniqReqs([]string{"a", "b", "a"}, map[string]string{"x": "b", "y": "c"})
	assert.DeepEqual(t, got, []string{"a", "b", "c"})
}

func TestUnresolvedRequirementLineDetection(t *testing.T) {
	line := "No package found for libfoo >= 2"
	assert.Assert(t, strings.Contains(strings.ToLower(line), "no package found for"))
}
