package rootlock

import (
	"errors"
	"os"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/berrors"
)

func TestTryLockContention(t *testing.T) {
	dir := t.TempDir()

	a, err := TryLock(dir)
	assert.NilError(t, err)
	assert.Assert(t, a.Held())
	defer a.Release()

	_, err = TryLock(dir)
	var locked *berrors.BuildRootLocked
	assert.Assert(t, errors.As(err, &locked))
}

func TestTryLockToleratesMissingBaseDir(t *testing.T) {
	h, err := TryLock("/nonexistent/path/should/not/exist/anywhere")
	assert.NilError(t, err)
	assert.Assert(t, !h.Held())
}

func TestReleaseThenRelock(t *testing.T) {
	dir := t.TempDir()

	a, err := TryLock(dir)
	assert.NilError(t, err)
	assert.NilError(t, a.Release())

	b, err := TryLock(dir)
	assert.NilError(t, err)
	assert.Assert(t, b.Held())
	assert.NilError(t, b.Release())
}

func TestLockFileNeverDeleted(t *testing.T) {
	dir := t.TempDir()
	h, err := TryLock(dir)
	assert.NilError(t, err)
	defer h.Release()

	_, statErr := os.Stat(dir + "/" + lockFileName)
	assert.NilError(t, statErr)
}
