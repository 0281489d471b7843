package idmgr

import (
	"testing"

	"golang.org/x/sys/unix"
	"gotest.tools/v3/assert"
)

// requireRoot skips privilege-transition tests when not running as root:
// Setresuid/Setresgid to an unprivileged uid only succeeds from root, and
// CI sandboxes commonly run unprivileged.
func requireRoot(t *testing.T) {
	t.Helper()
	if unix.Geteuid() != 0 {
		t.Skip("requires root to exercise real privilege transitions")
	}
}

func TestDropPrivsTempRestoresAdmin(t *testing.T) {
	requireRoot(t)

	m := New(65534, 65534)
	assert.Assert(t, m.IsAdmin())

	assert.NilError(t, m.DropPrivsTemp())
	assert.Assert(t, !m.IsAdmin())

	assert.NilError(t, m.RestorePrivs())
	assert.Assert(t, m.IsAdmin())
}

func TestBecomeUserThenRestore(t *testing.T) {
	requireRoot(t)

	m := New(65534, 65534)
	assert.NilError(t, m.BecomeUser(65534, 65534))
	assert.Assert(t, !m.IsAdmin())

	assert.NilError(t, m.RestorePrivs())
	assert.Assert(t, m.IsAdmin())
}

func TestRestorePrivsIdempotentWhenAlreadyAdmin(t *testing.T) {
	requireRoot(t)

	m := New(65534, 65534)
	assert.NilError(t, m.RestorePrivs())
	assert.NilError(t, m.RestorePrivs())
	assert.Assert(t, m.IsAdmin())
}
