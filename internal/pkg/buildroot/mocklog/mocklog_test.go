package mocklog

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func TestWritefRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	old := SetWriter(&buf)
	defer SetWriter(old)

	oldLevel := GetLevel()
	defer SetLevel(oldLevel)

	SetLevel(int(InfoLevel))
	Debugf("should not appear")
	assert.Equal(t, buf.Len(), 0)

	Infof("hello %s", "world")
	assert.Assert(t, bytes.Contains(buf.Bytes(), []byte("hello world")))
}

func TestSinkAttachIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.log")

	s := NewSink("state", "%(message)s")
	assert.NilError(t, s.Attach(path))
	assert.Assert(t, s.Attached())
	assert.NilError(t, s.Attach(path))

	s.Logf("State Changed: %s", "init")
	assert.NilError(t, s.Close())

	content, err := os.ReadFile(path)
	assert.NilError(t, err)
	assert.Assert(t, bytes.Contains(content, []byte("State Changed: init")))
}
