package yumbridge

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"gotest.tools/v3/assert"
)

func TestFindPackageManagerPrefersDnfOverYum(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("PATH manipulation assumes a unix shell")
	}
	dir := t.TempDir()
	for _, name := range []string{"dnf", "yum"} {
		path := filepath.Join(dir, name)
		assert.NilError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	}

	oldPath := os.Getenv("PATH")
	defer os.Setenv("PATH", oldPath)
	assert.NilError(t, os.Setenv("PATH", dir))

	got, err := FindPackageManager()
	assert.NilError(t, err)
	assert.Equal(t, got, filepath.Join(dir, "dnf"))
}

func TestFindPackageManagerFallsBackToYum(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("PATH manipulation assumes a unix shell")
	}
	dir := t.TempDir()
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "yum"), []byte("#!/bin/sh\n"), 0o755))

	oldPath := os.Getenv("PATH")
	defer os.Setenv("PATH", oldPath)
	assert.NilError(t, os.Setenv("PATH", dir))

	got, err := FindPackageManager()
	assert.NilError(t, err)
	assert.Equal(t, got, filepath.Join(dir, "yum"))
}

func TestFindPackageManagerFailsWhenNeitherPresent(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("PATH manipulation assumes a unix shell")
	}
	oldPath := os.Getenv("PATH")
	defer os.Setenv("PATH", oldPath)
	assert.NilError(t, os.Setenv("PATH", t.TempDir()))

	_, err := FindPackageManager()
	assert.ErrorContains(t, err, "neither dnf nor yum")
}
