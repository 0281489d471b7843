package rpmheader

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestParseRequiresFiltersCapabilityMarkers(t *testing.T) {
	output := "rpmlib(CompressedFileNames) <= 3.0.4-1\nlibfoo.so.1()(64bit)\n\nglibc >= 2.17\n"
	got := parseRequires(output)
	assert.DeepEqual(t, got, []string{"libfoo.so.1()(64bit)", "glibc >= 2.17"})
}

func TestParseRequiresHandlesEmptyOutput(t *testing.T) {
	assert.Assert(t, len(parseRequires("")) == 0)
}
