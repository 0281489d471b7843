package pluginhost

import (
	"testing"

	"github.com/blang/semver/v4"
	"gotest.tools/v3/assert"
)

type testPlugin struct {
	required semver.Version
	gotOpts  map[string]interface{}
}

func (p *testPlugin) RequiredAPIVersion() semver.Version { return p.required }

func (p *testPlugin) Init(cap Capability, opts map[string]interface{}) error {
	p.gotOpts = opts
	cap.AddHook(StagePreInit, func() error { return nil })
	return nil
}

func TestLoadEnablesOnlyFlaggedPlugins(t *testing.T) {
	Register("probe", func() Plugin { return &testPlugin{required: semver.MustParse("1.0.0")} })
	defer delete(registry, "probe")

	h := NewHost()
	conf := map[string]interface{}{
		"probe_enable": true,
		"probe_opts":   map[string]interface{}{"custom": "value"},
	}

	err := h.Load([]string{"probe", "unlisted"}, conf, Capability{
		BaseDir: "/base", CacheTopDir: "/cache", CacheDir: "/cache/root", Root: "root",
	})
	assert.NilError(t, err)
	assert.Equal(t, len(h.hooks[StagePreInit]), 1)
}

func TestLoadFailsWithoutRequiredAPIVersion(t *testing.T) {
	Register("noversion", func() Plugin { return &testPlugin{} })
	defer delete(registry, "noversion")

	h := NewHost()
	conf := map[string]interface{}{"noversion_enable": true}

	err := h.Load([]string{"noversion"}, conf, Capability{})
	assert.ErrorContains(t, err, `doesn't specify required API version`)
}

func TestAddHookDeduplicatesSameFunction(t *testing.T) {
	h := NewHost()
	calls := 0
	fn := func() error { calls++; return nil }

	h.AddHook(StagePostInit, fn)
	h.AddHook(StagePostInit, fn)

	assert.NilError(t, h.Fire(StagePostInit))
	assert.Equal(t, calls, 1)
}
