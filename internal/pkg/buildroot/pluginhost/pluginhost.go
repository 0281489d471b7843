// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package pluginhost implements the buildroot controller's plugin
// registry. Rather than the original's runtime `imp.load_module` against a
// `<dir>/<name>.py` file, plugins here are compiled-in, tagged variants
// selected by name at configuration time (spec.md §9, Design Notes,
// option (b)): each plugin registers a Factory under its name via
// Register, and Host.Load looks the name up instead of touching the
// filesystem. The version check becomes a semver comparison against the
// plugin's advertised RequiredAPIVersion, mirroring Apptainer's own use of
// github.com/blang/semver/v4 for ABI-style version gating
// (internal/pkg/plugin/module.go).
package pluginhost

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/blang/semver/v4"

	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/berrors"
)

// funcPointer returns a comparable identity for a func value, used only
// for the "same function registered twice" dedup check; it is not a
// general-purpose function-equality primitive.
func funcPointer(fn func() error) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

// APIVersion is the API version this build of the controller implements.
// A plugin whose RequiredAPIVersion is not satisfied by APIVersion fails
// to load.
var APIVersion = semver.MustParse("1.0.0")

// Stage names hooks can be registered against, in firing order for a full
// build (spec.md §4.6). preyum/postyum additionally fire around every
// package-manager invocation, interleaved with the other stages.
const (
	StagePreInit       = "preinit"
	StagePostInit      = "postinit"
	StageEarlyPrebuild = "earlyprebuild"
	StagePrebuild      = "prebuild"
	StagePostbuild     = "postbuild"
	StagePreYum        = "preyum"
	StagePostYum       = "postyum"
)

// Capability is the narrow surface passed to a plugin's Init, rather than
// the whole Controller, per spec.md §9's design note: a plugin must not
// retain the controller past hook invocations, so it is given only what it
// needs to subscribe and read its own options.
type Capability struct {
	AddHook func(stage string, fn func() error)
	BaseDir string
	CacheTopDir string
	CacheDir string
	Root    string
}

// Plugin is the interface every compiled-in plugin variant implements.
type Plugin interface {
	// RequiredAPIVersion is the API version the plugin was written
	// against; absence of a real value here (the zero Version) is
	// treated as "doesn't specify required API version" and is fatal,
	// matching the original's hasattr check.
	RequiredAPIVersion() semver.Version
	// Init registers hooks against cap.AddHook. opts holds the plugin's
	// pluginConf["<name>_opts"] entry, already augmented with basedir/
	// cache_topdir/cachedir/root by the caller.
	Init(cap Capability, opts map[string]interface{}) error
}

// Factory constructs a fresh Plugin instance; plugins register themselves
// under a stable name via Register, analogous to the original locating
// <pluginDir>/<name>.py by name.
type Factory func() Plugin

var registry = map[string]Factory{}

// Register adds a plugin factory under name. Plugins call this from an
// init() func in their own package, compiled into the controller binary.
func Register(name string, f Factory) {
	registry[name] = f
}

// Host owns the stage-indexed hook registry for one controller instance.
type Host struct {
	hooks map[string][]func() error
	seen  map[string]map[uintptr]bool
}

// NewHost returns an empty Host.
func NewHost() *Host {
	return &Host{
		hooks: make(map[string][]func() error),
		seen:  make(map[string]map[uintptr]bool),
	}
}

// Load enables the named plugins that have their "<name>_enable" flag set
// in pluginConf, constructing each from the registry and calling Init with
// its augmented opts. Plugins not present in pluginConf are skipped,
// matching the original's plugins-list-plus-per-plugin-enable-flag model.
func (h *Host) Load(names []string, pluginConf map[string]interface{}, cap Capability) error {
	for _, name := range names {
		enabled, _ := pluginConf[name+"_enable"].(bool)
		if !enabled {
			continue
		}

		opts, hasOpts := pluginConf[name+"_opts"].(map[string]interface{})

		factory, ok := registry[name]
		if !ok {
			return &berrors.Error{Msg: fmt.Sprintf("plugin %q is not a known compiled-in plugin", name)}
		}

		p := factory()

		required := p.RequiredAPIVersion()
		if required.EQ(semver.Version{}) {
			return &berrors.Error{Msg: fmt.Sprintf("plugin %q doesn't specify required API version", name)}
		}
		if required.GT(APIVersion) {
			return &berrors.Error{Msg: fmt.Sprintf("plugin %q requires API version %s, have %s", name, required, APIVersion)}
		}

		if !hasOpts {
			opts = map[string]interface{}{}
		}
		opts["basedir"] = cap.BaseDir
		opts["cache_topdir"] = cap.CacheTopDir
		opts["cachedir"] = cap.CacheDir
		opts["root"] = cap.Root

		pluginCap := Capability{
			AddHook:     h.AddHook,
			BaseDir:     cap.BaseDir,
			CacheTopDir: cap.CacheTopDir,
			CacheDir:    cap.CacheDir,
			Root:        cap.Root,
		}
		if err := p.Init(pluginCap, opts); err != nil {
			return fmt.Errorf("initializing plugin %q: %w", name, err)
		}
	}
	return nil
}

// AddHook registers fn under stage. Hook registration is set-like per
// stage: registering the exact same function value twice for the same
// stage is ignored, matching the original's `if function not in hooks`
// check.
func (h *Host) AddHook(stage string, fn func() error) {
	if h.seen[stage] == nil {
		h.seen[stage] = make(map[uintptr]bool)
	}

	ptr := funcPointer(fn)
	if h.seen[stage][ptr] {
		return
	}
	h.seen[stage][ptr] = true
	h.hooks[stage] = append(h.hooks[stage], fn)
}

// Fire invokes every hook registered for stage, in registration order. An
// error from any hook aborts the stage and is returned immediately.
func (h *Host) Fire(stage string) error {
	for _, fn := range h.hooks[stage] {
		if err := fn(); err != nil {
			return fmt.Errorf("hook for stage %q failed: %w", stage, err)
		}
	}
	return nil
}

// Stages returns the registered stage names in a stable order, for
// diagnostics.
func (h *Host) Stages() []string {
	names := make([]string, 0, len(h.hooks))
	for s := range h.hooks {
		names = append(names, s)
	}
	sort.Strings(names)
	return names
}
