// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package buildroot wires the controller's leaf components — path
// resolution, privilege transitions, locking, mounts, device nodes,
// plugins, state/logging, the package-manager bridge, and the build
// executor — into the full clean → init → build lifecycle, grounded on
// mock.Root.
package buildroot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/buildexec"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/builduser"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/chrootpath"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/devnodes"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/idmgr"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/mocklog"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/mountset"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/pluginhost"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/rootlock"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/rootstate"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/yumbridge"
	"github.com/mockbuilder/buildroot/pkg/buildroot/types"
)

// Controller owns one buildroot's full lifecycle. It is not safe for
// concurrent use by multiple goroutines: spec.md's Non-goals exclude
// concurrent builds within a single instance.
type Controller struct {
	cfg types.Config

	sharedRootName string
	baseDir        string
	homeDir        string
	buildDir       string
	resultDir      string
	personality    string

	resolve chrootpath.Resolver
	privs   *idmgr.Manager
	lock    *rootlock.Handle
	mounts  *mountset.Registry
	plugins *pluginhost.Host
	state   *rootstate.Machine

	stateSink *mocklog.Sink
	rootSink  *mocklog.Sink
	buildSink *mocklog.Sink

	yum *yumbridge.Bridge

	headerReader types.SrpmHeaderReader
	copyContext  devnodes.ContextCopier

	// preExistingDeps seeds every dependency resolution; plugins (e.g. a
	// cache bucket that pre-validates cached packages) extend it via
	// SetPreExistingDeps.
	preExistingDeps string

	wasCleaned      bool
	loggingAttached bool
}

// New constructs a Controller from a validated configuration, entering
// "init plugins" then "start" during construction, exactly as
// mock.Root.__init__ does.
func New(cfg types.Config, headerReader types.SrpmHeaderReader, mounter mountset.Mounter, copyContext devnodes.ContextCopier) (*Controller, error) {
	cfg.Defaults()
	if cfg.UniqueExt == "auto" {
		cfg.UniqueExt = uuid.NewString()[:8]
	}

	root := cfg.Root
	if cfg.UniqueExt != "" {
		root = fmt.Sprintf("%s-%s", cfg.Root, cfg.UniqueExt)
	}
	baseDir := filepath.Join(cfg.BaseDir, root)
	rootDir := filepath.Join(baseDir, "root")

	c := &Controller{
		cfg:            cfg,
		sharedRootName: cfg.Root,
		baseDir:        baseDir,
		homeDir:        cfg.ChrootHome,
		buildDir:       filepath.Join(cfg.ChrootHome, "build"),
		resultDir:      formatResultDir(cfg),
		resolve:        chrootpath.NewResolver(rootDir),
		privs:          idmgr.New(cfg.ChrootUID, cfg.ChrootGID),
		plugins:        pluginhost.NewHost(),
		headerReader:   headerReader,
		copyContext:    copyContext,
	}

	if cfg.InternalSetarch {
		c.personality = cfg.TargetArch
	}

	c.mounts = mountset.New(mounter, rootDir)
	if cfg.InternalDevSetup {
		c.mounts.AddDevpts(rootDir)
	}

	c.stateSink = mocklog.NewSink("mock.Root.state", cfg.StateLogFmtStr)
	c.rootSink = mocklog.NewSink("mock", cfg.RootLogFmtStr)
	c.buildSink = mocklog.NewSink("mock.Root.build", cfg.BuildLogFmtStr)
	c.state = rootstate.NewMachine(c.stateSink)

	c.yum = &yumbridge.Bridge{
		YumPath:     cfg.YumPath,
		RootDir:     rootDir,
		Online:      cfg.Online,
		Personality: c.personality,
		Fire:        c.plugins.Fire,
		Logf:        c.rootSink.Logf,
	}

	c.state.Set(rootstate.InitPlugins)
	if err := c.initPlugins(); err != nil {
		return nil, err
	}
	c.state.Set(rootstate.Start)

	return c, nil
}

// formatResultDir interpolates cfg.ResultDir's "%(field)s" placeholders
// against cfg's scalar options (root, unique-ext, basedir, target_arch,
// chroothome, chrootuid, chrootgid, cache_topdir), mirroring
// config['resultdir'] % config. Placeholders naming any other option are
// left as written.
func formatResultDir(cfg types.Config) string {
	r := strings.NewReplacer(
		"%(root)s", cfg.Root,
		"%(unique-ext)s", cfg.UniqueExt,
		"%(basedir)s", cfg.BaseDir,
		"%(target_arch)s", cfg.TargetArch,
		"%(chroothome)s", cfg.ChrootHome,
		"%(chrootuid)s", fmt.Sprint(cfg.ChrootUID),
		"%(chrootgid)s", fmt.Sprint(cfg.ChrootGID),
		"%(cache_topdir)s", cfg.CacheTopDir,
	)
	return r.Replace(cfg.ResultDir)
}

// initPlugins loads the configured plugin set, augmenting each plugin's
// opts with basedir/cache_topdir/cachedir/root.
func (c *Controller) initPlugins() error {
	return c.plugins.Load(c.cfg.Plugins, c.cfg.PluginConf, pluginhost.Capability{
		BaseDir:     c.cfg.BaseDir,
		CacheTopDir: c.cfg.CacheTopDir,
		CacheDir:    c.CacheDir(),
		Root:        c.sharedRootName,
	})
}

// CacheDir is cache_topdir/sharedRootName, exported so plugins and the
// CLI's cache-pruning verb agree on the path.
func (c *Controller) CacheDir() string {
	return filepath.Join(c.cfg.CacheTopDir, c.sharedRootName)
}

// RootDir returns the chroot's absolute root path.
func (c *Controller) RootDir() string { return c.resolve.Root() }

// State returns the controller's current lifecycle state.
func (c *Controller) State() string { return c.state.Current() }

// Clean removes the buildroot's entire base directory. Safe even if it
// does not exist.
func (c *Controller) Clean() error {
	if err := c.tryLockBuildRoot(); err != nil {
		return err
	}
	c.state.Set(rootstate.Clean)

	if err := os.RemoveAll(c.baseDir); err != nil {
		return fmt.Errorf("removing %s: %w", c.baseDir, err)
	}
	c.wasCleaned = true
	return nil
}

// tryLockBuildRoot acquires the exclusive advisory lock if not already
// held, logging the state transition either way.
func (c *Controller) tryLockBuildRoot() error {
	c.state.Set(rootstate.LockBuildroot)
	if c.lock.Held() {
		return nil
	}
	h, err := rootlock.TryLock(c.baseDir)
	if err != nil {
		return err
	}
	c.lock = h
	return nil
}

// resetLogging attaches the three result-dir log files, exactly once,
// under temporarily-dropped privilege.
func (c *Controller) resetLogging() error {
	if c.loggingAttached {
		return nil
	}
	c.loggingAttached = true

	if err := c.privs.DropPrivsTemp(); err != nil {
		return fmt.Errorf("dropping privileges to attach logs: %w", err)
	}
	defer c.privs.RestorePrivs()

	for _, s := range []struct {
		sink *mocklog.Sink
		name string
	}{
		{c.stateSink, "state.log"},
		{c.buildSink, "build.log"},
		{c.rootSink, "root.log"},
	} {
		if err := s.sink.Attach(filepath.Join(c.resultDir, s.name)); err != nil {
			return fmt.Errorf("attaching %s: %w", s.name, err)
		}
	}
	return nil
}

var skeletonDirs = []string{
	"var/lib/rpm",
	"var/lib/yum",
	"var/log",
	"var/lock/rpm",
	"etc/rpm",
	"tmp",
	"var/tmp",
	"etc/yum.repos.d",
	"etc/yum",
	"proc",
	"sys",
}

var touchFiles = [][]string{
	{"etc", "mtab"},
	{"etc", "fstab"},
	{"var", "log", "yum.log"},
}

// Init builds the chroot skeleton, bootstraps the package set via the
// package manager, and provisions the build user, mirroring
// mock.Root.init step for step.
func (c *Controller) Init() error {
	c.state.Set(rootstate.Init)

	if err := os.MkdirAll(c.baseDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", c.baseDir, err)
	}
	if err := os.MkdirAll(c.resolve.Root(), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", c.resolve.Root(), err)
	}

	if err := c.privs.DropPrivsTemp(); err != nil {
		return fmt.Errorf("dropping privileges to create result dir: %w", err)
	}
	_ = os.MkdirAll(c.resultDir, 0o755) // pre-existence is tolerated, matching except OSError: pass
	if err := c.privs.RestorePrivs(); err != nil {
		return fmt.Errorf("restoring privileges after result dir creation: %w", err)
	}

	if err := c.tryLockBuildRoot(); err != nil {
		return err
	}

	if err := c.resetLogging(); err != nil {
		return err
	}
	c.rootSink.Logf("rootdir = %s", c.resolve.Root())
	c.rootSink.Logf("resultdir = %s", c.resultDir)

	if err := c.plugins.Fire(pluginhost.StagePreInit); err != nil {
		return fmt.Errorf("preinit hook: %w", err)
	}

	c.rootSink.Logf("create skeleton dirs")
	for _, item := range skeletonDirs {
		if err := os.MkdirAll(c.resolve.Resolve(item), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", item, err)
		}
	}

	c.rootSink.Logf("touch required files")
	for _, parts := range touchFiles {
		if err := touch(c.resolve.Resolve(parts...)); err != nil {
			return fmt.Errorf("touching %s: %w", filepath.Join(parts...), err)
		}
	}

	c.rootSink.Logf("configure yum")
	yumConfPath := c.resolve.Resolve("etc", "yum", "yum.conf")
	if err := os.WriteFile(yumConfPath, []byte(c.cfg.YumConf), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", yumConfPath, err)
	}

	yumConfLink := c.resolve.Resolve("etc", "yum.conf")
	_ = os.Remove(yumConfLink)
	if err := os.Symlink("yum/yum.conf", yumConfLink); err != nil {
		return fmt.Errorf("symlinking %s: %w", yumConfLink, err)
	}

	if c.cfg.UseHostResolv {
		resolvPath := c.resolve.Resolve("etc", "resolv.conf")
		_ = os.Remove(resolvPath)
		if err := copyFile("/etc/resolv.conf", resolvPath); err != nil {
			return fmt.Errorf("copying resolv.conf: %w", err)
		}
	}

	for key, body := range c.cfg.Files {
		path := c.resolve.Resolve(key)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}

	if c.cfg.InternalDevSetup {
		if err := devnodes.Populate(c.resolve.Root(), c.copyContext); err != nil {
			return fmt.Errorf("populating device nodes: %w", err)
		}
	}

	c.state.Set(rootstate.RunningYum)
	if err := c.bootstrapPackages(); err != nil {
		return err
	}

	if err := c.provisionBuildUser(); err != nil {
		return err
	}

	return c.plugins.Fire(pluginhost.StagePostInit)
}

// bootstrapPackages mounts the virtual filesystems, invokes the
// package-manager bootstrap command (the configured setup command on a
// freshly cleaned root, otherwise a plain update), and always unmounts
// afterward.
func (c *Controller) bootstrapPackages() error {
	if err := c.mounts.MountAll(); err != nil {
		return fmt.Errorf("mounting buildroot: %w", err)
	}
	defer c.mounts.UnmountAll()

	cmd := c.cfg.ChrootSetupCmd
	if !c.wasCleaned {
		cmd = "update"
	}
	_, err := c.yum.Yum(context.Background(), cmd, true)
	return err
}

func (c *Controller) provisionBuildUser() error {
	p := &builduser.Provisioner{
		Resolve: c.resolve,
		Run:     builduser.NewChrootRunner(c.resolve.Root(), c.personality),
		Uid:     c.cfg.ChrootUID,
		Gid:     c.cfg.ChrootGID,
		User:    c.cfg.ChrootUser,
		Group:   c.cfg.ChrootGroup,
		Home:    c.homeDir,
		Useradd: c.cfg.Useradd,
	}
	if err := p.EnsureUser(context.Background()); err != nil {
		return err
	}
	return builduser.SetupBuildDir(c.privs, c.resolve, c.cfg.ChrootUID, c.cfg.ChrootGID, c.buildDir, c.homeDir, c.cfg.Macros)
}

// Build rebuilds srpmPath into binary packages under resultdir.
func (c *Controller) Build(ctx context.Context, srpmPath string, timeout time.Duration) error {
	b := &buildexec.Builder{
		Resolve:     c.resolve,
		Mounts:      c.mounts,
		Privs:       c.privs,
		State:       c.state,
		Fire:        c.plugins.Fire,
		InstallDeps: c.installSrpmDeps,
		TargetArch:  c.cfg.TargetArch,
		BuildDir:    c.buildDir,
		Home:        c.homeDir,
		ResultDir:   c.resultDir,
		ChrootUID:   uint32(c.cfg.ChrootUID),
		ChrootGID:   uint32(c.cfg.ChrootGID),
		Personality: c.personality,
		BuildLog:    sinkWriter{c.buildSink},
	}
	return b.Build(ctx, srpmPath, timeout)
}

func (c *Controller) installSrpmDeps(ctx context.Context, rebuiltSrpm string) error {
	return c.yum.InstallSrpmDeps(ctx, []string{rebuiltSrpm}, c.preExistingDeps, c.cfg.MoreBuildreqs, c.headerReader,
		func() error { return c.privs.BecomeUser(0, 0) },
		c.privs.RestorePrivs,
	)
}

// AddHook exposes the plugin host's hook registration to callers
// outside the plugin-loading path (e.g. a CLI subcommand wiring an
// inline hook for diagnostics).
func (c *Controller) AddHook(stage string, fn func() error) {
	c.plugins.AddHook(stage, fn)
}

// SetPreExistingDeps seeds the argument string installSrpmDeps starts
// from; a cache plugin may extend it with already-validated requirements.
func (c *Controller) SetPreExistingDeps(deps string) { c.preExistingDeps = deps }

// Lock reports whether this controller currently holds the exclusive
// buildroot lock.
func (c *Controller) Lock() bool { return c.lock.Held() }

// Close releases the buildroot lock and log sinks.
func (c *Controller) Close() error {
	var err error
	if lockErr := c.lock.Release(); lockErr != nil {
		err = lockErr
	}
	_ = c.stateSink.Close()
	_ = c.rootSink.Close()
	_ = c.buildSink.Close()
	return err
}

// sinkWriter adapts a *mocklog.Sink to io.Writer for procutil's
// LogWriter, since the build executor streams raw subprocess output
// rather than formatted log records.
type sinkWriter struct{ sink *mocklog.Sink }

func (w sinkWriter) Write(p []byte) (int, error) {
	w.sink.Logf("%s", string(p))
	return len(p), nil
}

func touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func copyFile(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}
