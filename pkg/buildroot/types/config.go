// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package types holds the data shared across package boundaries: the
// validated configuration map a controller is built from (spec.md §6,
// "Configuration inputs"), and the narrow external-collaborator
// interfaces spec.md §1 declares out of scope for the core (CLI parsing,
// config-file loading, source-package header parsing, and the logging
// sinks the user configures).
package types

// Config holds every recognized option from spec.md §6. It is produced by
// an external collaborator (CLI flags merged with a config file) that is
// out of scope for this module; Config itself is the seam.
type Config struct {
	Root            string
	UniqueExt       string
	BaseDir         string
	TargetArch      string
	ChrootHome      string
	InternalSetarch bool
	// ResultDir is a %-style format string interpolated against this
	// same Config's field values, e.g. "/var/lib/mock/%(root)s/result".
	ResultDir string

	ChrootUID  int
	ChrootGID  int
	ChrootUser  string // defaults to "mockbuild" when empty
	ChrootGroup string // defaults to "mockbuild" when empty

	YumConf         string
	// YumPath is the package-manager binary to invoke. The CLI front
	// door probes PATH for dnf, then yum (yumbridge.FindPackageManager)
	// before falling back to Defaults' literal "/usr/bin/yum".
	YumPath string
	UseHostResolv   bool
	Files           map[string]string
	ChrootSetupCmd  string
	Macros          map[string]string
	MoreBuildreqs   map[string]string
	CacheTopDir     string
	// CacheMaxSize is a human-readable size limit (e.g. "500MB") scrub
	// enforces by evicting the oldest cached entries first. Empty means
	// unbounded.
	CacheMaxSize    string
	Useradd         string // %(uid)s/%(gid)s/%(user)s/%(group)s/%(home)s template
	Online          bool
	InternalDevSetup bool

	Plugins    []string
	PluginConf map[string]interface{}
	PluginDir  string

	BuildLogFmtStr string
	RootLogFmtStr  string
	StateLogFmtStr string
}

// Defaults fills in the zero-value defaults the original mock
// implementation hardcodes (mockbuild user/group name, /usr/bin/yum path).
// It is the last-resort fallback for YumPath; callers that can probe PATH
// should try yumbridge.FindPackageManager first.
func (c *Config) Defaults() {
	if c.ChrootUser == "" {
		c.ChrootUser = "mockbuild"
	}
	if c.ChrootGroup == "" {
		c.ChrootGroup = "mockbuild"
	}
	if c.YumPath == "" {
		c.YumPath = "/usr/bin/yum"
	}
}

// SrpmHeader is the minimal view of a parsed source-package header the
// package-manager bridge needs to resolve build dependencies. Parsing the
// real RPM header format is out of scope for this module (spec.md §1);
// production wiring supplies rpmheader.Read, which shells out to the
// host's rpm binary.
type SrpmHeader interface {
	// BuildRequires returns the textual build-requires entries declared
	// by the header.
	BuildRequires() []string
}

// SrpmHeaderReader yields one SrpmHeader per source package path given to
// it, mirroring mock.util.yieldSrpmHeaders.
type SrpmHeaderReader func(srpmPaths []string) ([]SrpmHeader, error)
