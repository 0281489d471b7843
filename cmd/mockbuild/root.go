// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/mocklog"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/yumbridge"
	"github.com/mockbuilder/buildroot/pkg/buildroot/types"
)

// rootFlags holds the subset of spec.md §6 configuration inputs exposed
// directly as CLI flags; loading a richer config file format is the
// external collaborator's job (spec.md §1) and is intentionally not
// implemented here.
type rootFlags struct {
	root       string
	uniqueExt  string
	baseDir    string
	targetArch string
	chrootHome string
	resultDir  string
	chrootUID  int
	chrootGID  int
	yumConf    string
	yumPath    string
	cacheMax   string
	verbose    int
}

func (f *rootFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&f.root, "root", "default", "buildroot name")
	flags.StringVar(&f.uniqueExt, "unique-ext", "", "suffix disambiguating concurrent buildroots sharing a name")
	flags.StringVar(&f.baseDir, "basedir", "/var/lib/mockbuild", "directory containing all buildroots")
	flags.StringVar(&f.targetArch, "target-arch", "x86_64", "target architecture passed to rpmbuild")
	flags.StringVar(&f.chrootHome, "chroot-home", "/builddir", "build user's home directory inside the chroot")
	flags.StringVar(&f.resultDir, "resultdir", "/var/lib/mockbuild/%(root)s/result", "directory artifacts and logs are copied to")
	flags.IntVar(&f.chrootUID, "chroot-uid", 1000, "build user uid inside the chroot")
	flags.IntVar(&f.chrootGID, "chroot-gid", 1000, "build user gid inside the chroot")
	flags.StringVar(&f.yumConf, "yum-conf", "", "path to a yum.conf to copy into the chroot verbatim")
	flags.StringVar(&f.yumPath, "yum-path", "", "package-manager binary to invoke (default: dnf, falling back to yum, found on PATH)")
	flags.StringVar(&f.cacheMax, "cache-max-size", "", "evict oldest cache entries above this size (e.g. 500MB), unbounded if empty")
	flags.CountVarP(&f.verbose, "verbose", "v", "increase console log verbosity")
}

func (f *rootFlags) toConfig() types.Config {
	yumPath := f.yumPath
	if yumPath == "" {
		// "check for dnf or yum on system", same order YumConveyor.Get
		// probes them; cfg.Defaults' hardcoded /usr/bin/yum is the final
		// fallback when neither is found on PATH.
		if found, err := yumbridge.FindPackageManager(); err == nil {
			yumPath = found
		} else {
			mocklog.Warningf("%s, falling back to default yum path", err)
		}
	}

	yumConf := ""
	if f.yumConf != "" {
		data, err := os.ReadFile(f.yumConf)
		if err != nil {
			mocklog.Fatalf("reading %s: %s", f.yumConf, err)
		}
		yumConf = string(data)
	}

	cfg := types.Config{
		Root:       f.root,
		UniqueExt:  f.uniqueExt,
		BaseDir:    f.baseDir,
		TargetArch: f.targetArch,
		ChrootHome: f.chrootHome,
		ResultDir:  f.resultDir,
		ChrootUID:  f.chrootUID,
		ChrootGID:  f.chrootGID,
		YumConf:      yumConf,
		YumPath:      yumPath,
		CacheMaxSize: f.cacheMax,
		Online:       true,
	}
	cfg.Defaults()
	return cfg
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "mockbuild",
		Short:         "build RPM packages inside an isolated chroot buildroot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			mocklog.SetLevel(int(mocklog.InfoLevel) + flags.verbose)
		},
	}

	flags.register(root.PersistentFlags())

	root.AddCommand(newCleanCmd(flags))
	root.AddCommand(newInitCmd(flags))
	root.AddCommand(newBuildCmd(flags))
	root.AddCommand(newScrubCmd(flags))

	return root
}
