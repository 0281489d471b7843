// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mockbuilder/buildroot/internal/pkg/buildroot"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/cachebucket"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/devnodes"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/mountset"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/rpmheader"
)

// newController wires the external collaborators spec.md §1 leaves out of
// the core: the rpm header reader, the real mount(2)/umount(2) mounter,
// and the chcon-based SELinux context copier.
func newController(flags *rootFlags) (*buildroot.Controller, error) {
	cfg := flags.toConfig()
	return buildroot.New(cfg, rpmheader.Read, mountset.UnixMounter{}, devnodes.Chcon)
}

func newCleanCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "remove the buildroot, recreating it empty on next init",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newController(flags)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Clean()
		},
	}
}

func newInitCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "bootstrap the buildroot up through an installed build user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newController(flags)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Init()
		},
	}
}

func newBuildCmd(flags *rootFlags) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "build SRPM",
		Short: "rebuild a source RPM inside the buildroot, collecting artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newController(flags)
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Init(); err != nil {
				return err
			}
			return c.Build(cmd.Context(), args[0], timeout)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Hour, "maximum duration of the rpmbuild invocation")
	return cmd
}

func newScrubCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "scrub",
		Short: "prune the shared package cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newController(flags)
			if err != nil {
				return err
			}
			defer c.Close()
			if flags.cacheMax != "" {
				return cachebucket.PruneToSize(c.CacheDir(), flags.cacheMax)
			}
			return cachebucket.Prune(c.CacheDir())
		},
	}
}
