// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package yumbridge formats and issues package-manager invocations
// against a chroot, grounded directly on mock.Root._yum and
// installSrpmDeps, and on Apptainer's own YumConveyor.Get pattern of
// building an explicit argv vector for yum/dnf with --installroot.
package yumbridge

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/berrors"
	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/procutil"
	"github.com/mockbuilder/buildroot/pkg/buildroot/types"
)

// HookFirer fires a named lifecycle stage, e.g. the controller's
// pluginhost.Host.Fire.
type HookFirer func(stage string) error

// Bridge issues package-manager commands against one chroot.
type Bridge struct {
	YumPath     string
	RootDir     string
	Online      bool
	Personality string
	Fire        HookFirer
	Logf        func(format string, a ...interface{})
}

// Yum runs "<yumPath> --installroot <rootdir> [-C] <cmd>", firing preyum
// and postyum around the invocation. cmd is split on whitespace into an
// argv tail so no shell is ever invoked.
func (b *Bridge) Yum(ctx context.Context, cmd string, returnOutput bool) (string, error) {
	args := []string{"--installroot", b.RootDir}
	if !b.Online {
		args = append(args, "-C")
	}
	args = append(args, strings.Fields(cmd)...)

	full := b.YumPath + " " + strings.Join(args, " ")
	if b.Logf != nil {
		b.Logf("%s", full)
	}

	if b.Fire != nil {
		if err := b.Fire("preyum"); err != nil {
			return "", err
		}
	}

	res, err := procutil.Run(ctx, b.YumPath, args, procutil.Options{
		Personality: b.Personality,
	})
	_ = returnOutput // output is always captured; kept for call-site symmetry with mock._yum(cmd, returnOutput)

	if b.Fire != nil {
		if ferr := b.Fire("postyum"); ferr != nil && err == nil {
			err = ferr
		}
	}

	if err != nil {
		msg := err.Error()
		if res != nil && res.Output != "" {
			msg = res.Output
		}
		return "", &berrors.YumError{Underlying: msg}
	}

	if res == nil {
		return "", nil
	}
	return res.Output, nil
}

// BecomeRoot elevates to uid/gid 0 before installing resolved
// dependencies, matching installSrpmDeps' uidManager.becomeUser(0, 0).
type BecomeRoot func() error

// RestorePrivs restores the administrator identity after BecomeRoot.
type RestorePrivs func() error

// InstallSrpmDeps resolves build dependencies for the given source
// packages and installs them.
//
//  1. Seed an argument string with preExistingDeps.
//  2. For each header yielded by readHeaders, merge its textual
//     build-requires with moreBuildreqs via a uniq operation, quoting
//     each requirement.
//  3. If the argument string is non-empty, run "resolvedep <args>" and
//     fail with *berrors.BuildError naming the first unresolved line.
//  4. Otherwise elevate to root, run "install <args>", and always
//     restore privileges afterward.
func (b *Bridge) InstallSrpmDeps(
	ctx context.Context,
	srpms []string,
	preExistingDeps string,
	moreBuildreqs map[string]string,
	readHeaders types.SrpmHeaderReader,
	becomeRoot BecomeRoot,
	restorePrivs RestorePrivs,
) error {
	argString := preExistingDeps

	headers, err := readHeaders(srpms)
	if err != nil {
		return fmt.Errorf("reading srpm headers: %w", err)
	}

	for _, hdr := range headers {
		for _, req := range uniqReqs(hdr.BuildRequires(), moreBuildreqs) {
			argString += fmt.Sprintf(" '%s'", req)
		}
	}

	argString = strings.TrimSpace(argString)
	if argString == "" {
		return nil
	}

	output, err := b.Yum(ctx, "resolvedep "+argString, true)
	if err != nil {
		return err
	}

	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(strings.ToLower(line), "no package found for") {
			return &berrors.BuildError{Msg: fmt.Sprintf("Bad build req: %s. Exiting.", line)}
		}
	}

	if err := becomeRoot(); err != nil {
		return fmt.Errorf("elevating to root for dependency install: %w", err)
	}
	defer restorePrivs()

	_, err = b.Yum(ctx, "install "+argString, true)
	return err
}

// uniqReqs merges textual build-requires a with the configured
// more_buildreqs set b, de-duplicating while preserving a's order first,
// mirroring mock.util.uniqReqs.
func uniqReqs(a []string, b map[string]string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))

	for _, req := range a {
		if !seen[req] {
			seen[req] = true
			out = append(out, req)
		}
	}

	extra := make([]string, 0, len(b))
	for _, v := range b {
		extra = append(extra, v)
	}
	sort.Strings(extra)
	for _, req := range extra {
		if !seen[req] {
			seen[req] = true
			out = append(out, req)
		}
	}

	return out
}
