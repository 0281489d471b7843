// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package rpmheader is the default source-package header reader: it
// shells out to rpm -qp --requires, the same tool mock.util.yieldSrpmHeaders
// wraps via rpm.hdr, against the host's rpm binary. spec.md §1 treats
// header parsing as an external collaborator; this package is the
// concrete implementation CLI wiring supplies for that seam.
package rpmheader

import (
	"context"
	"strings"

	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/procutil"
	"github.com/mockbuilder/buildroot/pkg/buildroot/types"
)

// header implements types.SrpmHeader over the parsed output of a single
// rpm -qp --requires invocation.
type header struct {
	requires []string
}

func (h header) BuildRequires() []string { return h.requires }

// Read implements types.SrpmHeaderReader using the host's rpm binary.
// Capability-style dependency markers ("rpmlib(...)") are filtered out
// since they never resolve to an installable package name.
func Read(srpmPaths []string) ([]types.SrpmHeader, error) {
	headers := make([]types.SrpmHeader, 0, len(srpmPaths))
	for _, path := range srpmPaths {
		res, err := procutil.Run(context.Background(), "rpm", []string{"-qp", "--requires", path}, procutil.Options{})
		if err != nil {
			return nil, err
		}
		headers = append(headers, header{requires: parseRequires(res.Output)})
	}
	return headers, nil
}

func parseRequires(output string) []string {
	var reqs []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "rpmlib(") {
			continue
		}
		reqs = append(reqs, line)
	}
	return reqs
}
