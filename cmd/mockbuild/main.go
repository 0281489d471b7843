// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"os"

	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/mocklog"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		mocklog.Errorf("%s", err)
		os.Exit(1)
	}
}
