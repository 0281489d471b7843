// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package yumbridge

import (
	"fmt"
	"os/exec"
)

// FindBin returns the absolute path to name, looked up on PATH, mirroring
// the teacher's internal/pkg/util/bin.FindBin for the subset of binaries
// this package cares about.
func FindBin(name string) (string, error) {
	return exec.LookPath(name)
}

// FindPackageManager tries dnf first, falling back to yum, exactly as
// YumConveyor.Get does ("check for dnf or yum on system"). It returns an
// error naming both binaries when neither is found on PATH.
func FindPackageManager() (string, error) {
	if path, err := FindBin("dnf"); err == nil {
		return path, nil
	}
	if path, err := FindBin("yum"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("neither dnf nor yum found on PATH")
}
