// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package devnodes

import (
	"context"

	"github.com/mockbuilder/buildroot/internal/pkg/buildroot/procutil"
)

// Chcon is the default ContextCopier, shelling out to chcon exactly as
// mock.util.do("chcon --reference=/%s %s", raiseExc=0) does. Its caller
// (Populate) already discards any error, so a host without chcon
// installed or without SELinux enabled works unmodified.
func Chcon(hostRef, chrootPath string) error {
	_, err := procutil.Run(context.Background(), "chcon", []string{"--reference=" + hostRef, chrootPath}, procutil.Options{})
	return err
}
