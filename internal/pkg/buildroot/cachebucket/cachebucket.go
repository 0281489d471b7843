// Copyright (c) Contributors to the Buildroot Controller project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package cachebucket implements the cache-pruning half of the original
// mock CLI's --scrub family: removing everything under a shared root's
// cache directory without touching the chroot itself. Fetch policy for
// what repopulates the cache afterward belongs to the package manager and
// is out of scope here.
package cachebucket

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	units "github.com/docker/go-units"
)

// Prune removes every entry under cacheDir, leaving the directory itself
// in place so a subsequent build can repopulate it without re-creating
// permissions. Scrubbing a cache directory that does not yet exist is not
// an error.
func Prune(cacheDir string) error {
	entries, err := os.ReadDir(cacheDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading cache dir %s: %w", cacheDir, err)
	}

	for _, entry := range entries {
		path := cacheDir + "/" + entry.Name()
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("removing %s: %w", path, err)
		}
	}
	return nil
}

// PruneToSize evicts the oldest entries under cacheDir, by modification
// time, until the remaining total size is at or below maxSize, a
// human-readable size such as "500MB" or "2GiB". It leaves cacheDir itself
// in place, and is a no-op for both a missing directory and an unset
// maxSize.
func PruneToSize(cacheDir, maxSize string) error {
	if maxSize == "" {
		return nil
	}
	limit, err := units.RAMInBytes(maxSize)
	if err != nil {
		return fmt.Errorf("parsing cache size limit %q: %w", maxSize, err)
	}

	entries, err := os.ReadDir(cacheDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading cache dir %s: %w", cacheDir, err)
	}

	type entry struct {
		path    string
		size    int64
		modTime int64
	}
	var ents []entry
	var total int64
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := cacheDir + "/" + e.Name()
		size := info.Size()
		if e.IsDir() {
			size = 0
			_ = filepath.Walk(path, func(_ string, fi os.FileInfo, err error) error {
				if err == nil && fi.Mode().IsRegular() {
					size += fi.Size()
				}
				return nil
			})
		}
		ents = append(ents, entry{path: path, size: size, modTime: info.ModTime().Unix()})
		total += size
	}
	if total <= limit {
		return nil
	}

	sort.Slice(ents, func(i, j int) bool { return ents[i].modTime < ents[j].modTime })
	for _, e := range ents {
		if total <= limit {
			break
		}
		if err := os.RemoveAll(e.path); err != nil {
			return fmt.Errorf("removing %s: %w", e.path, err)
		}
		total -= e.size
	}
	return nil
}
