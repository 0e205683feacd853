/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package linkedrepos

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// DefaultPath is where the linked-repositories file lives inside its
// repository.
const DefaultPath = "conf/distro/mbl-linked-repositories.conf"

// BackupSuffix is appended to the file name when Patch backs it up
// before rewriting in place.
const BackupSuffix = "~"

// Pin is the desired state for one tracked key. Zero-value fields leave
// the corresponding part of the line alone.
type Pin struct {
	// Value replaces the quoted value of the key's line.
	Value string
	// Branch rewrites a ;branch=...; attribute inside the quoted value,
	// for option lines that embed a repository URL.
	Branch string
}

// Table maps tracked configuration keys to their desired state. Adding
// a tracked key is a table change, the mutation algorithm is unchanged.
type Table map[string]Pin

var (
	lineRE   = regexp.MustCompile(`^(\s*)([A-Za-z0-9_.\-]+)(\s*=\s*)"(.*)"(\s*)$`)
	branchRE = regexp.MustCompile(`;branch=[^;"]*;`)
)

// Patch rewrites the KEY="VALUE" lines of the file at path according to
// the table and reports whether anything actually changed. Unchanged
// content is left untouched, callers use the report to avoid spurious
// commits. A changed file is backed up first (path plus BackupSuffix).
func Patch(path string, pins Table) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("reading linked-repositories file: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	changed := false
	for i, line := range lines {
		m := lineRE.FindStringSubmatch(line)
		if m == nil {
			if key, tracked := trackedKeyOf(line, pins); tracked {
				return false, fmt.Errorf("%s: malformed line for tracked key %q: %q", path, key, line)
			}
			continue
		}
		key, value := m[2], m[4]
		pin, ok := pins[key]
		if !ok {
			continue
		}

		newValue := value
		if pin.Branch != "" {
			newValue = branchRE.ReplaceAllString(newValue, ";branch="+pin.Branch+";")
		}
		if pin.Value != "" {
			newValue = pin.Value
		}
		if newValue == value {
			continue
		}

		lines[i] = m[1] + key + m[3] + `"` + newValue + `"` + m[5]
		changed = true
	}
	if !changed {
		return false, nil
	}

	if err := os.WriteFile(path+BackupSuffix, data, 0o644); err != nil {
		return false, fmt.Errorf("writing backup: %w", err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return false, fmt.Errorf("writing linked-repositories file: %w", err)
	}
	return true, nil
}

// trackedKeyOf reports whether the line names a tracked key even though
// it did not parse, a half-quoted value for a key we are about to pin
// must fail loudly rather than be skipped.
func trackedKeyOf(line string, pins Table) (string, bool) {
	eq := strings.Index(line, "=")
	if eq < 0 {
		return "", false
	}
	key := strings.TrimSpace(line[:eq])
	_, ok := pins[key]
	return key, ok
}
