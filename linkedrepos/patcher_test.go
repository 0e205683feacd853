/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package linkedrepos

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConf = `# Linked repositories
MBL_LINKED_REPOSITORIES_OPTIONS_mbl-core = "git@github.com/armmbed/mbl-core;branch=master;protocol=ssh"
SRCREV_mbl-core = "0000000000000000000000000000000000000000"
SOME_OTHER_SETTING = "untouched"
`

func writeConf(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mbl-linked-repositories.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPatchRewritesValue(t *testing.T) {
	path := writeConf(t, sampleConf)
	newHash := strings.Repeat("a", 40)

	changed, err := Patch(path, Table{"SRCREV_mbl-core": {Value: newHash}})
	require.NoError(t, err)
	require.True(t, changed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `SRCREV_mbl-core = "`+newHash+`"`)
	assert.Contains(t, string(data), `SOME_OTHER_SETTING = "untouched"`)

	// The original content is backed up.
	backup, err := os.ReadFile(path + BackupSuffix)
	require.NoError(t, err)
	assert.Equal(t, sampleConf, string(backup))
}

func TestPatchIdempotent(t *testing.T) {
	path := writeConf(t, sampleConf)
	pins := Table{
		"SRCREV_mbl-core":                          {Value: strings.Repeat("b", 40)},
		"MBL_LINKED_REPOSITORIES_OPTIONS_mbl-core": {Branch: "rel-1"},
	}

	changed, err := Patch(path, pins)
	require.NoError(t, err)
	require.True(t, changed, "first application must report a change")

	changed, err = Patch(path, pins)
	require.NoError(t, err)
	assert.False(t, changed, "second application must be a no-op")
}

func TestPatchRewritesBranch(t *testing.T) {
	path := writeConf(t, sampleConf)

	changed, err := Patch(path, Table{"MBL_LINKED_REPOSITORIES_OPTIONS_mbl-core": {Branch: "rel-1"}})
	require.NoError(t, err)
	require.True(t, changed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), ";branch=rel-1;")
}

func TestPatchUntrackedKeysUntouched(t *testing.T) {
	path := writeConf(t, sampleConf)

	changed, err := Patch(path, Table{"SRCREV_absent": {Value: strings.Repeat("c", 40)}})
	require.NoError(t, err)
	assert.False(t, changed, "absent key must not change the file")

	_, err = os.Stat(path + BackupSuffix)
	assert.True(t, os.IsNotExist(err), "no backup should be written for a no-op")
}

func TestPatchMalformedTrackedLine(t *testing.T) {
	path := writeConf(t, "SRCREV_mbl-core = \"missing-close\n")
	_, err := Patch(path, Table{"SRCREV_mbl-core": {Value: strings.Repeat("d", 40)}})
	require.Error(t, err, "malformed tracked line must be a syntax error")
}

func TestPatchMissingFile(t *testing.T) {
	_, err := Patch(filepath.Join(t.TempDir(), "absent.conf"), Table{})
	require.Error(t, err)
}
