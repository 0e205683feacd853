/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package manifest models Git-manifest XML documents: ordered project
// entries with name, path, remote, and revision attributes, plus the
// document defaults and remote table. Documents can be loaded from a
// manifest repository checkout, have individual project revisions
// rewritten, and be serialized back in place with a backup of the
// original file.
package manifest
