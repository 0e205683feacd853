/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package updatespec parses and validates update specifications: nested
// scope documents (JSON or YAML) mapping repository identifiers to
// target revisions. The reserved scopes _common_ and _external_ plus
// arbitrary manifest-document scopes normalize into a flat list of
// change requests.
//
// Validation enforces the cross-cutting rules as a whole, reporting
// every violation found: the external scope must anchor the run on the
// root manifest repository, a repository may not straddle the external
// or common scope and any other scope, targets must be creatable refs
// (never commit hashes), and external [source, target] pairs must be
// well formed and distinct. The only permitted duplication is the same
// repository across different file-specific scopes.
package updatespec
