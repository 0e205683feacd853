/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package gitrepo is the git capability layer of the release manager:
// tracked operations against named repositories and their remotes. A
// Manager clones working copies at a revision (branch ref, tag ref,
// commit hash, or the short names manifest documents carry), creates
// release branches and tags, commits tracked changes, pushes refs, and
// answers remote ref-existence queries used by pre-flight validation.
//
// Remote URLs are built from manifest fetch prefixes through a URLFunc,
// tests substitute local filesystem paths. Authentication is pluggable:
// an OAuth2 token source for HTTP remotes or any go-git transport auth
// method.
package gitrepo
