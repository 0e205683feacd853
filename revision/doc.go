/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package revision models git revisions as they appear in update
// specifications and manifest documents: fully qualified branch and tag
// refs (refs/heads/..., refs/tags/...), full commit hashes, and the short
// namespace-less names manifest documents inherit from their defaults.
package revision
