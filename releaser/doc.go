/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package releaser orchestrates a release across the repository
// constellation: it resolves an update specification against the root
// manifest repository, preflights every remote, stages new refs and
// manifest rewrites locally, and pushes only after the confirmation
// checkpoint. Pushes are fail-independent and never rolled back.
package releaser
