/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package linkedrepos rewrites the linked-repositories configuration
// file: line-oriented KEY="VALUE" text pinning a downstream consumer to
// specific revisions of linked repositories. The patcher is table
// driven and change detecting, so callers only commit when the file
// content actually moved.
package linkedrepos
