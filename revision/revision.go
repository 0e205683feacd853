/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package revision

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
)

const (
	// BranchPrefix is the ref namespace for branch revisions.
	BranchPrefix = "refs/heads/"
	// TagPrefix is the ref namespace for tag revisions.
	TagPrefix = "refs/tags/"

	// hashLen is the length of a full SHA-1 commit hash.
	hashLen = 40
)

// Kind discriminates the three forms a revision can take.
type Kind int

const (
	// Branch is a fully qualified branch reference (refs/heads/...).
	Branch Kind = iota
	// Tag is a fully qualified tag reference (refs/tags/...).
	Tag
	// Hash is a full 40-character commit hash.
	Hash
	// Short is a bare branch or tag name without a ref namespace.
	// Manifest documents carry these; user input never does.
	Short
)

func (k Kind) String() string {
	switch k {
	case Branch:
		return "branch"
	case Tag:
		return "tag"
	case Hash:
		return "hash"
	case Short:
		return "short"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Revision is a git revision: a branch ref, a tag ref, a commit hash, or a
// short (namespace-less) name inherited from a manifest document.
type Revision string

// Kind classifies the revision by shape alone. It does not imply the
// revision is well formed, see Validate.
func (r Revision) Kind() Kind {
	switch {
	case strings.HasPrefix(string(r), BranchPrefix):
		return Branch
	case strings.HasPrefix(string(r), TagPrefix):
		return Tag
	case r.isHash():
		return Hash
	}
	return Short
}

// IsRef reports whether the revision is a fully qualified branch or tag
// reference. Only refs may be created, a hash is never a valid target.
func (r Revision) IsRef() bool {
	k := r.Kind()
	return k == Branch || k == Tag
}

// IsHash reports whether the revision is a full commit hash.
func (r Revision) IsHash() bool {
	return r.Kind() == Hash
}

func (r Revision) isHash() bool {
	if len(r) != hashLen {
		return false
	}
	for _, c := range r {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// Short returns the base name of a ref revision (the part after the
// namespace prefix). Hashes and short names are returned unchanged.
func (r Revision) Short() string {
	switch r.Kind() {
	case Branch:
		return strings.TrimPrefix(string(r), BranchPrefix)
	case Tag:
		return strings.TrimPrefix(string(r), TagPrefix)
	}
	return string(r)
}

// ReferenceName converts a ref revision to its go-git reference name.
// It must only be called when IsRef reports true.
func (r Revision) ReferenceName() plumbing.ReferenceName {
	return plumbing.ReferenceName(r)
}

// Validate checks that the revision is well formed for its kind. Short
// names are rejected: callers dealing with manifest-inherited short
// revisions should qualify them first (see gitrepo.Clone).
func (r Revision) Validate() error {
	switch r.Kind() {
	case Hash:
		return nil
	case Branch, Tag:
		if err := r.ReferenceName().Validate(); err != nil {
			return fmt.Errorf("revision %q: %w", r, err)
		}
		return nil
	}
	return fmt.Errorf("revision %q is neither a %s/%s ref nor a %d-character commit hash", r, BranchPrefix, TagPrefix, hashLen)
}

// ValidateTarget checks that the revision may be used as the target of a
// ref creation. Commit hashes are valid revisions but can never be
// created, so they are rejected here.
func (r Revision) ValidateTarget() error {
	if r.IsHash() {
		return fmt.Errorf("target revision %q is a commit hash, only branch or tag refs can be created", r)
	}
	return r.Validate()
}

func (r Revision) String() string {
	return string(r)
}
