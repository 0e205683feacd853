/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package updatespec

import (
	"fmt"

	"chainguard.dev/relman/revision"
)

const (
	// CommonKey is the reserved top-level key for the common scope.
	CommonKey = "_common_"
	// ExternalKey is the reserved top-level key for the external scope.
	ExternalKey = "_external_"

	// DefaultRootRepo is the root manifest repository the external scope
	// must anchor a run on.
	DefaultRootRepo = "armmbed/mbl-manifest"
)

// ScopeKind discriminates the three scopes a change request can carry.
type ScopeKind int

const (
	// ScopeCommon applies the target to every manifest document that
	// references the repository.
	ScopeCommon ScopeKind = iota
	// ScopeFileSpecific applies the target to a single named manifest
	// document.
	ScopeFileSpecific
	// ScopeExternal targets a repository no manifest document references.
	ScopeExternal
)

// Scope is the tagged scope of a change request. Document is set only
// for ScopeFileSpecific.
type Scope struct {
	Kind     ScopeKind
	Document string
}

// Common, External and FileSpecific construct the three scope variants.
func Common() Scope   { return Scope{Kind: ScopeCommon} }
func External() Scope { return Scope{Kind: ScopeExternal} }
func FileSpecific(doc string) Scope {
	return Scope{Kind: ScopeFileSpecific, Document: doc}
}

func (s Scope) String() string {
	switch s.Kind {
	case ScopeCommon:
		return CommonKey
	case ScopeExternal:
		return ExternalKey
	}
	return s.Document
}

// ChangeRequest is the normalized unit of work: one repository, one
// scope, and the revisions involved. Source is set only for external
// scope, manifest-referenced repositories inherit their checkout point
// from the manifest document.
type ChangeRequest struct {
	Repo   string
	Scope  Scope
	Source revision.Revision
	Target revision.Revision
}

func (c ChangeRequest) String() string {
	if c.Scope.Kind == ScopeExternal {
		return fmt.Sprintf("%s[%s]: %s -> %s", c.Repo, c.Scope, c.Source, c.Target)
	}
	return fmt.Sprintf("%s[%s]: -> %s", c.Repo, c.Scope, c.Target)
}

// Spec is a validated update specification: a flat, deterministic list
// of change requests. Specs are read-only once built.
type Spec struct {
	RootRepo string
	Requests []ChangeRequest
}

// Root returns the external-scope request for the root manifest
// repository. Validation guarantees it exists.
func (s *Spec) Root() ChangeRequest {
	for _, cr := range s.Requests {
		if cr.Scope.Kind == ScopeExternal && cr.Repo == s.RootRepo {
			return cr
		}
	}
	// Unreachable on a validated spec.
	panic("updatespec: validated spec lacks a root request")
}

// ExternalRequests returns the external-scope requests, the root
// manifest repository included.
func (s *Spec) ExternalRequests() []ChangeRequest {
	var out []ChangeRequest
	for _, cr := range s.Requests {
		if cr.Scope.Kind == ScopeExternal {
			out = append(out, cr)
		}
	}
	return out
}

// Target returns the target revision requested for repo in the named
// document: the file-specific target when one exists, the common target
// otherwise. ok is false when the spec does not touch repo in that
// document.
func (s *Spec) Target(doc, repo string) (revision.Revision, bool) {
	var common revision.Revision
	var haveCommon bool
	for _, cr := range s.Requests {
		if cr.Repo != repo {
			continue
		}
		switch cr.Scope.Kind {
		case ScopeFileSpecific:
			if cr.Scope.Document == doc {
				return cr.Target, true
			}
		case ScopeCommon:
			common, haveCommon = cr.Target, true
		}
	}
	return common, haveCommon
}
