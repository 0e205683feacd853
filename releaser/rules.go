/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package releaser

import (
	"fmt"

	"chainguard.dev/relman/linkedrepos"
	"chainguard.dev/relman/manifest"
	"chainguard.dev/relman/updatespec"
)

// Classification tags every repository in a plan. It decides whether a
// target ref must be freshly created or merely validated against the
// remote.
type Classification int

const (
	// ClassArmMRR is a manifest-referenced repository owned by the
	// trusted prefix and hosted on the trusted remote. Target refs are
	// created.
	ClassArmMRR Classification = iota
	// ClassNonArmMRR is a manifest-referenced repository outside the
	// trusted prefix. Target refs must already exist and are taken
	// as-is.
	ClassNonArmMRR
	// ClassExternal is a repository no manifest document references.
	// Target refs are created.
	ClassExternal
)

func (c Classification) String() string {
	switch c {
	case ClassArmMRR:
		return "arm-mrr"
	case ClassNonArmMRR:
		return "non-arm-mrr"
	case ClassExternal:
		return "external"
	}
	return fmt.Sprintf("Classification(%d)", int(c))
}

// Rules carries the constellation-specific constants: the root manifest
// repository anchoring every run, the ownership prefix and trusted
// remote that make a project an Arm MRR, and the linked-repositories
// pinning table.
type Rules struct {
	// RootRepo is the root manifest repository, required in the
	// external scope of every update specification.
	RootRepo string
	// OwnerPrefix is the repository owner marking Arm-managed
	// repositories, e.g. "armmbed".
	OwnerPrefix string
	// ManifestRemoteName is the manifest remote name that resolves to
	// the primary trusted host.
	ManifestRemoteName string
	// ExternalRemote is the fetch prefix for external-scope
	// repositories, which carry no manifest remote of their own.
	ExternalRemote string

	// LinkedRepo is the repository holding the linked-repositories
	// file.
	LinkedRepo string
	// LinkedFile is the path of that file inside LinkedRepo.
	LinkedFile string
	// LinkedPins maps tracked configuration keys to the repository
	// identifier whose new revision the key pins.
	LinkedPins map[string]string
}

// DefaultRules returns the rules for the mbl constellation.
func DefaultRules() Rules {
	return Rules{
		RootRepo:           updatespec.DefaultRootRepo,
		OwnerPrefix:        "armmbed",
		ManifestRemoteName: "github",
		ExternalRemote:     "ssh://git@github.com",
		LinkedRepo:         "armmbed/meta-mbl",
		LinkedFile:         linkedrepos.DefaultPath,
		LinkedPins: map[string]string{
			"SRCREV_mbl-core": "armmbed/mbl-core",
		},
	}
}

// IsArmMRR reports whether a manifest project entry is an Arm-managed
// manifest-referenced repository.
func (r Rules) IsArmMRR(p *manifest.Project) bool {
	return p.Owner() == r.OwnerPrefix && p.RemoteName == r.ManifestRemoteName
}
