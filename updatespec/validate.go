/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package updatespec

import (
	"errors"
	"fmt"
	"slices"

	"chainguard.dev/relman/revision"
)

// repoScopes tracks where a repository identifier has already appeared,
// so overlap violations are caught in O(1) per insertion.
type repoScopes struct {
	external bool
	common   bool
	docs     []string
}

// build normalizes raw scopes into change requests, enforcing the
// cross-cutting rules. Every violation found is reported, not just the
// first.
func build(scopes []rawScope, opts ...Option) (*Spec, error) {
	cfg := config{rootRepo: DefaultRootRepo}
	for _, opt := range opts {
		opt(&cfg)
	}

	spec := &Spec{RootRepo: cfg.rootRepo}
	index := map[string]*repoScopes{}
	var errs []error

	sawExternal := false
	sawRoot := false

	// Scope and repository duplication is checked here rather than in
	// the decoders, so every input format gets the same rules.
	seenScopes := map[string]bool{}

	for _, sc := range scopes {
		if seenScopes[sc.name] {
			errs = append(errs, fmt.Errorf("scope %q appears more than once", sc.name))
		}
		seenScopes[sc.name] = true

		var scope Scope
		switch sc.name {
		case CommonKey:
			scope = Common()
		case ExternalKey:
			scope = External()
			sawExternal = true
		default:
			scope = FileSpecific(sc.name)
		}

		for _, e := range sc.entries {
			seen := index[e.repo]
			if seen == nil {
				seen = &repoScopes{}
				index[e.repo] = seen
			}

			switch scope.Kind {
			case ScopeExternal:
				if seen.external {
					errs = append(errs, fmt.Errorf("repository %q appears more than once in %s", e.repo, ExternalKey))
				}
				if seen.common || len(seen.docs) > 0 {
					errs = append(errs, fmt.Errorf("repository %q appears in %s but also in another scope", e.repo, ExternalKey))
				}
				seen.external = true
			case ScopeCommon:
				if seen.common {
					errs = append(errs, fmt.Errorf("repository %q appears more than once in %s", e.repo, CommonKey))
				}
				if seen.external {
					errs = append(errs, fmt.Errorf("repository %q appears in both %s and %s", e.repo, ExternalKey, CommonKey))
				}
				if len(seen.docs) > 0 {
					errs = append(errs, fmt.Errorf("repository %q appears in %s but also in file-specific scope %q", e.repo, CommonKey, seen.docs[0]))
				}
				seen.common = true
			case ScopeFileSpecific:
				if slices.Contains(seen.docs, scope.Document) {
					errs = append(errs, fmt.Errorf("repository %q appears more than once in file-specific scope %q", e.repo, scope.Document))
				}
				if seen.external {
					errs = append(errs, fmt.Errorf("repository %q appears in %s but also in file-specific scope %q", e.repo, ExternalKey, scope.Document))
				}
				if seen.common {
					errs = append(errs, fmt.Errorf("repository %q appears in %s but also in file-specific scope %q", e.repo, CommonKey, scope.Document))
				}
				// The same repository across distinct file-specific
				// scopes is the one permitted duplication.
				seen.docs = append(seen.docs, scope.Document)
			}

			cr, entryErrs := buildRequest(scope, e)
			if len(entryErrs) > 0 {
				errs = append(errs, entryErrs...)
				continue
			}
			if scope.Kind == ScopeExternal && e.repo == cfg.rootRepo {
				sawRoot = true
			}
			spec.Requests = append(spec.Requests, cr)
		}
	}

	if !sawExternal {
		errs = append(errs, fmt.Errorf("scope %s is missing, there is no checkout anchor without it", ExternalKey))
	} else if !sawRoot {
		errs = append(errs, fmt.Errorf("root manifest repository %q is missing from scope %s", cfg.rootRepo, ExternalKey))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid update specification:\n%w", errors.Join(errs...))
	}
	return spec, nil
}

func buildRequest(scope Scope, e rawEntry) (ChangeRequest, []error) {
	var errs []error
	cr := ChangeRequest{Repo: e.repo, Scope: scope}

	if scope.Kind == ScopeExternal {
		if len(e.values) != 2 {
			return cr, []error{fmt.Errorf("scope %s, repository %q: want a [source, target] pair, got %d value(s)", scope, e.repo, len(e.values))}
		}
		cr.Source = revision.Revision(e.values[0])
		cr.Target = revision.Revision(e.values[1])

		if err := cr.Source.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("scope %s, repository %q: source: %w", scope, e.repo, err))
		}
		if err := cr.Target.ValidateTarget(); err != nil {
			errs = append(errs, fmt.Errorf("scope %s, repository %q: target: %w", scope, e.repo, err))
		}
		if cr.Source == cr.Target {
			errs = append(errs, fmt.Errorf("scope %s, repository %q: source and target are both %q", scope, e.repo, cr.Source))
		}
		return cr, errs
	}

	if len(e.values) != 1 {
		return cr, []error{fmt.Errorf("scope %s, repository %q: want a single target revision, got %d values", scope, e.repo, len(e.values))}
	}
	cr.Target = revision.Revision(e.values[0])
	if err := cr.Target.ValidateTarget(); err != nil {
		errs = append(errs, fmt.Errorf("scope %s, repository %q: target: %w", scope, e.repo, err))
	}
	return cr, errs
}
