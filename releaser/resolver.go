/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package releaser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5/plumbing"
	"golang.org/x/sync/errgroup"

	"chainguard.dev/relman/gitrepo"
	"chainguard.dev/relman/manifest"
	"chainguard.dev/relman/revision"
	"chainguard.dev/relman/updatespec"
)

// Entry is one planned mutation: a repository, the manifest document it
// was resolved from (nil for external scope), and the ref work to do.
type Entry struct {
	Repo  string
	Class Classification
	// Document is the manifest document this entry rewrites. Nil for
	// external-scope entries.
	Document *manifest.Document
	// URL is the resolved fetch URL.
	URL string
	// Source is the checkout point the new ref branches from.
	Source revision.Revision
	// Target is the ref to create (or, for non-Arm repositories, to
	// validate and adopt).
	Target revision.Revision
	// Create is true when the target ref must not exist yet and will be
	// created. False means validate-only: the ref must already exist.
	Create bool
	// IsRoot marks the root manifest repository entry.
	IsRoot bool
	// IsLinked marks the repository holding the linked-repositories
	// file.
	IsLinked bool

	// Dir is the clone destination under the run's work directory.
	Dir string

	clone *gitrepo.Repo
	ref   plumbing.ReferenceName
}

// DocName returns the document name the entry belongs to, or the
// external scope marker.
func (e *Entry) DocName() string {
	if e.Document == nil {
		return updatespec.ExternalKey
	}
	return e.Document.Name
}

// Plan is the resolved, preflighted shape of a run: the cloned root
// manifest repository, its documents, and every mutation entry.
type Plan struct {
	Spec      *updatespec.Spec
	Root      *gitrepo.Repo
	Documents []*manifest.Document
	Entries   []*Entry
}

func shortName(repo string) string {
	return (&manifest.Project{Name: repo}).ShortName()
}

// Resolve clones the root manifest repository at the requested source
// revision, loads its manifest documents, cross-validates the update
// specification against them, classifies every touched repository, and
// preflights the remotes. All cross-validation violations are reported
// together; the first remote error aborts.
func (r *Run) Resolve(ctx context.Context, spec *updatespec.Spec) (*Plan, error) {
	log := clog.FromContext(ctx)
	rules := r.opts.Rules

	root := spec.Root()
	rootURL := r.mgr.URL(rules.ExternalRemote, root.Repo)
	rootDir := filepath.Join(r.workDir, shortName(root.Repo))

	log.Infof("cloning root manifest repository %s at %s", root.Repo, root.Source)
	rootClone, err := r.mgr.Clone(ctx, root.Repo, rootURL, rootDir, root.Source)
	if err != nil {
		return nil, fmt.Errorf("cloning root manifest repository: %w", err)
	}

	docs, err := manifest.LoadDir(rootDir)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("root manifest repository %s contains no manifest documents", root.Repo)
	}

	plan := &Plan{Spec: spec, Root: rootClone, Documents: docs}
	if err := r.buildEntries(plan); err != nil {
		return nil, err
	}
	if err := r.preflight(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// buildEntries cross-validates the spec against the loaded documents and
// materializes the entry list. Violations are aggregated.
func (r *Run) buildEntries(plan *Plan) error {
	rules := r.opts.Rules
	spec := plan.Spec

	byDoc := make(map[string]*manifest.Document, len(plan.Documents))
	inAnyDoc := make(map[string]bool)
	for _, d := range plan.Documents {
		byDoc[d.Name] = d
		for _, p := range d.Projects() {
			inAnyDoc[p.Name] = true
		}
	}

	var violations []error
	for _, cr := range spec.Requests {
		switch cr.Scope.Kind {
		case updatespec.ScopeFileSpecific:
			doc, ok := byDoc[cr.Scope.Document]
			if !ok {
				violations = append(violations, fmt.Errorf("scope %q: no such manifest document", cr.Scope.Document))
				continue
			}
			if _, ok := doc.Project(cr.Repo); !ok {
				violations = append(violations, fmt.Errorf("repository %q is not referenced by manifest document %q", cr.Repo, cr.Scope.Document))
			}
		case updatespec.ScopeCommon:
			if !inAnyDoc[cr.Repo] {
				violations = append(violations, fmt.Errorf("repository %q (%s) is not referenced by any manifest document", cr.Repo, updatespec.CommonKey))
			}
		case updatespec.ScopeExternal:
			if cr.Repo != spec.RootRepo && inAnyDoc[cr.Repo] {
				violations = append(violations, fmt.Errorf("repository %q (%s) is referenced by a manifest document", cr.Repo, updatespec.ExternalKey))
			}
		}
	}

	// The root and linked repositories receive a commit on the new ref,
	// which only works on a branch.
	if root := spec.Root(); root.Target.Kind() != revision.Branch {
		violations = append(violations, fmt.Errorf("root repository %q target %q must be a branch ref", root.Repo, root.Target))
	}
	for _, cr := range spec.Requests {
		if cr.Repo == rules.LinkedRepo && cr.Target.Kind() != revision.Branch {
			violations = append(violations, fmt.Errorf("linked repository %q target %q must be a branch ref", cr.Repo, cr.Target))
		}
	}

	if len(violations) > 0 {
		return fmt.Errorf("update specification does not match manifest state:\n%w", errors.Join(violations...))
	}

	// One entry per (document, repository) the spec touches.
	for _, doc := range plan.Documents {
		for _, p := range doc.Projects() {
			target, ok := spec.Target(doc.Name, p.Name)
			if !ok {
				continue
			}
			fetch, err := doc.Fetch(p)
			if err != nil {
				return err
			}
			class := ClassNonArmMRR
			if rules.IsArmMRR(p) {
				class = ClassArmMRR
			}
			plan.Entries = append(plan.Entries, &Entry{
				Repo:     p.Name,
				Class:    class,
				Document: doc,
				URL:      r.mgr.URL(fetch, p.Name),
				Source:   doc.EffectiveRevision(p),
				Target:   target,
				Create:   class == ClassArmMRR,
				IsLinked: p.Name == rules.LinkedRepo,
				Dir:      filepath.Join(r.workDir, doc.Name, p.ShortName()),
			})
		}
	}
	for _, cr := range spec.ExternalRequests() {
		e := &Entry{
			Repo:   cr.Repo,
			Class:  ClassExternal,
			URL:    r.mgr.URL(rules.ExternalRemote, cr.Repo),
			Source: cr.Source,
			Target: cr.Target,
			Create: true,
			IsRoot: cr.Repo == spec.RootRepo,
			Dir:    filepath.Join(r.workDir, shortName(cr.Repo)),
		}
		if e.IsRoot {
			e.Dir = plan.Root.Dir()
			e.clone = plan.Root
		}
		plan.Entries = append(plan.Entries, e)
	}
	sort.SliceStable(plan.Entries, func(i, j int) bool {
		a, b := plan.Entries[i], plan.Entries[j]
		if a.DocName() != b.DocName() {
			return a.DocName() < b.DocName()
		}
		return a.Repo < b.Repo
	})
	return nil
}

// preflight checks every remote exactly once per entry: target refs to
// be created must not exist (collision), targets of non-Arm
// repositories must already exist. Failures are aggregated so the
// operator sees the whole picture before fixing the specification.
func (r *Run) preflight(ctx context.Context, plan *Plan) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	var mu sync.Mutex
	var violations []error

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.opts.Workers)
	for _, e := range plan.Entries {
		eg.Go(func() error {
			exists, err := r.mgr.RefExists(ctx, e.URL, e.Target)
			if err != nil {
				return fmt.Errorf("%s: listing refs: %w", e.Repo, err)
			}
			switch {
			case e.Create && exists:
				mu.Lock()
				violations = append(violations, fmt.Errorf("%s: target ref %q already exists on the remote", e.Repo, e.Target))
				mu.Unlock()
			case !e.Create && !exists:
				mu.Lock()
				violations = append(violations, fmt.Errorf("%s: target ref %q does not exist on the remote", e.Repo, e.Target))
				mu.Unlock()
			case !e.Create:
				r.record(Outcome{
					Repo:     e.Repo,
					Document: e.DocName(),
					Class:    e.Class,
					State:    OutcomeValidated,
					Ref:      e.Target,
				})
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	if len(violations) > 0 {
		return fmt.Errorf("remote preflight failed:\n%w", errors.Join(violations...))
	}
	return nil
}
