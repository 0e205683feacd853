/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package releaser

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"

	"chainguard.dev/relman/linkedrepos"
	"chainguard.dev/relman/revision"
	"chainguard.dev/relman/updatespec"
)

// CommitMessage is used for every commit staged by a run.
const CommitMessage = "release manager automatic commit"

// Execute runs a release end to end: resolve and preflight, stage every
// change locally, pause at the confirmation checkpoint, then push. Push
// failures are independent: one failed push never withholds a sibling.
// Nothing pushed is ever rolled back, the summary reports exactly what
// landed.
func (r *Run) Execute(ctx context.Context, spec *updatespec.Spec) error {
	log := clog.FromContext(ctx)

	plan, err := r.Resolve(ctx, spec)
	if err != nil {
		return err
	}

	if err := r.stage(ctx, plan); err != nil {
		return err
	}

	if r.opts.Simulate {
		log.Infof("simulation mode, nothing will be pushed")
		r.skipAll(plan)
		r.report()
		return nil
	}
	if r.opts.Confirm {
		ok, err := r.opts.Confirmer.Confirm(ctx, r.describe(plan))
		if err != nil {
			return fmt.Errorf("confirmation prompt: %w", err)
		}
		if !ok {
			r.skipAll(plan)
			r.report()
			return ErrAborted
		}
	}

	failed := r.push(ctx, plan)
	r.report()
	if len(failed) > 0 {
		return fmt.Errorf("push failed for %d repository(ies): %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

// stage clones every repository that gets a new ref, creates the refs
// locally, rewrites the manifest documents, and patches and commits the
// linked-repositories file. Everything here is local and abortable.
func (r *Run) stage(ctx context.Context, plan *Plan) error {
	log := clog.FromContext(ctx)

	cloneCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	eg, cloneCtx := errgroup.WithContext(cloneCtx)
	eg.SetLimit(r.opts.Workers)
	for _, e := range plan.Entries {
		if !e.Create {
			continue
		}
		eg.Go(func() error {
			if e.clone == nil {
				log.Infof("cloning %s at %s", e.Repo, e.Source)
				clone, err := r.mgr.Clone(cloneCtx, e.Repo, e.URL, e.Dir, e.Source)
				if err != nil {
					return fmt.Errorf("%s: %w", e.Repo, err)
				}
				e.clone = clone
			}
			ref, err := e.clone.CreateRef(cloneCtx, e.Target)
			if err != nil {
				return fmt.Errorf("%s: %w", e.Repo, err)
			}
			e.ref = ref
			kind := eventCreateBranch
			if e.Target.Kind() == revision.Tag {
				kind = eventCreateTag
			}
			r.logEvent(kind, "%s on %s (%s)", e.Target.Short(), e.Repo, e.DocName())
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	// Manifest rewrites happen after the root's new branch exists, so
	// the commit below lands on it.
	for _, e := range plan.Entries {
		if e.Document == nil {
			continue
		}
		if _, err := e.Document.SetRevision(e.Repo, e.Target); err != nil {
			return err
		}
	}
	for _, d := range plan.Documents {
		if !d.Changed() {
			continue
		}
		backup, err := d.Write()
		if err != nil {
			return err
		}
		r.logEvent(eventBackupFile, "%s", backup)
		r.logEvent(eventModifyFile, "%s", d.Path)
	}
	if _, _, err := plan.Root.CommitTracked(ctx, CommitMessage); err != nil {
		return fmt.Errorf("committing manifest changes: %w", err)
	}

	return r.patchLinked(ctx, plan)
}

// patchLinked rewrites the linked-repositories pinning file in every
// staged clone of the linked repository, pinning each tracked key to
// the new head of its external repository, and commits the result.
func (r *Run) patchLinked(ctx context.Context, plan *Plan) error {
	rules := r.opts.Rules

	external := make(map[string]*Entry)
	for _, e := range plan.Entries {
		if e.Class == ClassExternal {
			external[e.Repo] = e
		}
	}

	pins := linkedrepos.Table{}
	for key, repo := range rules.LinkedPins {
		src, ok := external[repo]
		if !ok {
			continue
		}
		head, err := src.clone.Head()
		if err != nil {
			return fmt.Errorf("%s: %w", repo, err)
		}
		pin := linkedrepos.Pin{Value: head.String()}
		if src.Target.Kind() == revision.Branch {
			pin.Branch = src.Target.Short()
		}
		pins[key] = pin
	}
	if len(pins) == 0 {
		return nil
	}

	for _, e := range plan.Entries {
		if !e.IsLinked || !e.Create {
			continue
		}
		path := filepath.Join(e.Dir, rules.LinkedFile)
		changed, err := linkedrepos.Patch(path, pins)
		if err != nil {
			return fmt.Errorf("%s: %w", e.Repo, err)
		}
		if !changed {
			continue
		}
		r.logEvent(eventBackupFile, "%s", path+linkedrepos.BackupSuffix)
		r.logEvent(eventModifyFile, "%s", path)
		if _, _, err := e.clone.CommitTracked(ctx, CommitMessage); err != nil {
			return fmt.Errorf("%s: committing linked-repositories update: %w", e.Repo, err)
		}
	}
	return nil
}

// push publishes every staged ref. Failures are recorded per entry and
// never abort siblings. The root manifest repository pushes last, after
// every repository it references is already in place.
func (r *Run) push(ctx context.Context, plan *Plan) (failed []string) {
	pushCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	results := make(chan Outcome, len(plan.Entries))
	pushOne := func(e *Entry) Outcome {
		o := Outcome{Repo: e.Repo, Document: e.DocName(), Class: e.Class, Ref: e.Target}
		if err := e.clone.Push(pushCtx, e.ref); err != nil {
			o.State, o.Err = OutcomeFailed, err
			return o
		}
		r.logEvent(eventPush, "%s to %s", e.Target.Short(), e.Repo)
		o.State = OutcomeCreated
		return o
	}

	var eg errgroup.Group
	eg.SetLimit(r.opts.Workers)
	for _, e := range plan.Entries {
		if !e.Create || e.IsRoot {
			continue
		}
		eg.Go(func() error {
			results <- pushOne(e)
			return nil
		})
	}
	_ = eg.Wait()
	close(results)
	for o := range results {
		if o.State == OutcomeFailed {
			failed = append(failed, o.Repo)
		}
		r.record(o)
	}

	for _, e := range plan.Entries {
		if !e.IsRoot {
			continue
		}
		o := pushOne(e)
		if o.State == OutcomeFailed {
			failed = append(failed, o.Repo)
		}
		r.record(o)
	}
	sort.Strings(failed)
	return failed
}

// skipAll records a skipped outcome for every ref that was staged but
// not pushed.
func (r *Run) skipAll(plan *Plan) {
	for _, e := range plan.Entries {
		if !e.Create {
			continue
		}
		r.record(Outcome{
			Repo:     e.Repo,
			Document: e.DocName(),
			Class:    e.Class,
			State:    OutcomeSkipped,
			Ref:      e.Target,
		})
	}
}

// describe summarizes the staged work for the confirmation prompt.
func (r *Run) describe(plan *Plan) string {
	creates := 0
	for _, e := range plan.Entries {
		if e.Create {
			creates++
		}
	}
	docs := 0
	for _, d := range plan.Documents {
		if d.Changed() {
			docs++
		}
	}
	return fmt.Sprintf("Push %d new ref(s) and %d modified manifest document(s) for %s?",
		creates, docs, plan.Spec.RootRepo)
}
