/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chainguard.dev/relman/revision"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Repo is a working copy produced by Manager.Clone. A working copy is
// exclusive to one worker for the duration of its operation.
type Repo struct {
	manager    *Manager
	name       string
	url        string
	dir        string
	checkedOut revision.Revision
	handle     *git.Repository
}

// Name returns the full repository name, e.g. "armmbed/meta-mbl".
func (r *Repo) Name() string { return r.name }

// URL returns the remote URL the repository was cloned from.
func (r *Repo) URL() string { return r.url }

// Dir returns the working copy path.
func (r *Repo) Dir() string { return r.dir }

// CheckedOut returns the revision the clone was created at.
func (r *Repo) CheckedOut() revision.Revision { return r.checkedOut }

// Head resolves the current HEAD commit.
func (r *Repo) Head() (plumbing.Hash, error) {
	ref, err := r.handle.Head()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolving HEAD of %s: %w", r.name, err)
	}
	return ref.Hash(), nil
}

// Branch returns the ref name of the currently checked-out branch.
func (r *Repo) Branch() (plumbing.ReferenceName, error) {
	ref, err := r.handle.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD of %s: %w", r.name, err)
	}
	if !ref.Name().IsBranch() {
		return "", fmt.Errorf("%s has a detached HEAD", r.name)
	}
	return ref.Name(), nil
}

// CreateRef creates the target branch or tag at the current HEAD. New
// branches are checked out so subsequent commits land on them. The
// returned name is the fully qualified ref to push.
func (r *Repo) CreateRef(ctx context.Context, target revision.Revision) (plumbing.ReferenceName, error) {
	head, err := r.Head()
	if err != nil {
		return "", err
	}

	log := clog.FromContext(ctx)
	switch target.Kind() {
	case revision.Branch:
		refName := target.ReferenceName()
		if err := r.handle.Storer.SetReference(plumbing.NewHashReference(refName, head)); err != nil {
			return "", fmt.Errorf("creating branch %s on %s: %w", target, r.name, err)
		}
		wt, err := r.handle.Worktree()
		if err != nil {
			return "", fmt.Errorf("getting worktree: %w", err)
		}
		if err := wt.Checkout(&git.CheckoutOptions{Branch: refName}); err != nil {
			return "", fmt.Errorf("checking out branch %s on %s: %w", target, r.name, err)
		}
		log.Infof("Created branch %s at %s on %s", target.Short(), head, r.name)
		return refName, nil

	case revision.Tag:
		// nil options make a lightweight tag.
		if _, err := r.handle.CreateTag(target.Short(), head, nil); err != nil {
			return "", fmt.Errorf("creating tag %s on %s: %w", target, r.name, err)
		}
		log.Infof("Created tag %s at %s on %s", target.Short(), head, r.name)
		return target.ReferenceName(), nil
	}
	return "", fmt.Errorf("target %q on %s is not a creatable ref", target, r.name)
}

// CommitTracked stages every modified or deleted tracked file and
// commits. Untracked files (backup files in particular) are left alone.
// committed is false when the working tree had no tracked changes.
func (r *Repo) CommitTracked(ctx context.Context, message string) (hash plumbing.Hash, committed bool, err error) {
	wt, err := r.handle.Worktree()
	if err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("getting worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("getting status: %w", err)
	}

	staged := 0
	for path, st := range status {
		switch st.Worktree {
		case git.Modified, git.Deleted:
			if _, err := wt.Add(path); err != nil {
				return plumbing.ZeroHash, false, fmt.Errorf("staging %s: %w", path, err)
			}
			staged++
		}
		if st.Staging == git.Added || st.Staging == git.Modified || st.Staging == git.Deleted {
			staged++
		}
	}
	if staged == 0 {
		return plumbing.ZeroHash, false, nil
	}

	identity := r.manager.identity
	email := identity
	if !strings.Contains(email, "@") {
		email = fmt.Sprintf("%s@chainguard.dev", email)
	}

	hash, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  identity,
			Email: email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("committing on %s: %w", r.name, err)
	}
	clog.FromContext(ctx).Infof("Committed %s on %s", hash, r.name)
	return hash, true, nil
}

// Push pushes the ref to origin. A ref that already exists on the remote
// at the same commit is success: a sibling worker creating the same
// release ref concurrently is tolerated, never clobbered.
func (r *Repo) Push(ctx context.Context, ref plumbing.ReferenceName) error {
	auth, err := r.manager.authMethod()
	if err != nil {
		return err
	}

	refSpec := gitconfig.RefSpec(fmt.Sprintf("%s:%s", ref, ref))
	clog.FromContext(ctx).Infof("Pushing %s to %s", refSpec, r.url)

	err = r.handle.PushContext(ctx, &git.PushOptions{
		RemoteName: RemoteName,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       auth,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		clog.FromContext(ctx).Infof("Ref %s already up to date on %s", ref, r.url)
		return nil
	case strings.Contains(err.Error(), "already exists"):
		clog.FromContext(ctx).Infof("Ref %s created concurrently on %s", ref, r.url)
		return nil
	default:
		return fmt.Errorf("pushing %s to %s: %w", ref, r.url, err)
	}
}
