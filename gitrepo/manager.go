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

	"chainguard.dev/relman/revision"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
	"golang.org/x/oauth2"
)

// RemoteName is the remote every clone tracks.
const RemoteName = "origin"

// URLFunc builds a remote URL from a fetch prefix and a full repository
// name. Tests substitute a function resolving to local paths.
type URLFunc func(remotePrefix, repoName string) string

// DefaultURL joins a fetch prefix and repository name the way manifest
// remotes are written, e.g. "ssh://git@github.com:/armmbed/meta-mbl.git".
func DefaultURL(remotePrefix, repoName string) string {
	return fmt.Sprintf("%s:/%s.git", remotePrefix, repoName)
}

// Manager performs tracked git operations against named repositories:
// cloning at a revision, creating refs, committing, pushing, and
// querying remote ref state.
type Manager struct {
	identity    string
	tokenSource oauth2.TokenSource
	auth        transport.AuthMethod
	urlFor      URLFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithTokenSource authenticates remote operations with OAuth2 access
// tokens over HTTP.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(m *Manager) { m.tokenSource = ts }
}

// WithAuth sets an explicit transport auth method (SSH keys and the
// like). Takes precedence over a token source.
func WithAuth(auth transport.AuthMethod) Option {
	return func(m *Manager) { m.auth = auth }
}

// WithURLFunc overrides remote URL construction.
func WithURLFunc(f URLFunc) Option {
	return func(m *Manager) { m.urlFor = f }
}

// NewManager constructs a Manager. Identity is used as the commit author
// name (and, when it lacks a domain, suffixed with @chainguard.dev).
func NewManager(_ context.Context, identity string, opts ...Option) (*Manager, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.New("identity cannot be empty")
	}

	m := &Manager{
		identity: identity,
		urlFor:   DefaultURL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// URL builds the remote URL for a repository.
func (m *Manager) URL(remotePrefix, repoName string) string {
	return m.urlFor(remotePrefix, repoName)
}

func (m *Manager) authMethod() (transport.AuthMethod, error) {
	if m.auth != nil {
		return m.auth, nil
	}
	if m.tokenSource == nil {
		return nil, nil
	}
	token, err := m.tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("getting token: %w", err)
	}
	return &githttp.BasicAuth{
		Username: "unused-when-using-access-tokens",
		Password: token.AccessToken,
	}, nil
}

// RemoteRefs lists the refs a remote advertises, keyed by fully
// qualified ref name.
func (m *Manager) RemoteRefs(ctx context.Context, url string) (map[string]plumbing.Hash, error) {
	auth, err := m.authMethod()
	if err != nil {
		return nil, err
	}

	rem := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: RemoteName,
		URLs: []string{url},
	})
	refs, err := rem.ListContext(ctx, &git.ListOptions{Auth: auth})
	if err != nil {
		return nil, fmt.Errorf("listing refs on %s: %w", url, err)
	}

	out := make(map[string]plumbing.Hash, len(refs))
	for _, ref := range refs {
		out[ref.Name().String()] = ref.Hash()
	}
	return out, nil
}

// RefExists reports whether rev exists on the remote at url. Branch and
// tag refs are looked up by exact name, short names in either namespace.
// Commit hashes are reported as existing: a remote does not advertise
// arbitrary hashes, reachability surfaces at clone time instead.
func (m *Manager) RefExists(ctx context.Context, url string, rev revision.Revision) (bool, error) {
	if rev.IsHash() {
		return true, nil
	}

	refs, err := m.RemoteRefs(ctx, url)
	if err != nil {
		return false, err
	}
	switch rev.Kind() {
	case revision.Branch, revision.Tag:
		_, ok := refs[string(rev)]
		return ok, nil
	default:
		if _, ok := refs[revision.BranchPrefix+string(rev)]; ok {
			return true, nil
		}
		_, ok := refs[revision.TagPrefix+string(rev)]
		return ok, nil
	}
}

// Clone clones the named repository from url into dir, checked out at
// rev. Short revisions are tried as a branch first and a tag second,
// manifest documents carry namespace-less names.
func (m *Manager) Clone(ctx context.Context, name, url, dir string, rev revision.Revision) (*Repo, error) {
	auth, err := m.authMethod()
	if err != nil {
		return nil, err
	}

	log := clog.FromContext(ctx)
	log.Infof("Cloning %s from %s into %s at %s", name, url, dir, rev)

	var handle *git.Repository
	switch rev.Kind() {
	case revision.Hash:
		handle, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
			URL:  url,
			Auth: auth,
		})
		if err != nil {
			return nil, fmt.Errorf("cloning %s: %w", name, err)
		}
		wt, err := handle.Worktree()
		if err != nil {
			return nil, fmt.Errorf("getting worktree: %w", err)
		}
		if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(string(rev))}); err != nil {
			return nil, fmt.Errorf("checking out %s at %s: %w", name, rev, err)
		}

	case revision.Branch, revision.Tag:
		handle, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
			URL:           url,
			ReferenceName: rev.ReferenceName(),
			SingleBranch:  true,
			Auth:          auth,
		})
		if err != nil {
			return nil, fmt.Errorf("cloning %s at %s: %w", name, rev, err)
		}

	default:
		handle, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
			URL:           url,
			ReferenceName: plumbing.NewBranchReferenceName(string(rev)),
			SingleBranch:  true,
			Auth:          auth,
		})
		if err != nil {
			log.Debugf("Clone of %s as branch %s failed (%v), retrying as tag", name, rev, err)
			handle, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
				URL:           url,
				ReferenceName: plumbing.NewTagReferenceName(string(rev)),
				SingleBranch:  true,
				Auth:          auth,
			})
			if err != nil {
				return nil, fmt.Errorf("cloning %s at %s (tried branch and tag): %w", name, rev, err)
			}
		}
	}

	return &Repo{
		manager:    m,
		name:       name,
		url:        url,
		dir:        dir,
		checkedOut: rev,
		handle:     handle,
	}, nil
}
