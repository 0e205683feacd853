/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package releaser

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"chainguard.dev/relman/gitrepo"
	"chainguard.dev/relman/updatespec"
)

const testManifest = `<?xml version="1.0" encoding="UTF-8"?>
<manifest>
  <remote name="github" fetch="ssh://git@github.com"></remote>
  <default revision="master" remote="github"></default>
  <project name="armmbed/meta-mbl" path="layers/meta-mbl"></project>
  <project name="forkedorg/linux" path="kernel/linux" revision="v1.0"></project>
</manifest>
`

const testLinkedConf = `# Linked repositories
SRCREV_mbl-core = "0000000000000000000000000000000000000000"
`

// constellation is a set of local repositories standing in for the
// remotes of a release: the root manifest repository, the repositories
// its documents reference, and one external repository.
type constellation struct {
	mgr     *gitrepo.Manager
	remotes map[string]string
	heads   map[string]string
}

func newConstellation(t *testing.T) *constellation {
	t.Helper()

	c := &constellation{
		remotes: map[string]string{},
		heads:   map[string]string{},
	}
	c.addRemote(t, "armmbed/mbl-manifest", map[string]string{
		"default.xml": testManifest,
	})
	c.addRemote(t, "armmbed/meta-mbl", map[string]string{
		"conf/distro/mbl-linked-repositories.conf": testLinkedConf,
	})
	c.addRemote(t, "armmbed/mbl-core", map[string]string{
		"README.md": "mbl-core\n",
	})
	c.addRemote(t, "forkedorg/linux", map[string]string{
		"Makefile": "# kernel\n",
	})
	// The manifest pins linux to a tag that must already exist.
	c.addRef(t, "forkedorg/linux", "refs/tags/v1.0")
	c.addRef(t, "forkedorg/linux", "refs/tags/v2.0")

	mgr, err := gitrepo.NewManager(context.Background(), "releaser-test",
		gitrepo.WithURLFunc(func(_, repoName string) string {
			return c.remotes[repoName]
		}))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	c.mgr = mgr
	return c
}

func (c *constellation) addRemote(t *testing.T, name string, files map[string]string) {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit %s: %v", name, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree %s: %v", name, err)
	}
	for path, content := range files {
		full := filepath.Join(dir, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if _, err := wt.Add(path); err != nil {
			t.Fatalf("Add %s: %v", path, err)
		}
	}
	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("Commit %s: %v", name, err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("master"))); err != nil {
		t.Fatalf("SetReference %s: %v", name, err)
	}
	c.remotes[name] = dir
	c.heads[name] = hash.String()
}

func (c *constellation) addRef(t *testing.T, name, ref string) {
	t.Helper()
	repo, err := git.PlainOpen(c.remotes[name])
	if err != nil {
		t.Fatalf("PlainOpen %s: %v", name, err)
	}
	hash := plumbing.NewHash(c.heads[name])
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.ReferenceName(ref), hash)); err != nil {
		t.Fatalf("SetReference %s %s: %v", name, ref, err)
	}
}

// remoteRef resolves a ref on one of the fake remotes, or fails.
func (c *constellation) remoteRef(t *testing.T, name, ref string) plumbing.Hash {
	t.Helper()
	repo, err := git.PlainOpen(c.remotes[name])
	if err != nil {
		t.Fatalf("PlainOpen %s: %v", name, err)
	}
	got, err := repo.Reference(plumbing.ReferenceName(ref), true)
	if err != nil {
		t.Fatalf("%s has no ref %s: %v", name, ref, err)
	}
	return got.Hash()
}

func (c *constellation) refExists(t *testing.T, name, ref string) bool {
	t.Helper()
	repo, err := git.PlainOpen(c.remotes[name])
	if err != nil {
		t.Fatalf("PlainOpen %s: %v", name, err)
	}
	_, err = repo.Reference(plumbing.ReferenceName(ref), true)
	return err == nil
}

// fileAt reads a file out of the commit a remote ref points at.
func (c *constellation) fileAt(t *testing.T, name, ref, path string) string {
	t.Helper()
	repo, err := git.PlainOpen(c.remotes[name])
	if err != nil {
		t.Fatalf("PlainOpen %s: %v", name, err)
	}
	hash := c.remoteRef(t, name, ref)
	commit, err := repo.CommitObject(hash)
	if err != nil {
		t.Fatalf("CommitObject: %v", err)
	}
	f, err := commit.File(path)
	if err != nil {
		t.Fatalf("%s@%s has no file %s: %v", name, ref, path, err)
	}
	content, err := f.Contents()
	if err != nil {
		t.Fatalf("Contents: %v", err)
	}
	return content
}

func newTestRun(t *testing.T, c *constellation, opts Options) *Run {
	t.Helper()
	opts.Workers = 2
	opts.Timeout = 30 * time.Second
	opts.Out = &bytes.Buffer{}
	run, err := NewRun(c.mgr, opts)
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	t.Cleanup(func() {
		run.opts.RemoveWorkDir = true
		_ = run.Close()
	})
	return run
}

func parseSpec(t *testing.T, src string) *updatespec.Spec {
	t.Helper()
	spec, err := updatespec.ParseJSON([]byte(src))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	return spec
}

const fullSpec = `{
	"_external_": {
		"armmbed/mbl-manifest": ["refs/heads/master", "refs/heads/rel"],
		"armmbed/mbl-core": ["refs/heads/master", "refs/heads/rel"]
	},
	"_common_": {
		"armmbed/meta-mbl": "refs/heads/rel",
		"forkedorg/linux": "refs/tags/v2.0"
	}
}`

func TestExecuteEndToEnd(t *testing.T) {
	ctx := context.Background()
	c := newConstellation(t)
	run := newTestRun(t, c, Options{})

	if err := run.Execute(ctx, parseSpec(t, fullSpec)); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// The external repository got its branch at the source commit.
	if got := c.remoteRef(t, "armmbed/mbl-core", "refs/heads/rel"); got.String() != c.heads["armmbed/mbl-core"] {
		t.Errorf("mbl-core rel at %s, want %s", got, c.heads["armmbed/mbl-core"])
	}

	// The linked repository got a branch carrying the pin update.
	conf := c.fileAt(t, "armmbed/meta-mbl", "refs/heads/rel", "conf/distro/mbl-linked-repositories.conf")
	if !strings.Contains(conf, c.heads["armmbed/mbl-core"]) {
		t.Errorf("linked conf does not pin the new mbl-core head:\n%s", conf)
	}
	if !strings.Contains(conf, ";branch=rel;") {
		t.Errorf("linked conf does not pin the new branch:\n%s", conf)
	}

	// The root manifest got a branch with rewritten documents. The
	// arm repository pins the new branch, the forked one adopts the
	// validated tag.
	doc := c.fileAt(t, "armmbed/mbl-manifest", "refs/heads/rel", "default.xml")
	if !strings.Contains(doc, `name="armmbed/meta-mbl"`) || !strings.Contains(doc, `revision="rel"`) {
		t.Errorf("manifest does not pin meta-mbl to rel:\n%s", doc)
	}
	if !strings.Contains(doc, `revision="v2.0"`) {
		t.Errorf("manifest does not pin linux to v2.0:\n%s", doc)
	}

	// The pre-rewrite backup files stay out of the pushed commit.
	repo, err := git.PlainOpen(c.remotes["armmbed/mbl-manifest"])
	if err != nil {
		t.Fatalf("PlainOpen: %v", err)
	}
	commit, err := repo.CommitObject(c.remoteRef(t, "armmbed/mbl-manifest", "refs/heads/rel"))
	if err != nil {
		t.Fatalf("CommitObject: %v", err)
	}
	if _, err := commit.File("default.xml~"); err == nil {
		t.Error("backup file was committed")
	}

	wantStates := map[string]OutcomeState{
		"armmbed/mbl-manifest": OutcomeCreated,
		"armmbed/mbl-core":     OutcomeCreated,
		"armmbed/meta-mbl":     OutcomeCreated,
		"forkedorg/linux":      OutcomeValidated,
	}
	for _, o := range run.Outcomes() {
		want, ok := wantStates[o.Repo]
		if !ok {
			t.Errorf("unexpected outcome for %s", o.Repo)
			continue
		}
		if o.State != want {
			t.Errorf("%s outcome = %s, want %s", o.Repo, o.State, want)
		}
	}
}

func TestExecuteRefCollision(t *testing.T) {
	ctx := context.Background()
	c := newConstellation(t)
	c.addRef(t, "armmbed/mbl-core", "refs/heads/rel")
	run := newTestRun(t, c, Options{})

	err := run.Execute(ctx, parseSpec(t, fullSpec))
	if err == nil {
		t.Fatal("expected collision error")
	}
	if !strings.Contains(err.Error(), "armmbed/mbl-core") || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("error does not name the collision: %v", err)
	}

	// Nothing was pushed anywhere.
	if c.refExists(t, "armmbed/mbl-manifest", "refs/heads/rel") {
		t.Error("root manifest branch created despite aborted run")
	}
	if c.refExists(t, "armmbed/meta-mbl", "refs/heads/rel") {
		t.Error("meta-mbl branch created despite aborted run")
	}
}

func TestExecuteMissingValidatedRef(t *testing.T) {
	ctx := context.Background()
	c := newConstellation(t)
	run := newTestRun(t, c, Options{})

	spec := parseSpec(t, `{
		"_external_": {
			"armmbed/mbl-manifest": ["refs/heads/master", "refs/heads/rel"]
		},
		"_common_": {
			"forkedorg/linux": "refs/tags/v9.9"
		}
	}`)
	err := run.Execute(ctx, spec)
	if err == nil {
		t.Fatal("expected missing-ref error")
	}
	if !strings.Contains(err.Error(), "forkedorg/linux") || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("error does not name the missing ref: %v", err)
	}
}

func TestExecuteSimulate(t *testing.T) {
	ctx := context.Background()
	c := newConstellation(t)
	run := newTestRun(t, c, Options{Simulate: true})

	if err := run.Execute(ctx, parseSpec(t, fullSpec)); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	for _, repo := range []string{"armmbed/mbl-manifest", "armmbed/mbl-core", "armmbed/meta-mbl"} {
		if c.refExists(t, repo, "refs/heads/rel") {
			t.Errorf("%s: branch pushed in simulation mode", repo)
		}
	}

	// Staged refs are reported as skipped, validation still happened.
	states := map[OutcomeState]int{}
	for _, o := range run.Outcomes() {
		states[o.State]++
	}
	if states[OutcomeSkipped] != 3 || states[OutcomeValidated] != 1 {
		t.Errorf("outcome states = %v, want 3 skipped and 1 validated", states)
	}

	// The work directory holds the staged clones for inspection.
	if _, err := os.Stat(filepath.Join(run.WorkDir(), "mbl-manifest")); err != nil {
		t.Errorf("staged root clone missing: %v", err)
	}
}

func TestExecuteConfirmDeclined(t *testing.T) {
	ctx := context.Background()
	c := newConstellation(t)
	run := newTestRun(t, c, Options{Confirm: true, Confirmer: staticConfirmer(false)})

	err := run.Execute(ctx, parseSpec(t, fullSpec))
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("Execute = %v, want ErrAborted", err)
	}
	if c.refExists(t, "armmbed/mbl-core", "refs/heads/rel") {
		t.Error("branch pushed despite declined confirmation")
	}
}

func TestExecuteConfirmAccepted(t *testing.T) {
	ctx := context.Background()
	c := newConstellation(t)
	run := newTestRun(t, c, Options{Confirm: true, Confirmer: staticConfirmer(true)})

	if err := run.Execute(ctx, parseSpec(t, fullSpec)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !c.refExists(t, "armmbed/mbl-core", "refs/heads/rel") {
		t.Error("branch not pushed after accepted confirmation")
	}
}
