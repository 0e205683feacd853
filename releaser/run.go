/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package releaser

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"chainguard.dev/relman/gitrepo"
	"chainguard.dev/relman/revision"
)

// ErrAborted is returned by Execute when the operator declines the
// pre-push confirmation. Nothing has been pushed at that point.
var ErrAborted = errors.New("aborted by user")

const (
	// DefaultWorkers bounds the clone and push pools.
	DefaultWorkers = 8
	// DefaultTimeout bounds each remote-facing batch.
	DefaultTimeout = 120 * time.Second
)

// Options configures a release run.
type Options struct {
	// Simulate stages every change locally but pushes nothing. The
	// work directory is kept for inspection unless RemoveWorkDir is
	// also set.
	Simulate bool
	// Confirm pauses after staging and asks the Confirmer before any
	// push happens.
	Confirm bool
	// RemoveWorkDir deletes the work directory on Close even when the
	// run failed.
	RemoveWorkDir bool

	// Workers bounds concurrent remote operations. Zero means
	// DefaultWorkers.
	Workers int
	// Timeout bounds each batch of remote operations. Zero means
	// DefaultTimeout.
	Timeout time.Duration

	// Rules holds the constellation constants. Zero value means
	// DefaultRules.
	Rules Rules

	// Confirmer answers the pre-push prompt when Confirm is set.
	Confirmer Confirmer
	// Out receives the summary report. Defaults to os.Stdout.
	Out io.Writer
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Rules.RootRepo == "" {
		o.Rules = DefaultRules()
	}
	if o.Confirmer == nil {
		o.Confirmer = TerminalConfirmer{}
	}
	if o.Out == nil {
		o.Out = os.Stdout
	}
	return o
}

// OutcomeState is the terminal state of a single planned ref.
type OutcomeState int

const (
	// OutcomeCreated means the ref was created and pushed.
	OutcomeCreated OutcomeState = iota
	// OutcomeValidated means the ref already existed on the remote and
	// was adopted without modification.
	OutcomeValidated
	// OutcomeSkipped means the push was withheld, either in simulate
	// mode or after a declined confirmation.
	OutcomeSkipped
	// OutcomeFailed means the push for this ref failed. Sibling pushes
	// proceed regardless.
	OutcomeFailed
)

func (s OutcomeState) String() string {
	switch s {
	case OutcomeCreated:
		return "created"
	case OutcomeValidated:
		return "validated"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "FAILED"
	}
	return fmt.Sprintf("OutcomeState(%d)", int(s))
}

// Outcome records what happened to one repository ref in one manifest
// document (or the external scope).
type Outcome struct {
	Repo     string
	Document string
	Class    Classification
	State    OutcomeState
	Ref      revision.Revision
	Err      error
}

// Run accumulates the mutable state of one release: a private work
// directory, an ordered event log, and the per-ref outcomes.
type Run struct {
	opts    Options
	mgr     *gitrepo.Manager
	workDir string
	started time.Time

	mu       sync.Mutex
	events   []string
	outcomes []Outcome
}

// NewRun prepares a release run: it creates the work directory and
// wires the git manager. Close must be called to release it.
func NewRun(mgr *gitrepo.Manager, opts Options) (*Run, error) {
	opts = opts.withDefaults()
	dir, err := os.MkdirTemp("", "relman-")
	if err != nil {
		return nil, fmt.Errorf("creating work directory: %w", err)
	}
	return &Run{
		opts:    opts,
		mgr:     mgr,
		workDir: dir,
		started: time.Now(),
	}, nil
}

// WorkDir returns the run's private work directory.
func (r *Run) WorkDir() string { return r.workDir }

// Close removes the work directory when the options ask for it.
// Otherwise the directory is left behind and its path is part of the
// summary.
func (r *Run) Close() error {
	if !r.opts.RemoveWorkDir {
		return nil
	}
	return os.RemoveAll(r.workDir)
}

// Event kinds recorded in the run log.
const (
	eventCreateBranch = "CREATE BRANCH"
	eventCreateTag    = "CREATE TAG"
	eventModifyFile   = "MODIFY FILE"
	eventBackupFile   = "CREATE BACKUP FILE"
	eventPush         = "PUSH"
)

func (r *Run) logEvent(kind, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("%s: %s", kind, fmt.Sprintf(format, args...)))
}

func (r *Run) record(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

// Outcomes returns a copy of the per-ref outcomes recorded so far.
func (r *Run) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// Events returns a copy of the ordered event log.
func (r *Run) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}
