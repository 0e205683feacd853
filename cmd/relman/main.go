/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main implements relman, the release manager CLI. It reads an
// update specification, stages the requested refs and manifest rewrites
// locally, and pushes them across the repository constellation.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"chainguard.dev/relman/gitrepo"
	"chainguard.dev/relman/releaser"
	"chainguard.dev/relman/updatespec"
)

type config struct {
	// Workers bounds concurrent remote operations.
	Workers int `env:"RELMAN_WORKERS, default=8"`
	// Timeout bounds each batch of remote operations.
	Timeout time.Duration `env:"RELMAN_TIMEOUT, default=120s"`
	// Identity is the commit author for staged commits.
	Identity string `env:"RELMAN_IDENTITY, default=release-manager"`
	// Token authenticates remote operations over HTTP when set.
	Token string `env:"RELMAN_TOKEN"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newCommand().ExecuteContext(ctx); err != nil {
		if errors.Is(err, releaser.ErrAborted) {
			fmt.Fprintln(os.Stderr, "aborted by operator, no changes pushed")
			return
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		simulate      bool
		diagnostic    bool
		removeWorkDir bool
		verbose       bool
	)

	cmd := &cobra.Command{
		Use:   "relman <update-spec>",
		Short: "Release new refs across a manifest-managed repository constellation",
		Long: `relman reads an update specification (JSON or YAML), validates it
against the manifest documents of the root repository, stages new
branches and tags together with the rewritten manifests locally, and
pushes everything once the plan is confirmed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			log := clog.NewLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			ctx = clog.WithLogger(ctx, log)

			var cfg config
			if err := envconfig.Process(ctx, &cfg); err != nil {
				return fmt.Errorf("processing config: %w", err)
			}

			specPath := args[0]
			switch filepath.Ext(specPath) {
			case ".json", ".yaml", ".yml":
			default:
				return fmt.Errorf("update spec %q must be a .json, .yaml or .yml file", specPath)
			}
			spec, err := updatespec.Load(specPath)
			if err != nil {
				return err
			}

			var opts []gitrepo.Option
			if cfg.Token != "" {
				opts = append(opts, gitrepo.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})))
			}
			mgr, err := gitrepo.NewManager(ctx, cfg.Identity, opts...)
			if err != nil {
				return err
			}

			run, err := releaser.NewRun(mgr, releaser.Options{
				Simulate:      simulate,
				Confirm:       diagnostic,
				RemoveWorkDir: removeWorkDir,
				Workers:       cfg.Workers,
				Timeout:       cfg.Timeout,
			})
			if err != nil {
				return err
			}
			defer func() {
				if cerr := run.Close(); cerr != nil {
					log.Warnf("removing work directory: %v", cerr)
				}
			}()

			return run.Execute(ctx, spec)
		},
	}

	cmd.Flags().BoolVarP(&simulate, "simulate", "s", false, "stage everything locally, push nothing")
	cmd.Flags().BoolVarP(&diagnostic, "diagnostic", "d", false, "pause for confirmation before pushing")
	cmd.Flags().BoolVarP(&removeWorkDir, "remove-workdir", "r", false, "remove the work directory when done")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	return cmd
}
