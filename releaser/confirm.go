/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package releaser

import (
	"context"

	"github.com/AlecAivazis/survey/v2"
)

// Confirmer answers the single pre-push checkpoint. Declining leaves
// every staged change local and aborts the run cleanly.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// TerminalConfirmer asks the operator on the terminal.
type TerminalConfirmer struct{}

func (TerminalConfirmer) Confirm(_ context.Context, prompt string) (bool, error) {
	proceed := false
	q := &survey.Confirm{
		Message: prompt,
		Default: false,
	}
	if err := survey.AskOne(q, &proceed); err != nil {
		return false, err
	}
	return proceed, nil
}

// staticConfirmer answers without prompting. Used in tests.
type staticConfirmer bool

func (c staticConfirmer) Confirm(context.Context, string) (bool, error) {
	return bool(c), nil
}
