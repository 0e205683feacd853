/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package releaser

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// summaryTable creates a table writer with the formatting shared by all
// run reports.
func summaryTable(headers []string, w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		MaxWidth: 100,
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{
				Left:   tw.On,
				Top:    tw.Off,
				Right:  tw.On,
				Bottom: tw.Off,
			},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

// report renders the per-ref outcome table, the ordered event log, and
// the run footer (elapsed time, work directory) to the configured
// output.
func (r *Run) report() {
	w := r.opts.Out

	outcomes := r.Outcomes()
	sort.SliceStable(outcomes, func(i, j int) bool {
		if outcomes[i].Document != outcomes[j].Document {
			return outcomes[i].Document < outcomes[j].Document
		}
		return outcomes[i].Repo < outcomes[j].Repo
	})

	fmt.Fprintf(w, "\n## Release summary\n\n")
	table := summaryTable([]string{"REPOSITORY", "DOCUMENT", "CLASSIFICATION", "REF", "OUTCOME", "DETAILS"}, w)
	for _, o := range outcomes {
		details := ""
		if o.Err != nil {
			details = o.Err.Error()
		}
		_ = table.Append([]string{
			o.Repo,
			o.Document,
			o.Class.String(),
			o.Ref.Short(),
			o.State.String(),
			details,
		})
	}
	_ = table.Render()

	if events := r.Events(); len(events) > 0 {
		fmt.Fprintf(w, "\n## Events\n\n")
		for i, ev := range events {
			fmt.Fprintf(w, "%3d. %s\n", i+1, ev)
		}
	}

	fmt.Fprintf(w, "\nCompleted in %s\n", time.Since(r.started).Round(time.Millisecond))
	if r.opts.RemoveWorkDir {
		fmt.Fprintf(w, "Work directory will be removed\n")
	} else {
		fmt.Fprintf(w, "Work directory kept at %s\n", r.workDir)
	}
}
