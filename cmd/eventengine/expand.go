package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/krawlist/eventengine/internal/app"
)

var errWritesFailed = errors.New("some instances could not be written")

var (
	expandDryRun bool
	expandReport string
)

var expandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Materialize instances of recurring templates",
	Long:  "Scans the catalog for templates with a recurrence rule and writes every missing instance inside the lookahead window. Repeated runs never create duplicates.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(cfg)
		if err != nil {
			return err
		}
		defer engine.Close()

		var opts []app.ExpandOption
		if expandDryRun {
			opts = append(opts, app.DryRun())
		}
		rep, err := engine.Expand(cmd.Context(), opts...)
		if err != nil {
			return err
		}
		if expandReport != "" {
			if err := writeJSONFile(expandReport, rep); err != nil {
				return err
			}
		}
		printExpansion(cmd.OutOrStdout(), rep)
		if rep.Stats.Failed > 0 {
			return fmt.Errorf("%w: %d failed", errWritesFailed, rep.Stats.Failed)
		}
		return nil
	},
}

func init() {
	expandCmd.Flags().BoolVar(&expandDryRun, "dry-run", false, "plan instances without writing them")
	expandCmd.Flags().StringVar(&expandReport, "report", "", "also write the run report as JSON to this file")
	rootCmd.AddCommand(expandCmd)
}

func printExpansion(out io.Writer, rep *app.ExpansionReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TEMPLATE\tDATE\tRULE\tOCCURRENCES\tSTATUS")
	for _, t := range rep.Templates {
		status := "ok"
		switch {
		case !t.Validation.Enabled:
			status = "disabled"
		case !t.Validation.Valid():
			status = "invalid"
		case t.Truncated:
			status = "truncated"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			truncate(t.Title, 40), t.Date, t.RRule, t.Occurrences, status)
	}
	_ = w.Flush()

	for _, r := range rep.Results {
		if r.Outcome == app.OutcomeFailed {
			_, _ = fmt.Fprintf(out, "failed: %s %s (%s): %s\n", r.Date, r.Title, r.Hash, r.Error)
		}
	}
	for _, f := range rep.LoadFailures {
		_, _ = fmt.Fprintf(out, "unreadable: %s: %s\n", f.Target, f.Error)
	}

	mode := ""
	if rep.DryRun {
		mode = " (dry run)"
	}
	_, _ = fmt.Fprintf(out, "\n%s%s: scanned %d, templates %d (%d invalid), generated %d, created %d, skipped %d, failed %d\n",
		rep.Today, mode, rep.Stats.Scanned, rep.Stats.Templates, rep.Stats.InvalidTemplates,
		rep.Stats.Generated, rep.Stats.Created, rep.Stats.Skipped, rep.Stats.Failed)
}
