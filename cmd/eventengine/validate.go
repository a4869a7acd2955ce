package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/krawlist/eventengine/internal/app"
)

var errInvalidTemplates = errors.New("invalid recurrence rules")

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the recurrence rules of all templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(cfg)
		if err != nil {
			return err
		}
		defer engine.Close()

		tpls, err := engine.Templates(cmd.Context())
		if err != nil {
			return err
		}
		if n := printValidation(cmd.OutOrStdout(), tpls); n > 0 {
			return fmt.Errorf("%w: %d template(s)", errInvalidTemplates, n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// printValidation lists findings per template and returns the number of
// invalid ones.
func printValidation(out io.Writer, tpls []app.TemplateReport) int {
	invalid := 0
	for _, t := range tpls {
		state := "ok"
		switch {
		case !t.Validation.Enabled:
			state = "disabled"
		case !t.Validation.Valid():
			state = "INVALID"
			invalid++
		}
		_, _ = fmt.Fprintf(out, "%-8s %s %s (%s)\n", state, t.Date, t.Title, t.Target)
		for _, e := range t.Validation.Errors {
			_, _ = fmt.Fprintf(out, "         error: %s\n", e)
		}
		for _, w := range t.Validation.Warnings {
			_, _ = fmt.Fprintf(out, "         warning: %s\n", w)
		}
	}
	_, _ = fmt.Fprintf(out, "\n%d templates, %d invalid\n", len(tpls), invalid)
	return invalid
}
