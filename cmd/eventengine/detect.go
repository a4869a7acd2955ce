package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/krawlist/eventengine/internal/domain/recurrence"
)

var detectMin int

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Suggest recurrence rules for regularly repeating events",
	Long:  "Groups catalog records by simplified title and venue and prints a recurring block for every group with regular spacing.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(cfg)
		if err != nil {
			return err
		}
		defer engine.Close()

		found, err := engine.Detect(cmd.Context(), detectMin)
		if err != nil {
			return err
		}
		return printSuggestions(cmd.OutOrStdout(), found)
	},
}

func init() {
	detectCmd.Flags().IntVar(&detectMin, "min", recurrence.DefaultMinOccurrences, "minimum number of dates per group")
	rootCmd.AddCommand(detectCmd)
}

type suggestionDoc struct {
	Title     string   `yaml:"title"`
	Location  string   `yaml:"location"`
	Seen      []string `yaml:"seen"`
	Recurring any      `yaml:"recurring"`
}

func printSuggestions(out io.Writer, found []recurrence.Suggestion) error {
	if len(found) == 0 {
		_, _ = fmt.Fprintln(out, "no recurring patterns found")
		return nil
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	for _, s := range found {
		doc := suggestionDoc{Title: s.Title, Location: s.Location, Recurring: s.Spec}
		for _, d := range s.Dates {
			doc.Seen = append(doc.Seen, d.String())
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode suggestion: %w", err)
		}
	}
	return enc.Close()
}
