package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/krawlist/eventengine/internal/adapters/ics"
	"github.com/krawlist/eventengine/pkg/logger"
)

var (
	icsOutput string
	icsName   string
)

var exportCmd = &cobra.Command{
	Use:   "export-ics",
	Short: "Write the catalog as an iCalendar feed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(cfg)
		if err != nil {
			return err
		}
		defer engine.Close()

		records, err := engine.Records(cmd.Context())
		if err != nil {
			return err
		}

		output := icsOutput
		if output == "" {
			output = cfg.ICSOutput
		}
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create %s: %w", output, err)
		}
		defer f.Close()

		exp := ics.NewExporter(
			ics.WithName(icsName),
			ics.WithLocation(cfg.Location()),
			ics.WithLogger(logger.Get().Named("ics")),
		)
		stats, err := exp.Write(cmd.Context(), f, records)
		if err != nil {
			return fmt.Errorf("write %s: %w", output, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("write %s: %w", output, err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d events (%d recurring), %d skipped\n",
			output, stats.Events, stats.Recurring, stats.Skipped)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&icsOutput, "output", "o", "", "calendar file (default ics_output)")
	exportCmd.Flags().StringVar(&icsName, "name", "Veranstaltungen", "calendar display name")
	rootCmd.AddCommand(exportCmd)
}
