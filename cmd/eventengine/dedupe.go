package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/krawlist/eventengine/internal/app"
	"github.com/krawlist/eventengine/internal/domain/model"
)

var (
	dedupePublish bool
	dedupeOutput  string
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe <candidates.yaml|json>",
	Short: "Cluster candidate records and write the review queue",
	Long:  "Reads a staging file of scraped candidates, clusters records describing the same occurrence, and writes merged records with confidence scores to the review queue file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(cfg)
		if err != nil {
			return err
		}
		defer engine.Close()

		output := dedupeOutput
		if output == "" {
			output = cfg.ReviewOutput
		}
		rep, pub, err := dedupeFile(cmd.Context(), engine, args[0], output, dedupePublish)
		if err != nil {
			return err
		}
		printDedupe(cmd.OutOrStdout(), rep, pub, output)
		return nil
	},
}

func init() {
	dedupeCmd.Flags().BoolVar(&dedupePublish, "publish", false, "write merged records to the catalog as pending review")
	dedupeCmd.Flags().StringVarP(&dedupeOutput, "output", "o", "", "review queue file (default review_output)")
	rootCmd.AddCommand(dedupeCmd)
}

// dedupeFile runs one deduplication batch over a staging file. The review
// queue is written to output unless it is empty.
func dedupeFile(ctx context.Context, engine *app.Engine, path, output string, publish bool) (*app.DedupeReport, *app.PublishReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read candidates: %w", err)
	}
	coll, err := model.DecodeCollection(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	rep, err := engine.Deduplicate(ctx, app.CandidatesFrom(coll))
	if err != nil {
		return nil, nil, err
	}
	rep.Source = path

	if output != "" {
		if err := writeJSONFile(output, rep); err != nil {
			return rep, nil, err
		}
	}
	if !publish {
		return rep, nil, nil
	}
	pub, err := engine.Publish(ctx, rep)
	if err != nil {
		return rep, nil, err
	}
	return rep, pub, nil
}

// writeJSONFile writes v as indented JSON through a temp file in the target
// directory.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*.json")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func printDedupe(out io.Writer, rep *app.DedupeReport, pub *app.PublishReport, output string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CLUSTER\tDATE\tTITLE\tMEMBERS\tCONFIDENCE\tREVIEW")
	for _, item := range rep.Review {
		review := ""
		if item.RequiresReview {
			review = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\t%s\n",
			item.ClusterID, item.Date, truncate(item.Title, 48), item.DuplicateCount, item.Confidence, review)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\n%d records, %d clusters, %d exact duplicates, %d fuzzy matches, %d parse failures, %d need review\n",
		rep.Stats.Records, rep.Stats.Clusters, rep.Stats.ExactDuplicates, rep.Stats.FuzzyMatches,
		len(rep.ParseFailures), len(rep.NeedsReview()))
	if output != "" {
		_, _ = fmt.Fprintf(out, "review queue written to %s\n", output)
	}
	if pub != nil {
		_, _ = fmt.Fprintf(out, "published: %d created, %d skipped, %d failed\n", pub.Created, pub.Skipped, pub.Failed)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
