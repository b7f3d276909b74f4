package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:   "match <image>...",
	Short: "Match portraits against the swatch catalog",
	Long: `Match one or more portrait images against the swatch catalog.

The catalog is built once from the swatch directory, then every image is
segmented and matched. Each result is the best swatch name and its cosine
similarity, NO_MATCH when the best score is below the threshold, or
"Error segmenting hair" when no hair region could be found.

Examples:
  # Match a single portrait
  swatch-matcher match portrait.jpg

  # Stricter threshold, overlapping 32x32 patches, 4 workers
  swatch-matcher match --threshold 0.96 --patch 32 --stride 16 --workers 4 *.jpg

  # Output as JSON
  swatch-matcher match portrait.jpg --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().Float64("threshold", 0, "Minimum cosine similarity for a match (default from config, 0.93)")
	matchCmd.Flags().String("patch", "", "Patch size as WxH or N (default from config, 64x64)")
	matchCmd.Flags().String("stride", "", "Patch stride as WxH or N (default: patch size)")
	matchCmd.Flags().Int("workers", 0, "Patches embedded concurrently (default from config, 1)")
	matchCmd.Flags().String("swatches", "", "Swatch directory (default from config, ./swatches)")
	matchCmd.Flags().String("segmenter", "", "Segmentation provider: none, heuristic, http")
	matchCmd.Flags().String("embedder", "", "Embedding provider: lab, http, clip")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
}

// MatchOutput is one line of match output.
type MatchOutput struct {
	File        string  `json:"file"`
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	Status      string  `json:"status,omitempty"`
	Description string  `json:"description,omitempty"`
	Error       string  `json:"error,omitempty"`
}

func runMatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("threshold") {
		cfg.Matching.Threshold = mustGetFloat64(cmd, "threshold")
	}
	if flags.Changed("patch") {
		size, err := parseSize(mustGetString(cmd, "patch"))
		if err != nil {
			return fmt.Errorf("--patch: %w", err)
		}
		cfg.Matching.PatchWidth, cfg.Matching.PatchHeight = size.Width, size.Height
	}
	if flags.Changed("stride") {
		size, err := parseSize(mustGetString(cmd, "stride"))
		if err != nil {
			return fmt.Errorf("--stride: %w", err)
		}
		cfg.Matching.StrideX, cfg.Matching.StrideY = size.Width, size.Height
	}
	if flags.Changed("workers") {
		cfg.Matching.Workers = mustGetInt(cmd, "workers")
	}
	if dir := mustGetString(cmd, "swatches"); dir != "" {
		cfg.Swatches.Path = dir
	}
	if seg := mustGetString(cmd, "segmenter"); seg != "" {
		cfg.Segmentation.Provider = seg
	}
	if emb := mustGetString(cmd, "embedder"); emb != "" {
		cfg.Embedding.Provider = emb
	}
	jsonOutput := mustGetBool(cmd, "json")

	logger := newLogger(cfg)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := newPipeline(ctx, cfg, logger, !jsonOutput)
	if err != nil {
		return err
	}
	defer p.Close()

	results := make([]MatchOutput, 0, len(args))
	var failed int
	for _, path := range args {
		out := MatchOutput{File: path}
		res, err := p.service.Match(ctx, path)
		if err != nil {
			out.Error = err.Error()
			failed++
		} else {
			out.Name, out.Score, out.Status = res.Name, res.Score, string(res.Status)
			out.Description, _ = p.labels.Describe(res.Name)
		}
		results = append(results, out)
	}

	if jsonOutput {
		if err := outputJSON(results); err != nil {
			return err
		}
	} else {
		printMatchResults(results)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(args))
	}
	return nil
}

func printMatchResults(results []MatchOutput) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tMATCH\tSCORE\tDESCRIPTION")
	fmt.Fprintln(w, "----\t-----\t-----\t-----------")
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(w, "%s\tERROR\t-\t%s\n", filepath.Base(r.File), r.Error)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%s\n", filepath.Base(r.File), r.Name, r.Score, r.Description)
	}
	w.Flush()
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
