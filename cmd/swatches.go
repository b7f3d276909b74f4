package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var swatchesCmd = &cobra.Command{
	Use:   "swatches",
	Short: "List the swatch catalog",
	Long: `Build the swatch catalog and list every swatch in match order with its
embedding dimension and label description.`,
	Args: cobra.NoArgs,
	RunE: runSwatches,
}

func init() {
	rootCmd.AddCommand(swatchesCmd)

	swatchesCmd.Flags().String("swatches", "", "Swatch directory (default from config, ./swatches)")
	swatchesCmd.Flags().Bool("json", false, "Output as JSON")
}

// SwatchOutput is one catalog entry.
type SwatchOutput struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Dim         int    `json:"dim"`
	Description string `json:"description,omitempty"`
}

func runSwatches(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dir := mustGetString(cmd, "swatches"); dir != "" {
		cfg.Swatches.Path = dir
	}
	jsonOutput := mustGetBool(cmd, "json")

	logger := newLogger(cfg)
	p, err := newPipeline(context.Background(), cfg, logger, !jsonOutput)
	if err != nil {
		return err
	}
	defer p.Close()

	out := make([]SwatchOutput, 0, p.catalog.Len())
	for i, s := range p.catalog.Swatches() {
		desc, _ := p.labels.Describe(s.Name)
		out = append(out, SwatchOutput{Index: i, Name: s.Name, Dim: len(s.Embedding), Description: desc})
	}

	if jsonOutput {
		return outputJSON(out)
	}

	fmt.Printf("Catalog: %s (%d swatches, provider %s)\n\n", cfg.Swatches.Path, p.catalog.Len(), p.catalog.Provider())
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tDIM\tDESCRIPTION")
	fmt.Fprintln(w, "-\t----\t---\t-----------")
	for _, s := range out {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", s.Index, s.Name, s.Dim, s.Description)
	}
	return w.Flush()
}
