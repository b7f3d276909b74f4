package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deep-saket/color-matching/internal/embedding"
	"github.com/deep-saket/color-matching/internal/segment"
)

// Build metadata variables, set by -ldflags at compile time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("swatch-matcher %s\n", Version)
		fmt.Printf("  Commit:       %s\n", CommitSHA)
		fmt.Printf("  Built:        %s\n", BuildDate)
		fmt.Printf("  Embedders:    %v\n", embedding.Keys())
		fmt.Printf("  Segmenters:   %v\n", segment.Keys())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
