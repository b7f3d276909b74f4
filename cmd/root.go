package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	settingsPath string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "swatch-matcher",
	Short: "Match hair colour in portraits against a catalog of swatch images",
	Long: `Swatch Matcher isolates the hair region of a portrait, embeds patches of it
and reports the reference swatch with the highest cosine similarity, or
NO_MATCH when nothing clears the similarity threshold.

Configuration comes from built-in defaults, an optional YAML settings file
(--config or SWATCH_SETTINGS) and environment variables, in that order.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&settingsPath, "config", "", "Path to a YAML settings file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
