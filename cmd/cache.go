package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deep-saket/color-matching/internal/cache/postgres"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the PostgreSQL swatch embedding cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cached embedding counts and applied migrations",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete cached embeddings of the configured embedding provider",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	cacheStatsCmd.Flags().Bool("json", false, "Output as JSON")
}

// CacheStats summarises the PostgreSQL cache.
type CacheStats struct {
	Provider   string   `json:"provider"`
	Count      int      `json:"count"`
	Total      int      `json:"total_count"`
	Migrations []string `json:"migrations"`
}

func openCacheRepository(ctx context.Context) (*postgres.Pool, *postgres.EmbeddingRepository, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, "", err
	}
	if cfg.Database.URL == "" {
		return nil, nil, "", errors.New("DATABASE_URL environment variable is required")
	}
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, nil, "", err
	}
	pool, err := postgres.Open(ctx, &cfg.Database, newLogger(cfg))
	if err != nil {
		return nil, nil, "", err
	}
	return pool, postgres.NewEmbeddingRepository(pool), embedder.Name(), nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	pool, repo, provider, err := openCacheRepository(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	stats := CacheStats{Provider: provider}
	if stats.Count, err = repo.Count(ctx, provider); err != nil {
		return err
	}
	if stats.Total, err = repo.Count(ctx, ""); err != nil {
		return err
	}
	if stats.Migrations, err = pool.MigrationsApplied(ctx); err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(stats)
	}
	fmt.Printf("Provider:    %s\n", stats.Provider)
	fmt.Printf("Embeddings:  %d (%d across all providers)\n", stats.Count, stats.Total)
	fmt.Printf("Migrations:  %d applied\n", len(stats.Migrations))
	for _, m := range stats.Migrations {
		fmt.Printf("  %s\n", m)
	}
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	pool, repo, provider, err := openCacheRepository(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	n, err := repo.DeleteProvider(ctx, provider)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d cached embeddings for %s\n", n, provider)
	return nil
}
