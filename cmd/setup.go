package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/deep-saket/color-matching/internal/cache"
	"github.com/deep-saket/color-matching/internal/cache/postgres"
	"github.com/deep-saket/color-matching/internal/catalog"
	"github.com/deep-saket/color-matching/internal/config"
	"github.com/deep-saket/color-matching/internal/embedding"
	"github.com/deep-saket/color-matching/internal/hairmatch"
	"github.com/deep-saket/color-matching/internal/labels"
	"github.com/deep-saket/color-matching/internal/logging"
	"github.com/deep-saket/color-matching/internal/matcher"
	"github.com/deep-saket/color-matching/internal/segment"
)

// loadConfig reads and validates the configuration, applying the persistent
// --log-level flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logrus.Logger {
	return logging.New(cfg.Log.Level, cfg.Log.Format)
}

// pipeline holds everything a command needs to match portraits.
type pipeline struct {
	catalog *catalog.Catalog
	labels  labels.Labels
	service *hairmatch.Service
	closers []func() error
}

// Close releases caches and database connections.
func (p *pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	return errors.Join(errs...)
}

// openCache returns the configured swatch embedding cache, preferring
// PostgreSQL over the JSON file. Both unset means no cache.
func openCache(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (catalog.EmbeddingCache, func() error, error) {
	switch {
	case cfg.Database.URL != "":
		pool, err := postgres.Open(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using PostgreSQL swatch embedding cache")
		return postgres.NewEmbeddingRepository(pool), pool.Close, nil
	case cfg.Swatches.CachePath != "":
		f, err := cache.OpenFile(cfg.Swatches.CachePath)
		if err != nil {
			return nil, nil, err
		}
		logger.WithFields(logrus.Fields{"path": f.Path(), "entries": f.Len()}).Info("using file swatch embedding cache")
		return f, f.Flush, nil
	default:
		return nil, func() error { return nil }, nil
	}
}

// newCatalogProgressBar creates a progress bar for the catalog build, or nil
// if progress output is disabled.
func newCatalogProgressBar(show bool) func(done, total int) {
	if !show {
		return nil
	}
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Embedding swatches"),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("swatches"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionFullWidth(),
			)
		}
		bar.Set(done)
		if done == total {
			bar.Finish()
			fmt.Println()
		}
	}
}

func newEmbedder(cfg *config.Config) (embedding.Provider, error) {
	return embedding.New(cfg.Embedding.Provider, embedding.Options{
		URL:       cfg.Embedding.URL,
		Model:     cfg.Embedding.Model,
		InputSize: cfg.Embedding.InputSize,
	})
}

// newPipeline builds the embedder, catalog, segmenter and matching service.
func newPipeline(ctx context.Context, cfg *config.Config, logger *logrus.Logger, showProgress bool) (*pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	segmenter, err := segment.New(cfg.Segmentation.Provider, segment.Options{
		URL:       cfg.Segmentation.URL,
		Tolerance: cfg.Segmentation.Tolerance,
		Mask: segment.MaskOptions{
			Cutoff:          cfg.Segmentation.Cutoff,
			KeepTopFraction: cfg.Segmentation.KeepTopFraction,
		},
	})
	if err != nil {
		return nil, err
	}

	p := &pipeline{}
	embCache, closeCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, closeCache)

	opts := []catalog.Option{catalog.WithLogger(logger)}
	if embCache != nil {
		opts = append(opts, catalog.WithCache(embCache))
	}
	if fn := newCatalogProgressBar(showProgress); fn != nil {
		opts = append(opts, catalog.WithProgress(fn))
	}

	p.catalog, err = catalog.Build(ctx, cfg.Swatches.Path, embedder, opts...)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("building swatch catalog: %w", err)
	}

	p.labels, err = labels.Load(cfg.Swatches.LabelsPath)
	if err != nil {
		p.Close()
		return nil, err
	}

	m := cfg.Matching
	pm := matcher.New(embedder, p.catalog,
		matcher.WithThreshold(m.Threshold),
		matcher.WithWorkers(m.Workers),
		matcher.WithLogger(logger),
	)
	p.service = hairmatch.New(segmenter, pm,
		hairmatch.WithMatchOptions(matcher.MatchOptions{
			PatchSize: matcher.Size{Width: m.PatchWidth, Height: m.PatchHeight},
			Stride:    matcher.Size{Width: m.StrideX, Height: m.StrideY},
		}),
		hairmatch.WithArtifactsDir(cfg.ArtifactsDir),
		hairmatch.WithLogger(logger),
	)

	return p, nil
}
