// Package catalog loads reference hair-colour swatches and their embeddings.
//
// A Catalog is built once at startup and is immutable afterwards, so a single
// instance can be shared by concurrent matchers.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"github.com/deep-saket/color-matching/internal/embedding"
	"github.com/deep-saket/color-matching/internal/imaging"
	"github.com/deep-saket/color-matching/internal/logging"
)

// Swatch is a reference image name and its precomputed embedding.
type Swatch struct {
	Name      string
	Embedding []float32
}

// Catalog is the ordered, non-empty set of swatches.
type Catalog struct {
	swatches []Swatch
	index    map[string]int
	provider string
}

// CacheKey identifies a swatch embedding computed by a provider for a given image content.
type CacheKey struct {
	Provider string
	Digest   string // hex sha256 of the encoded image file
}

// EmbeddingCache stores swatch embeddings between runs.
type EmbeddingCache interface {
	Get(ctx context.Context, key CacheKey) ([]float32, bool, error)
	Put(ctx context.Context, key CacheKey, embedding []float32) error
}

type buildOptions struct {
	cache      EmbeddingCache
	onProgress func(done, total int)
	logger     *logrus.Logger
}

// Option configures Build.
type Option func(*buildOptions)

// WithCache reuses embeddings from c and stores newly computed ones in it.
func WithCache(c EmbeddingCache) Option {
	return func(o *buildOptions) { o.cache = c }
}

// WithProgress registers a callback invoked after each swatch is processed.
func WithProgress(fn func(done, total int)) Option {
	return func(o *buildOptions) { o.onProgress = fn }
}

// WithLogger sets the logger used during the build.
func WithLogger(l *logrus.Logger) Option {
	return func(o *buildOptions) { o.logger = l }
}

// IsSwatchFile reports whether name has a supported swatch extension
// (.jpg, .jpeg or .png, case-insensitive).
func IsSwatchFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// Build lists dir (non-recursively, sorted by name), embeds every swatch image
// and returns the resulting catalog.
func Build(ctx context.Context, dir string, embedder embedding.Provider, opts ...Option) (*Catalog, error) {
	o := buildOptions{logger: logging.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	files, err := listSwatchFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrEmptyCatalog, dir)
	}

	c := &Catalog{
		swatches: make([]Swatch, 0, len(files)),
		index:    make(map[string]int, len(files)),
		provider: embedder.Name(),
	}

	var cached int
	for i, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("building catalog: %w", err)
		}

		emb, hit, err := c.embedFile(ctx, filepath.Join(dir, name), embedder, o.cache)
		if err != nil {
			return nil, fmt.Errorf("swatch %s: %w", name, err)
		}
		if hit {
			cached++
		}

		swatchName := NormalizeName(name)
		if _, dup := c.index[swatchName]; dup {
			return nil, fmt.Errorf("duplicate swatch name %q after normalization", swatchName)
		}
		if len(c.swatches) > 0 && len(emb) != c.Dim() {
			return nil, fmt.Errorf("swatch %s: embedding dimension %d differs from %d", name, len(emb), c.Dim())
		}
		c.index[swatchName] = len(c.swatches)
		c.swatches = append(c.swatches, Swatch{Name: swatchName, Embedding: emb})

		o.logger.WithFields(logrus.Fields{"swatch": swatchName, "dim": len(emb), "cached": hit}).Debug("swatch loaded")
		if o.onProgress != nil {
			o.onProgress(i+1, len(files))
		}
	}

	o.logger.WithFields(logrus.Fields{
		"dir":      dir,
		"swatches": len(c.swatches),
		"cached":   cached,
		"provider": c.provider,
	}).Info("swatch catalog built")

	return c, nil
}

// embedFile decodes one swatch file and returns its embedding, consulting the cache first.
func (c *Catalog) embedFile(ctx context.Context, path string, embedder embedding.Provider, cache EmbeddingCache) ([]float32, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read swatch: %w", err)
	}

	var key CacheKey
	if cache != nil {
		sum := sha256.Sum256(data)
		key = CacheKey{Provider: embedder.Name(), Digest: hex.EncodeToString(sum[:])}
		emb, ok, err := cache.Get(ctx, key)
		if err != nil {
			return nil, false, fmt.Errorf("reading embedding cache: %w", err)
		}
		if ok {
			return emb, true, nil
		}
	}

	img, err := imaging.Decode(data)
	if err != nil {
		return nil, false, err
	}

	emb, err := embedder.Embed(ctx, img)
	if err != nil {
		return nil, false, fmt.Errorf("computing embedding: %w", err)
	}
	if len(emb) == 0 {
		return nil, false, fmt.Errorf("computing embedding: empty embedding returned")
	}

	if cache != nil {
		if err := cache.Put(ctx, key, emb); err != nil {
			return nil, false, fmt.Errorf("writing embedding cache: %w", err)
		}
	}
	return emb, false, nil
}

// listSwatchFiles returns the sorted names of swatch image files in dir.
func listSwatchFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &ConfigurationError{Path: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &ConfigurationError{Path: dir}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ConfigurationError{Path: dir, Err: err}
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsSwatchFile(e.Name()) {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}

// NormalizeName returns the swatch name for a file name: its base name in
// Unicode NFC, so names read from decomposed file systems compare equal.
func NormalizeName(fileName string) string {
	return norm.NFC.String(filepath.Base(fileName))
}

// New builds a catalog from precomputed swatches, preserving their order.
// Names must be unique and every embedding non-empty.
func New(provider string, swatches []Swatch) (*Catalog, error) {
	if len(swatches) == 0 {
		return nil, ErrEmptyCatalog
	}
	c := &Catalog{
		swatches: make([]Swatch, 0, len(swatches)),
		index:    make(map[string]int, len(swatches)),
		provider: provider,
	}
	for _, s := range swatches {
		if _, dup := c.index[s.Name]; dup {
			return nil, fmt.Errorf("duplicate swatch name %q", s.Name)
		}
		if len(s.Embedding) == 0 {
			return nil, fmt.Errorf("swatch %q has an empty embedding", s.Name)
		}
		if len(c.swatches) > 0 && len(s.Embedding) != c.Dim() {
			return nil, fmt.Errorf("swatch %q: embedding dimension %d differs from %d", s.Name, len(s.Embedding), c.Dim())
		}
		emb := make([]float32, len(s.Embedding))
		copy(emb, s.Embedding)
		c.index[s.Name] = len(c.swatches)
		c.swatches = append(c.swatches, Swatch{Name: s.Name, Embedding: emb})
	}
	return c, nil
}

// Len returns the number of swatches.
func (c *Catalog) Len() int {
	return len(c.swatches)
}

// At returns the i-th swatch in catalog order. The embedding must not be modified.
func (c *Catalog) At(i int) Swatch {
	return c.swatches[i]
}

// Swatches returns the swatches in catalog order. The returned slice and
// embeddings must not be modified.
func (c *Catalog) Swatches() []Swatch {
	return c.swatches[:len(c.swatches):len(c.swatches)]
}

// Names returns the swatch names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.swatches))
	for i, s := range c.swatches {
		names[i] = s.Name
	}
	return names
}

// Get looks a swatch up by name.
func (c *Catalog) Get(name string) (Swatch, bool) {
	i, ok := c.index[name]
	if !ok {
		return Swatch{}, false
	}
	return c.swatches[i], true
}

// Provider returns the name of the embedding provider the catalog was built with.
func (c *Catalog) Provider() string {
	return c.provider
}

// Dim returns the embedding dimensionality of the first swatch.
func (c *Catalog) Dim() int {
	return len(c.swatches[0].Embedding)
}
