// Package matcher finds the catalog swatch closest to an image region by
// embedding fixed-size patches of the region and keeping the single best
// patch x swatch cosine similarity.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/deep-saket/color-matching/internal/catalog"
	"github.com/deep-saket/color-matching/internal/embedding"
	"github.com/deep-saket/color-matching/internal/imaging"
	"github.com/deep-saket/color-matching/internal/logging"
)

const (
	// NoMatch is the result name when no swatch clears the threshold.
	NoMatch = "NO_MATCH"

	// DefaultThreshold is the minimum cosine similarity for a match.
	DefaultThreshold = 0.93

	// noScore is the best score before any comparison has been made.
	noScore = -1.0
)

// Result is the outcome of a match. Score is the best similarity observed,
// also when Name is NoMatch.
type Result struct {
	Name  string
	Score float64
}

// Matched reports whether the result names a swatch.
func (r Result) Matched() bool {
	return r.Name != NoMatch
}

// Matcher compares image patches against a swatch catalog.
// It is safe for concurrent use.
type Matcher struct {
	embedder  embedding.Provider
	catalog   *catalog.Catalog
	threshold float64
	workers   int
	logger    *logrus.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithThreshold sets the minimum similarity for a match. The value is not
// range checked.
func WithThreshold(t float64) Option {
	return func(m *Matcher) { m.threshold = t }
}

// WithWorkers sets how many patches are embedded concurrently. Values below
// 2 select the sequential path.
func WithWorkers(n int) Option {
	return func(m *Matcher) { m.workers = n }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(m *Matcher) { m.logger = l }
}

// New creates a matcher over cat using embedder for patches. The embedder
// should be the one the catalog was built with.
func New(embedder embedding.Provider, cat *catalog.Catalog, opts ...Option) *Matcher {
	m := &Matcher{
		embedder:  embedder,
		catalog:   cat,
		threshold: DefaultThreshold,
		workers:   1,
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Threshold returns the configured threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Catalog returns the catalog the matcher compares against.
func (m *Matcher) Catalog() *catalog.Catalog {
	return m.catalog
}

// best is a candidate maximum. Among equal scores the earliest patch, then
// the earliest swatch in catalog order, wins.
type best struct {
	score  float64
	patch  int
	swatch int
}

var none = best{score: noScore, patch: -1, swatch: -1}

func (b best) valid() bool {
	return b.swatch >= 0
}

// combine merges two partial maxima. The result is the same as that of a
// single sequential scan with strict > updates over both inputs.
func combine(a, b best) best {
	switch {
	case !b.valid():
		return a
	case !a.valid():
		return b
	case b.score > a.score:
		return b
	case b.score < a.score:
		return a
	case b.patch < a.patch || (b.patch == a.patch && b.swatch < a.swatch):
		return b
	default:
		return a
	}
}

// Match tiles img into patches, embeds each patch and returns the swatch with
// the highest cosine similarity over all patch x swatch pairs. If the best
// score is below the threshold the result name is NoMatch. An image smaller
// than one patch yields {NoMatch, -1}.
func (m *Matcher) Match(ctx context.Context, img image.Image, o MatchOptions) (Result, error) {
	patchSize, stride, err := o.resolve()
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	bounds := img.Bounds()
	patches := Patches(bounds.Dx(), bounds.Dy(), patchSize, stride)

	var b best
	if m.workers > 1 && len(patches) > 1 {
		b, err = m.scanParallel(ctx, img, patches)
	} else {
		b, err = m.scanSequential(ctx, img, patches)
	}
	if err != nil {
		return Result{}, err
	}

	res := Result{Name: NoMatch, Score: b.score}
	if b.valid() && b.score >= m.threshold {
		res.Name = m.catalog.At(b.swatch).Name
	}

	m.logger.WithFields(logrus.Fields{
		"size":      fmt.Sprintf("%dx%d", bounds.Dx(), bounds.Dy()),
		"patches":   len(patches),
		"patch":     patchSize.String(),
		"stride":    stride.String(),
		"result":    res.Name,
		"score":     res.Score,
		"threshold": m.threshold,
		"duration":  time.Since(start),
	}).Debug("patch match finished")

	return res, nil
}

// scorePatch embeds one patch and returns its best swatch.
func (m *Matcher) scorePatch(ctx context.Context, img image.Image, idx int, p Patch) (best, error) {
	emb, err := m.embedder.Embed(ctx, imaging.Crop(img, p.Rect()))
	if err != nil {
		return none, &EmbeddingError{Index: idx, Patch: p, Err: err}
	}

	b := none
	for j, sw := range m.catalog.Swatches() {
		if s := embedding.CosineSimilarity(emb, sw.Embedding); s > b.score {
			b = best{score: s, patch: idx, swatch: j}
		}
	}
	return b, nil
}

func (m *Matcher) scanSequential(ctx context.Context, img image.Image, patches []Patch) (best, error) {
	b := none
	for i, p := range patches {
		if err := ctx.Err(); err != nil {
			return none, fmt.Errorf("patch match: %w", err)
		}
		pb, err := m.scorePatch(ctx, img, i, p)
		if err != nil {
			return none, err
		}
		b = combine(b, pb)
	}
	return b, nil
}

type patchFailure struct {
	index int
	err   error
}

// scanParallel distributes patches over a worker pool. Each worker keeps a
// local maximum; the partial maxima are merged with combine.
func (m *Matcher) scanParallel(ctx context.Context, img image.Image, patches []Patch) (best, error) {
	innerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := min(m.workers, len(patches))
	jobs := make(chan int)
	results := make([]best, workers)
	var (
		mu       sync.Mutex
		failures []patchFailure
		wg       sync.WaitGroup
	)

	for w := range workers {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			local := none
			for idx := range jobs {
				pb, err := m.scorePatch(innerCtx, img, idx, patches[idx])
				if err != nil {
					mu.Lock()
					failures = append(failures, patchFailure{index: idx, err: err})
					mu.Unlock()
					cancel()
					continue
				}
				local = combine(local, pb)
			}
			results[w] = local
		}(w)
	}

feed:
	for i := range patches {
		select {
		case jobs <- i:
		case <-innerCtx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return none, fmt.Errorf("patch match: %w", err)
	}
	if len(failures) > 0 {
		return none, firstFailure(failures)
	}

	b := none
	for _, r := range results {
		b = combine(b, r)
	}
	return b, nil
}

// firstFailure picks the lowest-index failure, preferring provider errors over
// cancellations triggered by an earlier failure.
func firstFailure(failures []patchFailure) error {
	var pick *patchFailure
	for i := range failures {
		f := &failures[i]
		cancelled := errors.Is(f.err, context.Canceled)
		switch {
		case pick == nil:
			pick = f
		case errors.Is(pick.err, context.Canceled) && !cancelled:
			pick = f
		case cancelled == errors.Is(pick.err, context.Canceled) && f.index < pick.index:
			pick = f
		}
	}
	return pick.err
}
