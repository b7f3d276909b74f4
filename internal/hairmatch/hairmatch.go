// Package hairmatch runs the full portrait to swatch pipeline: normalize the
// input image, isolate the hair region and match it against the catalog.
package hairmatch

import (
	"context"
	"image"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/deep-saket/color-matching/internal/imaging"
	"github.com/deep-saket/color-matching/internal/logging"
	"github.com/deep-saket/color-matching/internal/matcher"
	"github.com/deep-saket/color-matching/internal/segment"
)

// SegmentationFailed is the result name when no hair region could be isolated.
const SegmentationFailed = "Error segmenting hair"

// Status classifies a Result.
type Status string

const (
	// StatusMatched means the best score reached the threshold.
	StatusMatched Status = "matched"
	// StatusNoMatch means a region was matched but no swatch reached the threshold.
	StatusNoMatch Status = "no_match"
	// StatusSegmentationFailed means no hair region could be isolated.
	StatusSegmentationFailed Status = "segmentation_failed"
)

// Result is the outcome of matching one portrait.
type Result struct {
	Name   string  // swatch name, matcher.NoMatch or SegmentationFailed
	Score  float64 // best similarity, -1 if segmentation failed
	Status Status
	Detail string // segmentation error text when Status is StatusSegmentationFailed
}

// Service matches portraits against a swatch catalog. It holds no per-call
// state and is safe for concurrent use.
type Service struct {
	segmenter    segment.Provider
	matcher      *matcher.Matcher
	matchOpts    matcher.MatchOptions
	artifactsDir string
	logger       *logrus.Logger
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMatchOptions sets the patch geometry used for every match.
func WithMatchOptions(o matcher.MatchOptions) Option {
	return func(s *Service) { s.matchOpts = o }
}

// WithArtifactsDir saves the normalized input and the hair region of every
// request under dir/hairmatch. An empty dir disables saving.
func WithArtifactsDir(dir string) Option {
	return func(s *Service) { s.artifactsDir = dir }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service.
func New(seg segment.Provider, pm *matcher.Matcher, opts ...Option) *Service {
	s := &Service{
		segmenter: seg,
		matcher:   pm,
		logger:    logging.Discard(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Matcher returns the underlying patch matcher.
func (s *Service) Matcher() *matcher.Matcher {
	return s.matcher
}

// Match accepts encoded image bytes, an image.Image, a file path or an
// io.Reader. Segmentation failures are reported through the result with a
// nil error; input, decode and embedding failures are returned as errors.
func (s *Service) Match(ctx context.Context, input any) (Result, error) {
	start := time.Now()
	log := s.logger.WithField("input", imaging.Kind(input))

	img, err := imaging.Load(input)
	if err != nil {
		return Result{}, err
	}

	var art *artifacts
	if s.artifactsDir != "" {
		art = newArtifacts(s.artifactsDir, artifactID(input, s.now()), s.logger)
		art.save("input", img)
	}

	region, err := s.segmenter.Segment(ctx, img)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		log.WithError(err).WithField("segmenter", s.segmenter.Name()).Warn("hair segmentation failed")
		return Result{
			Name:   SegmentationFailed,
			Score:  -1,
			Status: StatusSegmentationFailed,
			Detail: err.Error(),
		}, nil
	}
	art.save("hair_region", region)

	res, err := s.matcher.Match(ctx, region, s.matchOpts)
	if err != nil {
		return Result{}, err
	}

	out := Result{Name: res.Name, Score: res.Score, Status: StatusNoMatch}
	if res.Matched() {
		out.Status = StatusMatched
	}

	log.WithFields(logrus.Fields{
		"region":   sizeOf(region),
		"result":   out.Name,
		"score":    out.Score,
		"duration": time.Since(start),
	}).Info("hair match finished")

	return out, nil
}

// MatchName is Match without the score.
func (s *Service) MatchName(ctx context.Context, input any) (string, error) {
	res, err := s.Match(ctx, input)
	if err != nil {
		return "", err
	}
	return res.Name, nil
}

func sizeOf(img image.Image) string {
	b := img.Bounds()
	return matcher.Size{Width: b.Dx(), Height: b.Dy()}.String()
}
