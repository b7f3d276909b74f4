package hairmatch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deep-saket/color-matching/internal/catalog"
	"github.com/deep-saket/color-matching/internal/imaging"
	"github.com/deep-saket/color-matching/internal/matcher"
	"github.com/deep-saket/color-matching/internal/segment"
)

type meanColorEmbedder struct {
	err error
}

func (meanColorEmbedder) Name() string { return "mean-color" }

func (e meanColorEmbedder) Embed(_ context.Context, img image.Image) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	b := img.Bounds()
	var r, g, bl float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			r += float64(cr >> 8)
			g += float64(cg >> 8)
			bl += float64(cb >> 8)
		}
	}
	n := float64(b.Dx() * b.Dy())
	return []float32{float32(r / n), float32(g / n), float32(bl / n)}, nil
}

type failingSegmenter struct {
	err error
}

func (failingSegmenter) Name() string { return "failing" }

func (s failingSegmenter) Segment(context.Context, image.Image) (image.Image, error) {
	return nil, s.err
}

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, c)
		}
	}
	return img
}

func newTestService(t *testing.T, seg segment.Provider, emb meanColorEmbedder, opts ...Option) *Service {
	t.Helper()
	cat, err := catalog.New("mean-color", []catalog.Swatch{
		{Name: "red.png", Embedding: []float32{255, 0, 0}},
		{Name: "blue.png", Embedding: []float32{0, 0, 255}},
	})
	if err != nil {
		t.Fatalf("catalog.New failed: %v", err)
	}
	return New(seg, matcher.New(emb, cat, matcher.WithThreshold(0.9)), opts...)
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestMatch_InputKinds(t *testing.T) {
	red := createTestImage(128, 128, color.RGBA{250, 10, 10, 255})
	data := encodePNG(t, red)
	path := filepath.Join(t.TempDir(), "portrait.png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	inputs := map[string]any{
		"bytes":  data,
		"path":   path,
		"image":  red,
		"reader": bytes.NewReader(data),
	}

	svc := newTestService(t, segment.Identity{}, meanColorEmbedder{})
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			res, err := svc.Match(context.Background(), input)
			if err != nil {
				t.Fatalf("Match failed: %v", err)
			}
			if res.Name != "red.png" || res.Status != StatusMatched {
				t.Errorf("expected red.png matched, got %+v", res)
			}
			if res.Score < 0.99 {
				t.Errorf("expected near-perfect score, got %v", res.Score)
			}
		})
	}
}

func TestMatch_NoMatch(t *testing.T) {
	svc := newTestService(t, segment.Identity{}, meanColorEmbedder{})

	// Green is orthogonal to both swatches.
	res, err := svc.Match(context.Background(), createTestImage(64, 64, color.RGBA{0, 255, 0, 255}))
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if res.Name != matcher.NoMatch || res.Status != StatusNoMatch {
		t.Errorf("expected NO_MATCH, got %+v", res)
	}
}

func TestMatch_SegmentationFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"no region", segment.ErrNoRegionFound},
		{"wrapped no region", errors.Join(errors.New("person not found"), segment.ErrNoRegionFound)},
		{"service down", errors.New("segmentation API error (status 503)")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(t, failingSegmenter{err: tc.err}, meanColorEmbedder{})

			res, err := svc.Match(context.Background(), createTestImage(64, 64, color.White))
			if err != nil {
				t.Fatalf("segmentation failure must not be returned as error, got %v", err)
			}
			if res.Name != SegmentationFailed || res.Status != StatusSegmentationFailed {
				t.Errorf("expected sentinel result, got %+v", res)
			}
			if res.Detail != tc.err.Error() {
				t.Errorf("expected detail %q, got %q", tc.err.Error(), res.Detail)
			}

			name, err := svc.MatchName(context.Background(), createTestImage(64, 64, color.White))
			if err != nil || name != "Error segmenting hair" {
				t.Errorf("MatchName() = %q, %v", name, err)
			}
		})
	}
}

func TestMatch_EmptyRegionFromIdentity(t *testing.T) {
	svc := newTestService(t, segment.Identity{}, meanColorEmbedder{})

	res, err := svc.Match(context.Background(), image.NewRGBA(image.Rect(0, 0, 0, 0)))
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if res.Status != StatusSegmentationFailed {
		t.Errorf("expected segmentation failure for empty image, got %+v", res)
	}
}

func TestMatch_UnsupportedInput(t *testing.T) {
	svc := newTestService(t, segment.Identity{}, meanColorEmbedder{})

	for _, input := range []any{nil, 42, []int{1}} {
		_, err := svc.Match(context.Background(), input)
		if !errors.Is(err, imaging.ErrUnsupportedInput) {
			t.Errorf("input %T: expected ErrUnsupportedInput, got %v", input, err)
		}
	}
}

func TestMatch_UndecodableBytes(t *testing.T) {
	svc := newTestService(t, segment.Identity{}, meanColorEmbedder{})

	if _, err := svc.Match(context.Background(), []byte("not an image")); err == nil {
		t.Error("expected decode error")
	}
}

func TestMatch_EmbeddingFailurePropagates(t *testing.T) {
	cause := errors.New("model unavailable")
	svc := newTestService(t, segment.Identity{}, meanColorEmbedder{err: cause})

	res, err := svc.Match(context.Background(), createTestImage(64, 64, color.White))
	if !errors.Is(err, matcher.ErrEmbedding) || !errors.Is(err, cause) {
		t.Fatalf("expected embedding error, got %v", err)
	}
	if res != (Result{}) {
		t.Errorf("expected zero result, got %+v", res)
	}
	if _, err := svc.MatchName(context.Background(), createTestImage(64, 64, color.White)); err == nil {
		t.Error("MatchName should propagate embedding errors")
	}
}

func TestMatch_CancelledDuringSegmentation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := newTestService(t, failingSegmenter{err: context.Canceled}, meanColorEmbedder{})

	if _, err := svc.Match(ctx, createTestImage(64, 64, color.White)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestMatch_MatchOptions(t *testing.T) {
	svc := newTestService(t, segment.Identity{}, meanColorEmbedder{},
		WithMatchOptions(matcher.MatchOptions{PatchSize: matcher.Size{Width: 16, Height: 16}}))

	// Too small for the default 64x64 patch, large enough for 16x16.
	res, err := svc.Match(context.Background(), createTestImage(32, 32, color.RGBA{0, 0, 250, 255}))
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if res.Name != "blue.png" {
		t.Errorf("expected blue.png, got %+v", res)
	}

	res, err = newTestService(t, segment.Identity{}, meanColorEmbedder{}).Match(context.Background(), createTestImage(32, 32, color.RGBA{0, 0, 250, 255}))
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if res.Name != matcher.NoMatch || res.Score != -1 {
		t.Errorf("expected degenerate result with default patch, got %+v", res)
	}
}

func TestMatch_SavesArtifacts(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(t.TempDir(), "alice.png")
	if err := os.WriteFile(src, encodePNG(t, createTestImage(64, 64, color.RGBA{250, 0, 0, 255})), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := newTestService(t, segment.Identity{}, meanColorEmbedder{}, WithArtifactsDir(dir))
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC) }

	if _, err := svc.Match(context.Background(), src); err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "hairmatch"))
	if err != nil {
		t.Fatalf("artifacts dir missing: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(entries))
	}
	var sawInput, sawRegion bool
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "alice_20240501_123045_") {
			t.Errorf("unexpected artifact name %q", name)
		}
		sawInput = sawInput || strings.HasSuffix(name, "_input.png")
		sawRegion = sawRegion || strings.HasSuffix(name, "_hair_region.png")
	}
	if !sawInput || !sawRegion {
		t.Errorf("expected input and hair region artifacts, got %v", entries)
	}
}

func TestMatch_ArtifactFailureIsNotFatal(t *testing.T) {
	// A regular file where the artifacts directory should be.
	root := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(root, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := newTestService(t, segment.Identity{}, meanColorEmbedder{}, WithArtifactsDir(root))
	res, err := svc.Match(context.Background(), createTestImage(64, 64, color.RGBA{250, 0, 0, 255}))
	if err != nil {
		t.Fatalf("artifact failure must not fail the match: %v", err)
	}
	if res.Name != "red.png" {
		t.Errorf("expected red.png, got %+v", res)
	}
}

func TestArtifactID(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		input  any
		prefix string
	}{
		{"/photos/bob.jpg", "bob_20240102_030405_"},
		{"plain", "plain_20240102_030405_"},
		{[]byte{1}, "image_20240102_030405_"},
		{image.NewRGBA(image.Rect(0, 0, 1, 1)), "image_20240102_030405_"},
	}

	for _, tc := range tests {
		id := artifactID(tc.input, ts)
		if !strings.HasPrefix(id, tc.prefix) {
			t.Errorf("artifactID(%T) = %q, want prefix %q", tc.input, id, tc.prefix)
		}
		if len(id) != len(tc.prefix)+8 {
			t.Errorf("artifactID(%T) = %q, expected 8-char suffix", tc.input, id)
		}
	}
}
