package handlers

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/deep-saket/color-matching/internal/catalog"
	"github.com/deep-saket/color-matching/internal/config"
	"github.com/deep-saket/color-matching/internal/hairmatch"
	"github.com/deep-saket/color-matching/internal/labels"
	"github.com/deep-saket/color-matching/internal/logging"
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Segmentation.Provider = "none"
	return cfg
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New("mean-color", []catalog.Swatch{
		{Name: "7_Copper.png", Embedding: []float32{200, 90, 40}},
		{Name: "1_Black.png", Embedding: []float32{20, 20, 20}},
	})
	if err != nil {
		t.Fatalf("catalog.New failed: %v", err)
	}
	return cat
}

func testLabels() labels.Labels {
	return labels.New(map[string]string{"7_Copper.png": "Copper, warm red"})
}

// fakeService returns a fixed result or error and records the input.
type fakeService struct {
	result hairmatch.Result
	err    error
	input  any
}

func (f *fakeService) Match(_ context.Context, input any) (hairmatch.Result, error) {
	f.input = input
	return f.result, f.err
}

func newTestMatchHandler(svc MatchService) *MatchHandler {
	return NewMatchHandler(svc, testLabels(), 0, logging.Discard())
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
