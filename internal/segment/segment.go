// Package segment isolates the hair region of a portrait.
package segment

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/deep-saket/color-matching/internal/imaging"
)

// ErrNoRegionFound is returned when no hair region is detected.
var ErrNoRegionFound = errors.New("no hair region found")

// ErrUnknownProvider is returned by New when no factory is registered for a key.
var ErrUnknownProvider = errors.New("unknown segmentation provider")

// Provider returns the cropped, masked hair region of a portrait.
type Provider interface {
	Name() string
	Segment(ctx context.Context, img image.Image) (image.Image, error)
}

// MaskOptions controls how a person mask is turned into a hair region.
type MaskOptions struct {
	// Cutoff is the mask confidence (0-1) a pixel must exceed to be kept.
	Cutoff float64
	// KeepTopFraction is the fraction of rows, from the top, that may contain
	// hair. Rows below are discarded.
	KeepTopFraction float64
}

// DefaultMaskOptions keeps confident pixels in the upper half of the frame.
func DefaultMaskOptions() MaskOptions {
	return MaskOptions{Cutoff: 0.6, KeepTopFraction: 0.5}
}

// withDefaults replaces unset (non-positive) fields with the defaults.
// Configuration rejects non-positive values before they reach a provider.
func (o MaskOptions) withDefaults() MaskOptions {
	d := DefaultMaskOptions()
	if o.Cutoff <= 0 {
		o.Cutoff = d.Cutoff
	}
	if o.KeepTopFraction <= 0 {
		o.KeepTopFraction = d.KeepTopFraction
	}
	return o
}

// ApplyMask blacks out pixels whose mask value does not exceed the cutoff or
// that lie below the kept top fraction, then crops the result to the bounding
// box of the remaining non-black pixels.
func ApplyMask(img image.Image, mask *image.Gray, opts MaskOptions) (*image.RGBA, error) {
	opts = opts.withDefaults()
	src := imaging.ToRGB(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	mb := mask.Bounds()
	if mb.Dx() != w || mb.Dy() != h {
		return nil, fmt.Errorf("mask size %dx%d does not match image size %dx%d", mb.Dx(), mb.Dy(), w, h)
	}

	cutoff := opts.Cutoff * 255
	keepRows := int(float64(h) * opts.KeepTopFraction)

	minX, minY, maxX, maxY := w, h, -1, -1
	for y := range h {
		for x := range w {
			i := src.PixOffset(x, y)
			m := float64(mask.GrayAt(mb.Min.X+x, mb.Min.Y+y).Y)
			if y >= keepRows || m <= cutoff {
				src.Pix[i+0], src.Pix[i+1], src.Pix[i+2] = 0, 0, 0
				continue
			}
			if luma(src.Pix[i], src.Pix[i+1], src.Pix[i+2]) == 0 {
				continue
			}
			minX, minY = min(minX, x), min(minY, y)
			maxX, maxY = max(maxX, x), max(maxY, y)
		}
	}

	if maxX < 0 {
		return nil, ErrNoRegionFound
	}

	return imaging.ToRGB(imaging.Crop(src, image.Rect(minX, minY, maxX+1, maxY+1))), nil
}

// luma returns the rounded ITU-R BT.601 grey level.
func luma(r, g, b uint8) int {
	return (299*int(r) + 587*int(g) + 114*int(b) + 500) / 1000
}

// Identity returns the input image unchanged. It is used for inputs that are
// already a hair region.
type Identity struct{}

func (Identity) Name() string { return "none" }

func (Identity) Segment(ctx context.Context, img image.Image) (image.Image, error) {
	if img.Bounds().Empty() {
		return nil, ErrNoRegionFound
	}
	return img, nil
}

// Options configures provider construction.
type Options struct {
	URL       string
	Mask      MaskOptions
	Tolerance int // heuristic background colour tolerance (0 = default)
}

// Factory constructs a segmentation provider.
type Factory func(opts Options) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func init() {
	Register("none", func(Options) (Provider, error) { return Identity{}, nil })
	Register("heuristic", func(opts Options) (Provider, error) {
		return NewHeuristicProvider(opts.Tolerance, opts.Mask), nil
	})
	Register("http", func(opts Options) (Provider, error) {
		return NewHTTPProvider(opts.URL, opts.Mask), nil
	})
}

// Register makes a provider factory available under key.
func Register(key string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[key] = f
}

// New resolves key to a provider.
func New(key string, opts Options) (Provider, error) {
	registryMu.RLock()
	f, ok := registry[key]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownProvider, key, Keys())
	}
	p, err := f(opts)
	if err != nil {
		return nil, fmt.Errorf("creating segmentation provider %q: %w", key, err)
	}
	return p, nil
}

// Keys returns the registered provider keys in sorted order.
func Keys() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
