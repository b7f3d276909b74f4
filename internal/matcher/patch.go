package matcher

import (
	"errors"
	"fmt"
	"image"
)

// DefaultPatchSize is the patch size used when none is configured.
var DefaultPatchSize = Size{Width: 64, Height: 64}

// ErrInvalidGeometry is returned for non-positive patch or stride sizes.
var ErrInvalidGeometry = errors.New("invalid patch geometry")

// Size is a width/height pair in pixels.
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Patch is a rectangular sub-region of an image, relative to its top-left corner.
type Patch struct {
	Left   int
	Top    int
	Width  int
	Height int
}

// Rect returns the patch as an image rectangle.
func (p Patch) Rect() image.Rectangle {
	return image.Rect(p.Left, p.Top, p.Left+p.Width, p.Top+p.Height)
}

// MatchOptions controls tiling. A zero PatchSize selects DefaultPatchSize;
// a zero Stride component defaults to the matching patch component, giving
// non-overlapping tiles.
type MatchOptions struct {
	PatchSize Size
	Stride    Size
}

// resolve applies defaults and validates the geometry.
func (o MatchOptions) resolve() (patch, stride Size, err error) {
	patch = o.PatchSize
	if patch == (Size{}) {
		patch = DefaultPatchSize
	}
	stride = o.Stride
	if stride.Width == 0 {
		stride.Width = patch.Width
	}
	if stride.Height == 0 {
		stride.Height = patch.Height
	}
	if patch.Width <= 0 || patch.Height <= 0 {
		return Size{}, Size{}, fmt.Errorf("%w: patch size %s", ErrInvalidGeometry, patch)
	}
	if stride.Width <= 0 || stride.Height <= 0 {
		return Size{}, Size{}, fmt.Errorf("%w: stride %s", ErrInvalidGeometry, stride)
	}
	return patch, stride, nil
}

// Patches tiles a width x height region in raster order. Origins advance by
// stride while the patch still fits entirely, so a region smaller than one
// patch in either dimension yields no patches. patch and stride must be positive.
func Patches(width, height int, patch, stride Size) []Patch {
	if width < patch.Width || height < patch.Height {
		return nil
	}
	cols := (width-patch.Width)/stride.Width + 1
	rows := (height-patch.Height)/stride.Height + 1
	out := make([]Patch, 0, cols*rows)
	for top := 0; top+patch.Height <= height; top += stride.Height {
		for left := 0; left+patch.Width <= width; left += stride.Width {
			out = append(out, Patch{Left: left, Top: top, Width: patch.Width, Height: patch.Height})
		}
	}
	return out
}
