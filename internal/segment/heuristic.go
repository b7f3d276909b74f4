package segment

import (
	"context"
	"fmt"
	"image"
	"sort"

	"github.com/deep-saket/color-matching/internal/imaging"
)

const defaultTolerance = 40

// HeuristicProvider separates the subject from a plain studio background
// without a model: the background colour is the median of the border pixels
// and every pixel differing from it by more than the tolerance in any channel
// is treated as the person mask.
type HeuristicProvider struct {
	tolerance int
	mask      MaskOptions
}

// NewHeuristicProvider creates a heuristic segmenter.
func NewHeuristicProvider(tolerance int, mask MaskOptions) *HeuristicProvider {
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	return &HeuristicProvider{tolerance: tolerance, mask: mask}
}

func (p *HeuristicProvider) Name() string {
	return fmt.Sprintf("heuristic-%d", p.tolerance)
}

// Segment returns the upper foreground region of img.
func (p *HeuristicProvider) Segment(ctx context.Context, img image.Image) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src := imaging.ToRGB(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w < 3 || h < 3 {
		return nil, ErrNoRegionFound
	}

	bg := borderMedian(src)
	mask := image.NewGray(src.Bounds())
	for y := range h {
		for x := range w {
			i := src.PixOffset(x, y)
			d := max(absDiff(src.Pix[i], bg[0]), absDiff(src.Pix[i+1], bg[1]), absDiff(src.Pix[i+2], bg[2]))
			if d > p.tolerance {
				mask.Pix[mask.PixOffset(x, y)] = 0xff
			}
		}
	}

	region, err := ApplyMask(src, mask, p.mask)
	if err != nil {
		return nil, err
	}
	return region, nil
}

// borderMedian returns the per-channel median colour of the outermost pixels.
func borderMedian(img *image.RGBA) [3]uint8 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	var ch [3][]int
	add := func(x, y int) {
		i := img.PixOffset(x, y)
		for c := range 3 {
			ch[c] = append(ch[c], int(img.Pix[i+c]))
		}
	}
	for x := range w {
		add(x, 0)
		add(x, h-1)
	}
	for y := 1; y < h-1; y++ {
		add(0, y)
		add(w-1, y)
	}

	var out [3]uint8
	for c := range 3 {
		sort.Ints(ch[c])
		out[c] = uint8(ch[c][len(ch[c])/2])
	}
	return out
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
