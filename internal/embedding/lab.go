package embedding

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/deep-saket/color-matching/internal/imaging"
)

const defaultLabInputSize = 224

// D65 reference white.
const (
	whiteX = 0.950456
	whiteY = 1.0
	whiteZ = 1.088754
)

// LabProvider embeds an image as the mean and standard deviation of its
// CIE L*a*b* channels: [meanL, stdL, meanA, stdA, meanB, stdB].
// Channels use the 8-bit LAB encoding (L scaled to 0-255, a and b offset by 128).
type LabProvider struct {
	size int
}

// NewLabProvider creates a LAB statistics provider. Images are resized to
// size x size first; size <= 0 selects 224.
func NewLabProvider(size int) *LabProvider {
	if size <= 0 {
		size = defaultLabInputSize
	}
	return &LabProvider{size: size}
}

// Name returns the provider name.
func (p *LabProvider) Name() string {
	return fmt.Sprintf("lab-stats-%d", p.size)
}

// Embed computes the 6-dimensional LAB statistics vector.
func (p *LabProvider) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("cannot embed empty image %v", b)
	}

	resized := imaging.Resize(img, p.size, p.size)

	var sum, sumSq [3]float64
	n := float64(p.size * p.size)
	for y := range p.size {
		for x := range p.size {
			c := resized.RGBAAt(x, y)
			l, a, bb := RGBToLab(c.R, c.G, c.B)
			for i, v := range [3]float64{l, a, bb} {
				sum[i] += v
				sumSq[i] += v * v
			}
		}
	}

	out := make([]float32, 0, 6)
	for i := range 3 {
		mean := sum[i] / n
		variance := sumSq[i]/n - mean*mean
		if variance < 0 {
			variance = 0
		}
		out = append(out, float32(mean), float32(math.Sqrt(variance)))
	}
	return out, nil
}

// RGBToLab converts an 8-bit sRGB colour to 8-bit encoded L*a*b*.
func RGBToLab(r, g, b uint8) (l, a, bb float64) {
	rl := srgbToLinear(float64(r) / 255)
	gl := srgbToLinear(float64(g) / 255)
	bl := srgbToLinear(float64(b) / 255)

	x := (0.412453*rl + 0.357580*gl + 0.180423*bl) / whiteX
	y := (0.212671*rl + 0.715160*gl + 0.072169*bl) / whiteY
	z := (0.019334*rl + 0.119193*gl + 0.950227*bl) / whiteZ

	fx, fy, fz := labF(x), labF(y), labF(z)

	var lStar float64
	if y > 0.008856 {
		lStar = 116*fy - 16
	} else {
		lStar = 903.3 * y
	}
	aStar := 500 * (fx - fy)
	bStar := 200 * (fy - fz)

	return lStar * 255 / 100, aStar + 128, bStar + 128
}

func srgbToLinear(c float64) float64 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}

func labF(t float64) float64 {
	if t > 0.008856 {
		return math.Cbrt(t)
	}
	return 7.787*t + 16.0/116.0
}
