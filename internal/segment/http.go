package segment

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/deep-saket/color-matching/internal/imaging"
)

const defaultSegmentationURL = "http://localhost:8001"

// HTTPProvider obtains a person mask from a segmentation server and turns it
// into the hair region with ApplyMask.
//
// The server receives the portrait as multipart "file" on POST /segment/person
// and answers with a PNG mask of the same size, 255 meaning certainly person.
type HTTPProvider struct {
	baseURL string
	mask    MaskOptions
	client  *http.Client
}

// NewHTTPProvider creates a segmentation server client.
func NewHTTPProvider(baseURL string, mask MaskOptions) *HTTPProvider {
	if baseURL == "" {
		baseURL = defaultSegmentationURL
	}
	return &HTTPProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		mask:    mask,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *HTTPProvider) Name() string {
	return "http-segmenter"
}

// Segment requests the person mask for img and returns the hair region.
func (p *HTTPProvider) Segment(ctx context.Context, img image.Image) (image.Image, error) {
	mask, err := p.fetchMask(ctx, img)
	if err != nil {
		return nil, err
	}
	region, err := ApplyMask(img, mask, p.mask)
	if err != nil {
		return nil, err
	}
	return region, nil
}

func (p *HTTPProvider) fetchMask(ctx context.Context, img image.Image) (*image.Gray, error) {
	data, err := imaging.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "portrait.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/segment/person", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: %s", ErrNoRegionFound, strings.TrimSpace(string(body)))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	decoded, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to decode mask: %w", err)
	}
	return toGray(decoded), nil
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g.SetGray(x, y, color.GrayModel.Convert(img.At(x, y)).(color.Gray))
		}
	}
	return g
}
