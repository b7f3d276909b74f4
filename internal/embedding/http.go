package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/deep-saket/color-matching/internal/imaging"
)

const (
	defaultEmbeddingURL   = "http://localhost:8000"
	defaultEmbeddingModel = "clip" // model name for reference only
	defaultHTTPInputSize  = 224
)

// HTTPProvider computes image embeddings using the embedding server.
type HTTPProvider struct {
	baseURL   string
	model     string
	inputSize int
	client    *http.Client
}

// NewHTTPProvider creates a new embedding server client. Images are resized
// to inputSize x inputSize before upload; a negative inputSize disables resizing.
func NewHTTPProvider(baseURL, model string, inputSize int) *HTTPProvider {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	if model == "" {
		model = defaultEmbeddingModel
	}
	if inputSize == 0 {
		inputSize = defaultHTTPInputSize
	}
	return &HTTPProvider{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		model:     model,
		inputSize: inputSize,
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}

// embeddingResponse represents the response from the embedding server
type embeddingResponse struct {
	Dim        int       `json:"dim"`
	Embedding  []float32 `json:"embedding"`
	Model      string    `json:"model"`
	Pretrained string    `json:"pretrained"`
}

// Name returns the provider name including the model.
func (p *HTTPProvider) Name() string {
	return "http:" + p.model
}

// Embed uploads the image as PNG to /embed/image and returns the embedding.
func (p *HTTPProvider) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	if p.inputSize > 0 {
		img = imaging.Resize(img, p.inputSize, p.inputSize)
	}
	data, err := imaging.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	body, err := p.postMultipartImage(ctx, "/embed/image", data)
	if err != nil {
		return nil, err
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(embResp.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	if embResp.Dim != 0 && embResp.Dim != len(embResp.Embedding) {
		return nil, fmt.Errorf("embedding dimension mismatch: declared %d, got %d", embResp.Dim, len(embResp.Embedding))
	}

	return embResp.Embedding, nil
}

// postMultipartImage constructs a multipart form with the PNG data and posts it to the given endpoint.
func (p *HTTPProvider) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.png"`)
	h.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, &buf)
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

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
