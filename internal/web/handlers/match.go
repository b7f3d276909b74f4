package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/deep-saket/color-matching/internal/hairmatch"
	"github.com/deep-saket/color-matching/internal/imaging"
	"github.com/deep-saket/color-matching/internal/labels"
	"github.com/deep-saket/color-matching/internal/matcher"
)

// DefaultMaxUploadBytes bounds the size of a request image.
const DefaultMaxUploadBytes = 20 << 20

// errNoImage is returned when a request carries no image data.
var errNoImage = errors.New("request contains no image")

// MatchService is the matching pipeline the handler drives.
type MatchService interface {
	Match(ctx context.Context, input any) (hairmatch.Result, error)
}

// MatchHandler matches uploaded portraits against the swatch catalog.
type MatchHandler struct {
	service  MatchService
	labels   labels.Labels
	maxBytes int64
	logger   *logrus.Logger
}

// NewMatchHandler creates a match handler. A non-positive maxBytes selects
// DefaultMaxUploadBytes.
func NewMatchHandler(svc MatchService, lbl labels.Labels, maxBytes int64, logger *logrus.Logger) *MatchHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &MatchHandler{service: svc, labels: lbl, maxBytes: maxBytes, logger: logger}
}

// MatchResponse is the body of a successful match request.
type MatchResponse struct {
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	Status      string  `json:"status"`
	Description string  `json:"description,omitempty"`
	Detail      string  `json:"detail,omitempty"`
}

// Match accepts either a multipart form with a "file" part or a raw image
// body. Segmentation failures are reported with status 200 and
// status "segmentation_failed".
func (h *MatchHandler) Match(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	data, filename, err := h.readImage(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.service.Match(r.Context(), data)
	if err != nil {
		status, msg := matchErrorStatus(err)
		h.logger.WithError(err).WithField("file", sanitizeForLog(filename)).Warn("match request failed")
		respondError(w, status, msg)
		return
	}

	resp := MatchResponse{
		Name:   res.Name,
		Score:  res.Score,
		Status: string(res.Status),
		Detail: res.Detail,
	}
	if desc, ok := h.labels.Describe(res.Name); ok {
		resp.Description = desc
	}
	respondJSON(w, http.StatusOK, resp)
}

// readImage returns the request image bytes and, for multipart uploads, the
// client file name.
func (h *MatchHandler) readImage(r *http.Request) ([]byte, string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(h.maxBytes); err != nil {
			return nil, "", fmt.Errorf("failed to parse form: %w", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", errors.New("no file provided")
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read file: %w", err)
		}
		if len(data) == 0 {
			return nil, "", errNoImage
		}
		return data, header.Filename, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read body: %w", err)
	}
	if len(data) == 0 {
		return nil, "", errNoImage
	}
	return data, "", nil
}

// matchErrorStatus maps pipeline errors to HTTP status codes. Context errors
// take precedence over the provider failure that carries them.
func matchErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "match timed out"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "request cancelled"
	case errors.Is(err, matcher.ErrEmbedding):
		return http.StatusBadGateway, "embedding provider failed"
	case errors.Is(err, imaging.ErrUnsupportedInput), errors.Is(err, imaging.ErrDecode):
		return http.StatusBadRequest, "unsupported or undecodable image"
	case errors.Is(err, matcher.ErrInvalidGeometry):
		return http.StatusInternalServerError, "invalid patch geometry"
	default:
		return http.StatusInternalServerError, "match failed"
	}
}
