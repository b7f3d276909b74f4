package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deep-saket/color-matching/internal/catalog"
	"github.com/deep-saket/color-matching/internal/embedding"
	"github.com/deep-saket/color-matching/internal/hairmatch"
	"github.com/deep-saket/color-matching/internal/imaging"
	"github.com/deep-saket/color-matching/internal/logging"
	"github.com/deep-saket/color-matching/internal/matcher"
	"github.com/deep-saket/color-matching/internal/segment"
)

func multipartRequest(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, "portrait.png")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/match", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeMatch(t *testing.T, recorder *httptest.ResponseRecorder) MatchResponse {
	t.Helper()
	var resp MatchResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", recorder.Body.String(), err)
	}
	return resp
}

func TestMatchHandler_Multipart(t *testing.T) {
	svc := &fakeService{result: hairmatch.Result{Name: "7_Copper.png", Score: 0.97, Status: hairmatch.StatusMatched}}
	handler := newTestMatchHandler(svc)

	data := pngBytes(t, 8, 8, color.White)
	recorder := httptest.NewRecorder()
	handler.Match(recorder, multipartRequest(t, "file", data))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	resp := decodeMatch(t, recorder)
	if resp.Name != "7_Copper.png" || resp.Status != "matched" || resp.Score != 0.97 {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Description != "Copper, warm red" {
		t.Errorf("expected label description, got %q", resp.Description)
	}
	if got, ok := svc.input.([]byte); !ok || !bytes.Equal(got, data) {
		t.Errorf("service should receive the uploaded bytes, got %T", svc.input)
	}
}

func TestMatchHandler_RawBody(t *testing.T) {
	svc := &fakeService{result: hairmatch.Result{Name: matcher.NoMatch, Score: 0.4, Status: hairmatch.StatusNoMatch}}
	handler := newTestMatchHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/match", bytes.NewReader(pngBytes(t, 8, 8, color.White)))
	req.Header.Set("Content-Type", "image/png")
	recorder := httptest.NewRecorder()
	handler.Match(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	resp := decodeMatch(t, recorder)
	if resp.Name != "NO_MATCH" || resp.Status != "no_match" || resp.Description != "" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestMatchHandler_SegmentationFailureIsOK(t *testing.T) {
	svc := &fakeService{result: hairmatch.Result{
		Name:   hairmatch.SegmentationFailed,
		Score:  -1,
		Status: hairmatch.StatusSegmentationFailed,
		Detail: "no hair region found",
	}}
	handler := newTestMatchHandler(svc)

	recorder := httptest.NewRecorder()
	handler.Match(recorder, multipartRequest(t, "file", []byte("png")))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	resp := decodeMatch(t, recorder)
	if resp.Status != "segmentation_failed" || resp.Name != "Error segmenting hair" || resp.Detail == "" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestMatchHandler_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		req  func(t *testing.T) *http.Request
	}{
		{"empty body", func(t *testing.T) *http.Request {
			return httptest.NewRequest(http.MethodPost, "/api/v1/match", nil)
		}},
		{"wrong field", func(t *testing.T) *http.Request {
			return multipartRequest(t, "image", []byte("png"))
		}},
		{"empty file", func(t *testing.T) *http.Request {
			return multipartRequest(t, "file", nil)
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{}
			recorder := httptest.NewRecorder()
			newTestMatchHandler(svc).Match(recorder, tc.req(t))

			if recorder.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", recorder.Code)
			}
			if svc.input != nil {
				t.Error("service must not be called")
			}
		})
	}
}

func TestMatchHandler_TooLarge(t *testing.T) {
	handler := NewMatchHandler(&fakeService{}, testLabels(), 16, logging.Discard())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/match", bytes.NewReader(make([]byte, 64)))
	recorder := httptest.NewRecorder()
	handler.Match(recorder, req)

	if recorder.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected status 413, got %d", recorder.Code)
	}
}

func TestMatchHandler_ErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unsupported", &imaging.UnsupportedInputError{Type: "int"}, http.StatusBadRequest},
		{"undecodable", fmt.Errorf("%w: unknown format", imaging.ErrDecode), http.StatusBadRequest},
		{"embedding", &matcher.EmbeddingError{Index: 0, Err: errors.New("boom")}, http.StatusBadGateway},
		{"timeout", fmt.Errorf("patch match: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"cancelled", context.Canceled, http.StatusServiceUnavailable},
		{"embedding timeout", &matcher.EmbeddingError{Index: 3, Err: fmt.Errorf("request failed: %w", context.DeadlineExceeded)}, http.StatusGatewayTimeout},
		{"embedding cancelled", &matcher.EmbeddingError{Index: 0, Err: context.Canceled}, http.StatusServiceUnavailable},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			newTestMatchHandler(&fakeService{err: tc.err}).Match(recorder, multipartRequest(t, "file", []byte("png")))

			if recorder.Code != tc.wantStatus {
				t.Errorf("expected status %d, got %d", tc.wantStatus, recorder.Code)
			}
		})
	}
}

func TestMatchHandler_Pipeline(t *testing.T) {
	ctx := context.Background()
	embedder := embedding.NewLabProvider(16)

	var swatches []catalog.Swatch
	for _, sw := range []struct {
		name string
		c    color.RGBA
	}{
		{"7_Copper.png", color.RGBA{200, 90, 40, 255}},
		{"1_Black.png", color.RGBA{20, 20, 20, 255}},
	} {
		img, err := imaging.Decode(pngBytes(t, 8, 8, sw.c))
		if err != nil {
			t.Fatal(err)
		}
		emb, err := embedder.Embed(ctx, img)
		if err != nil {
			t.Fatal(err)
		}
		swatches = append(swatches, catalog.Swatch{Name: sw.name, Embedding: emb})
	}
	cat, err := catalog.New(embedder.Name(), swatches)
	if err != nil {
		t.Fatal(err)
	}

	svc := hairmatch.New(segment.Identity{}, matcher.New(embedder, cat, matcher.WithThreshold(0.99)))
	handler := newTestMatchHandler(svc)

	recorder := httptest.NewRecorder()
	handler.Match(recorder, multipartRequest(t, "file", pngBytes(t, 128, 128, color.RGBA{200, 90, 40, 255})))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	resp := decodeMatch(t, recorder)
	if resp.Name != "7_Copper.png" || resp.Status != "matched" {
		t.Errorf("unexpected response %+v", resp)
	}

	recorder = httptest.NewRecorder()
	handler.Match(recorder, multipartRequest(t, "file", []byte("not an image")))
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for undecodable upload, got %d", recorder.Code)
	}
}
