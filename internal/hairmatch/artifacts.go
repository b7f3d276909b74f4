package hairmatch

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/deep-saket/color-matching/internal/imaging"
)

const artifactsSubdir = "hairmatch"

// artifacts writes debugging images for one request. A nil *artifacts is a
// no-op. Write failures are logged and never fail the request.
type artifacts struct {
	dir    string
	id     string
	logger *logrus.Logger
}

func newArtifacts(root, id string, logger *logrus.Logger) *artifacts {
	return &artifacts{dir: filepath.Join(root, artifactsSubdir), id: id, logger: logger}
}

func (a *artifacts) path(suffix string) string {
	return filepath.Join(a.dir, a.id+"_"+suffix+".png")
}

func (a *artifacts) save(suffix string, img image.Image) {
	if a == nil {
		return
	}
	path := a.path(suffix)
	if err := writePNG(path, img); err != nil {
		a.logger.WithError(err).WithField("path", path).Warn("failed to save artifact")
		return
	}
	a.logger.WithField("path", path).Debug("saved artifact")
}

func writePNG(path string, img image.Image) error {
	data, err := imaging.EncodePNG(img)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create artifacts directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

// artifactID is <base>_<timestamp>_<uuid8>, where base is the input file
// name without extension for path inputs and "image" otherwise.
func artifactID(input any, t time.Time) string {
	base := "image"
	if p, ok := input.(string); ok {
		if b := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)); b != "" && b != "." {
			base = b
		}
	}
	return fmt.Sprintf("%s_%s_%s", base, t.Format("20060102_150405"), uuid.NewString()[:8])
}
