package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is matched by ConfigurationError via errors.Is.
	ErrConfiguration = errors.New("invalid swatch catalog configuration")

	// ErrEmptyCatalog is returned when a swatch directory contains no usable images.
	ErrEmptyCatalog = errors.New("no valid swatch images found")
)

// ConfigurationError reports a missing or unusable swatch directory.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("swatch path %q: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("swatch path must be a directory, got: %q", e.Path)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
