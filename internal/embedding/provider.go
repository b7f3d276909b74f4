// Package embedding defines the image embedding capability used by the swatch
// catalog and the patch matcher, together with the built-in providers.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"
)

// Provider computes a fixed-length embedding for an image.
// Implementations must be deterministic for a fixed image and configuration
// and safe for concurrent use.
type Provider interface {
	Name() string
	Embed(ctx context.Context, img image.Image) ([]float32, error)
}

// Options configures provider construction.
type Options struct {
	URL       string // embedding server base URL (http provider)
	Model     string // model name for reference only
	InputSize int    // square edge images are resized to before embedding (0 = provider default)
}

// Factory constructs a provider from options.
type Factory func(opts Options) (Provider, error)

// ErrUnknownProvider is returned by New when no factory is registered for a key.
var ErrUnknownProvider = errors.New("unknown embedding provider")

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func init() {
	Register("lab", func(opts Options) (Provider, error) {
		return NewLabProvider(opts.InputSize), nil
	})
	httpFactory := func(opts Options) (Provider, error) {
		return NewHTTPProvider(opts.URL, opts.Model, opts.InputSize), nil
	}
	Register("http", httpFactory)
	Register("clip", httpFactory)
}

// Register makes a provider factory available under key, replacing any
// previous registration.
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
		return nil, fmt.Errorf("creating embedding provider %q: %w", key, err)
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
