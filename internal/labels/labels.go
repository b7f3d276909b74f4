// Package labels maps swatch names to human-readable colour descriptions.
package labels

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// Labels is an immutable swatch name to description map. The zero value is
// an empty set of labels.
type Labels struct {
	m map[string]string
}

// New copies m into a Labels value. Keys are NFC normalized so they compare
// equal to catalog swatch names.
func New(m map[string]string) Labels {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[norm.NFC.String(k)] = v
	}
	return Labels{m: out}
}

// Load reads a JSON object of {"file name": "description"}. A missing file
// yields empty labels.
func Load(path string) (Labels, error) {
	if path == "" {
		return Labels{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Labels{}, nil
	}
	if err != nil {
		return Labels{}, fmt.Errorf("failed to read labels: %w", err)
	}

	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return Labels{}, fmt.Errorf("failed to parse labels %s: %w", path, err)
	}
	return New(m), nil
}

// Describe returns the description for a swatch name.
func (l Labels) Describe(name string) (string, bool) {
	d, ok := l.m[norm.NFC.String(name)]
	return d, ok
}

// Len returns the number of labelled swatches.
func (l Labels) Len() int {
	return len(l.m)
}

// Names returns labelled swatch names in sorted order.
func (l Labels) Names() []string {
	names := make([]string, 0, len(l.m))
	for k := range l.m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
