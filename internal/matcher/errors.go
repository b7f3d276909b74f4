package matcher

import (
	"errors"
	"fmt"
)

// ErrEmbedding is matched by EmbeddingError via errors.Is.
var ErrEmbedding = errors.New("patch embedding failed")

// EmbeddingError reports a provider failure while embedding a patch. The
// match that produced it has no partial result.
type EmbeddingError struct {
	Index int // position of the patch in raster order
	Patch Patch
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding patch %d at (%d,%d): %v", e.Index, e.Patch.Left, e.Patch.Top, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

func (e *EmbeddingError) Is(target error) bool {
	return target == ErrEmbedding
}
