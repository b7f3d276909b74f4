// Package imaging normalizes heterogeneous image inputs into decoded
// 3-channel images and provides the crop/resize/encode helpers shared by the
// embedding and segmentation providers.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"reflect"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	// ErrUnsupportedInput is matched by UnsupportedInputError via errors.Is.
	ErrUnsupportedInput = errors.New("unsupported image input")

	// ErrDecode wraps every failure to decode encoded image data.
	ErrDecode = errors.New("failed to decode image")
)

// UnsupportedInputError reports an input that is none of the accepted
// representations (encoded bytes, decoded image, file path, reader).
type UnsupportedInputError struct {
	Type string
}

func (e *UnsupportedInputError) Error() string {
	return fmt.Sprintf("unsupported image input type %s", e.Type)
}

func (e *UnsupportedInputError) Is(target error) bool {
	return target == ErrUnsupportedInput
}

// Kind names the representation of an input, for logging.
func Kind(input any) string {
	switch input.(type) {
	case []byte:
		return "bytes"
	case string:
		return "path"
	case image.Image:
		return "image"
	case io.Reader:
		return "reader"
	default:
		return fmt.Sprintf("%T", input)
	}
}

// Load normalizes input into a single decoded RGB image.
// Accepted inputs: []byte (encoded image), string (file path),
// image.Image, io.Reader (encoded image stream).
func Load(input any) (*image.RGBA, error) {
	if isNilPointer(input) {
		return nil, &UnsupportedInputError{Type: fmt.Sprintf("nil %T", input)}
	}
	switch v := input.(type) {
	case nil:
		return nil, &UnsupportedInputError{Type: "nil"}
	case []byte:
		return Decode(v)
	case string:
		return Open(v)
	case image.Image:
		return ToRGB(v), nil
	case io.Reader:
		data, err := io.ReadAll(v)
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		return Decode(data)
	default:
		return nil, &UnsupportedInputError{Type: fmt.Sprintf("%T", input)}
	}
}

// isNilPointer reports whether v is a typed nil pointer, map, chan or func.
// A nil []byte is left to Decode.
func isNilPointer(v any) bool {
	if v == nil {
		return false
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// Decode decodes encoded image bytes (JPEG, PNG, GIF, BMP, WebP).
func Decode(data []byte) (*image.RGBA, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrDecode)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return ToRGB(img), nil
}

// Open reads and decodes an image file.
func Open(path string) (*image.RGBA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", path, err)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}
