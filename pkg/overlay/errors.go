package overlay

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned when the source size has a non-positive axis
var ErrInvalidInput = errors.New("invalid input")

// ImageLoadError reports a base image that could not be decoded.
// Nothing is drawn when it is returned.
type ImageLoadError struct {
	Source string
	Err    error
}

func (e *ImageLoadError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("failed to load image: %v", e.Err)
	}
	return fmt.Sprintf("failed to load image %s: %v", e.Source, e.Err)
}

func (e *ImageLoadError) Unwrap() error {
	return e.Err
}

// IsImageLoadError reports whether err wraps an *ImageLoadError
func IsImageLoadError(err error) bool {
	var le *ImageLoadError
	return errors.As(err, &le)
}
