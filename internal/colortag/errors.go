package colortag

import "errors"

var (
	// ErrRequestFailed is returned when the color service cannot be reached
	// or answers with a non-2xx status.
	ErrRequestFailed = errors.New("colortag: request failed")

	// ErrInvalidResponse is returned when the body is not the expected JSON.
	ErrInvalidResponse = errors.New("colortag: invalid response")
)
