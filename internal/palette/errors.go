package palette

import "errors"

// ErrInvalidHex is returned when a color is not a 6-digit hex string.
var ErrInvalidHex = errors.New("palette: invalid hex color")
