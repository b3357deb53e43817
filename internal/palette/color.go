package palette

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is a hex color string such as "#330033". The leading '#' is optional.
type Color string

// RGB is an 8-bit-per-channel color.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Palette is an ordered list of colors, most dominant first.
type Palette []Color

// RGB converts the color to its channel values.
//
// The hex string is read as one 24-bit integer: red is bits 16-23, green
// bits 8-15 and blue bits 0-7.
//
// Returns:
//   - RGB: Channel values
//   - error: ErrInvalidHex if the string is not exactly six hex digits
func (c Color) RGB() (RGB, error) {
	hex := strings.TrimPrefix(string(c), "#")
	if len(hex) != 6 {
		return RGB{}, fmt.Errorf("%w: %q", ErrInvalidHex, string(c))
	}

	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("%w: %q", ErrInvalidHex, string(c))
	}

	return RGB{
		R: uint8(n >> 16 & 0xff),
		G: uint8(n >> 8 & 0xff),
		B: uint8(n & 0xff),
	}, nil
}

// Hex returns the color normalised to lower-case "#rrggbb".
func (c Color) Hex() string {
	return "#" + strings.ToLower(strings.TrimPrefix(string(c), "#"))
}

// String implements fmt.Stringer.
func (c Color) String() string {
	return string(c)
}

// FromStrings converts raw hex strings into a Palette, keeping their order.
func FromStrings(hex []string) Palette {
	p := make(Palette, len(hex))
	for i, h := range hex {
		p[i] = Color(h)
	}
	return p
}

// Strings returns the palette as plain strings (for JSON and storage).
func (p Palette) Strings() []string {
	out := make([]string, len(p))
	for i, c := range p {
		out[i] = string(c)
	}
	return out
}

// Clone returns a copy that shares no backing array with p.
func (p Palette) Clone() Palette {
	if p == nil {
		return nil
	}
	out := make(Palette, len(p))
	copy(out, p)
	return out
}
