// Package palette holds the color primitives shared by the resolver, the
// cache and the light driver.
//
// A Palette is an ordered list of hex colors, most dominant first. The index
// of a color is its slot: slot 0 drives every light assigned to slot 0, and
// so on. Slots beyond the palette's length are left alone.
//
//	p := palette.Palette{"#1a2b3c", "#ffffff"}
//	rgb, _ := p[0].RGB() // {26 43 60}
package palette
