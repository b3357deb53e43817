// Package lighting sends palettes to lights.
//
// A Table maps palette slots to light IDs. It is built once, after bridge
// setup, and never changes. The Driver walks a palette, looks up the lights
// for each slot and fires one independent state command per light. Commands
// are fire-and-forget: each result is logged and nothing waits on it, so a
// slow or failing light never holds up the others.
//
//	table := lighting.NewTable(map[int][]string{0: {"1", "2"}, 1: {"3"}})
//	driver := lighting.NewDriver(table, hueClient, logger)
//	driver.Apply(ctx, palette.Palette{"#1a2b3c", "#ffffff"})
//
// A Driver with no Commander (no bridge was found) ignores every palette.
package lighting
