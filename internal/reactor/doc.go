// Package reactor turns player transport changes into light changes.
//
// HandleTransportState is called once per transport-state event, never
// concurrently. It acts only when the event comes from the tracked
// player's coordinator and the zone is PLAYING. For the current track it
// either sends a cached palette to the lights or starts a lookup; for the
// next track it starts a lookup ahead of time so the palette is ready when
// the track begins.
//
// Lookups run in their own goroutines. A pending placeholder in the color
// cache marks a lookup in flight so the same album is never looked up
// twice at once. Lookups that find no colors store the sentinel palette
// permanently. A failed cover-art query leaves the placeholder in place
// unless retry_failed_lookups is enabled, in which case the placeholder is
// removed and the next event for that album tries again.
package reactor
