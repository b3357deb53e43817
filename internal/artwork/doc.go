// Package artwork finds album cover images through the Last.fm API.
//
// Only album.getinfo is used, through github.com/shkh/lastfm-go. Last.fm
// returns several image sizes per album; the client picks the configured
// size (normally "mega") and falls back to the largest size that has a URL.
//
// Two failure classes are kept apart because callers treat them differently:
//   - ErrNoArtwork: Last.fm answered, but has no image (or no such album)
//   - ErrLookupFailed: the query itself failed (network, API error, timeout)
package artwork
