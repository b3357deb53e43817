package artwork

import "errors"

var (
	// ErrNoArtwork is returned when the album is unknown or has no image.
	ErrNoArtwork = errors.New("artwork: no cover art found")

	// ErrLookupFailed is returned when the Last.fm query itself fails.
	ErrLookupFailed = errors.New("artwork: lookup failed")
)
