package resolver

import "errors"

var (
	// ErrArtworkLookup means the cover-art query failed outright. Callers
	// drop the result and leave the cache placeholder as it is.
	ErrArtworkLookup = errors.New("resolver: artwork lookup failed")

	// ErrNoColors means the lookup finished without usable colors: no
	// artwork, a failed color request, or an empty tag list. Callers store
	// the sentinel palette.
	ErrNoColors = errors.New("resolver: no colors found")
)
