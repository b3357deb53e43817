// Package resolver turns an (artist, album) pair into a palette by finding
// the album's cover art and asking the color service for its dominant colors.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/moodring/internal/artwork"
	"github.com/nerrad567/moodring/internal/colortag"
	"github.com/nerrad567/moodring/internal/palette"
)

// ArtworkFinder looks up cover art. Implemented by *artwork.Client.
type ArtworkFinder interface {
	Search(ctx context.Context, artist, album string) (string, error)
}

// ColorTagger extracts colors from an image URL. Implemented by *colortag.Client.
type ColorTagger interface {
	TagURL(ctx context.Context, imageURL string) (colortag.Response, error)
}

// Logger is the logging surface the resolver needs.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Resolver chains the artwork and color lookups. It keeps no state, so a
// single Resolver serves concurrent lookups.
type Resolver struct {
	artwork ArtworkFinder
	colors  ColorTagger
	logger  Logger
}

// New creates a Resolver.
func New(art ArtworkFinder, colors ColorTagger) *Resolver {
	return &Resolver{artwork: art, colors: colors, logger: noopLogger{}}
}

// SetLogger sets the logger used for per-step debug output.
func (r *Resolver) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Resolve finds the ordered palette for an album.
//
// Exactly one of the return values is meaningful:
//   - a non-empty palette and nil error on success
//   - ErrArtworkLookup (wrapped) when the cover-art query failed
//   - ErrNoColors (wrapped) for every other way of ending without colors
//
// No retries are made; timeouts come from the underlying HTTP clients.
func (r *Resolver) Resolve(ctx context.Context, artist, album string) (palette.Palette, error) {
	imageURL, err := r.artwork.Search(ctx, artist, album)
	if err != nil {
		if errors.Is(err, artwork.ErrNoArtwork) {
			return nil, fmt.Errorf("%w: %w", ErrNoColors, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrArtworkLookup, err)
	}
	if imageURL == "" {
		return nil, fmt.Errorf("%w: empty artwork url", ErrNoColors)
	}

	r.logger.Debug("cover art found", "artist", artist, "album", album, "url", imageURL)

	resp, err := r.colors.TagURL(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoColors, err)
	}

	p := resp.Palette()
	if len(p) == 0 {
		return nil, fmt.Errorf("%w: color service returned no tags", ErrNoColors)
	}

	r.logger.Debug("colors found", "artist", artist, "album", album, "colors", p.Strings())

	return p, nil
}
