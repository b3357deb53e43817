package artwork

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shkh/lastfm-go/lastfm"

	"github.com/nerrad567/moodring/internal/infrastructure/config"
)

const (
	defaultTimeout = 10 * time.Second

	// lastfmAlbumNotFound is Last.fm's "invalid parameters" error, which it
	// also uses for unknown albums.
	lastfmAlbumNotFound = 6
)

// sizeRank orders Last.fm image sizes from smallest to largest.
var sizeRank = map[string]int{
	"small":      1,
	"medium":     2,
	"large":      3,
	"extralarge": 4,
	"mega":       5,
}

// image is one sized cover image from album.getinfo.
type image struct {
	Size string
	URL  string
}

// albumInfoFunc runs album.getinfo and returns the album's images.
type albumInfoFunc func(artist, album string) ([]image, error)

// Client queries Last.fm for cover art.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	size    string
	timeout time.Duration
	getInfo albumInfoFunc
}

// New creates a Last.fm client from the artwork config section.
// album.getinfo is an unsigned method, so no shared secret is needed.
func New(cfg config.ArtworkConfig) *Client {
	api := lastfm.New(cfg.APIKey, "")

	return newClient(cfg, func(artist, album string) ([]image, error) {
		info, err := api.Album.GetInfo(lastfm.P{
			"artist":      artist,
			"album":       album,
			"autocorrect": 1,
		})
		if err != nil {
			return nil, err
		}

		images := make([]image, 0, len(info.Images))
		for _, img := range info.Images {
			images = append(images, image{Size: img.Size, URL: img.Url})
		}
		return images, nil
	})
}

func newClient(cfg config.ArtworkConfig, getInfo albumInfoFunc) *Client {
	timeout := config.Seconds(cfg.Timeout)
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	size := cfg.Size
	if size == "" {
		size = "mega"
	}

	return &Client{
		size:    size,
		timeout: timeout,
		getInfo: getInfo,
	}
}

type albumInfoResult struct {
	images []image
	err    error
}

// Search returns the URL of the album's cover image.
//
// The Last.fm library takes no context, so the call runs in its own
// goroutine and Search stops waiting when ctx or the client timeout ends.
//
// Parameters:
//   - ctx: Context for cancellation
//   - artist: Album artist as reported by the player
//   - album: Album title as reported by the player
//
// Returns:
//   - string: Image URL
//   - error: ErrNoArtwork or ErrLookupFailed (wrapped)
func (c *Client) Search(ctx context.Context, artist, album string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// Buffered so an abandoned call can still finish.
	done := make(chan albumInfoResult, 1)
	go func() {
		images, err := c.getInfo(artist, album)
		done <- albumInfoResult{images: images, err: err}
	}()

	var res albumInfoResult
	select {
	case res = <-done:
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrLookupFailed, ctx.Err())
	}

	if res.err != nil {
		return "", classify(res.err)
	}
	return c.pick(res.images)
}

// pick returns the configured size, else the largest image with a URL.
func (c *Client) pick(images []image) (string, error) {
	best, bestRank := "", 0
	for _, img := range images {
		u := strings.TrimSpace(img.URL)
		if u == "" {
			continue
		}
		if img.Size == c.size {
			return u, nil
		}
		if r := sizeRank[img.Size]; r >= bestRank {
			best, bestRank = u, r
		}
	}

	if best == "" {
		return "", ErrNoArtwork
	}
	return best, nil
}

// classify maps a Last.fm failure onto the package errors.
func classify(err error) error {
	var apiErr *lastfm.LastfmError
	if errors.As(err, &apiErr) {
		if apiErr.Code == lastfmAlbumNotFound {
			return fmt.Errorf("%w: %s", ErrNoArtwork, apiErr.Message)
		}
		return fmt.Errorf("%w: lastfm error %d: %s", ErrLookupFailed, apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("%w: %w", ErrLookupFailed, err)
}
