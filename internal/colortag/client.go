// Package colortag extracts dominant colors from an image URL using a remote
// color-tagging service (the Mashape/RapidAPI "tag-url" endpoint).
package colortag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nerrad567/moodring/internal/infrastructure/config"
	"github.com/nerrad567/moodring/internal/palette"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultKeyHeader = "X-Mashape-Key"
	maxResponseSize  = 1 << 20
)

// Tag is one color reported by the service.
type Tag struct {
	Label  string  `json:"label"`
	Color  string  `json:"color"`
	Weight float64 `json:"weight"`
}

// Response is the decoded service reply. Tags is nil when the field was
// missing, which callers treat the same as an empty list.
type Response struct {
	Tags []Tag `json:"tags"`
}

// Palette returns the tag colors in the order the service sent them.
//
// Tag i always lands in slot i. A tag without a color keeps its slot as an
// empty entry, which the light driver skips as invalid.
func (r Response) Palette() palette.Palette {
	if len(r.Tags) == 0 {
		return nil
	}
	p := make(palette.Palette, len(r.Tags))
	for i, t := range r.Tags {
		p[i] = palette.Color(t.Color)
	}
	return p
}

// Client calls the color-tagging service.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	keyHeader  string
	palette    string
	sort       string
	httpClient *http.Client
}

// New creates a client from the colortag config section.
func New(cfg config.ColorTagConfig) *Client {
	timeout := config.Seconds(cfg.Timeout)
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	keyHeader := cfg.KeyHeader
	if keyHeader == "" {
		keyHeader = defaultKeyHeader
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		keyHeader:  keyHeader,
		palette:    cfg.Palette,
		sort:       cfg.Sort,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// TagURL asks the service for the colors of the image at imageURL.
//
// Parameters:
//   - ctx: Context for cancellation
//   - imageURL: Publicly reachable image address
//
// Returns:
//   - Response: Decoded tags (possibly empty)
//   - error: ErrRequestFailed or ErrInvalidResponse (wrapped)
func (c *Client) TagURL(ctx context.Context, imageURL string) (Response, error) {
	q := url.Values{}
	if c.palette != "" {
		q.Set("palette", c.palette)
	}
	if c.sort != "" {
		q.Set("sort", c.sort)
	}
	q.Set("url", imageURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tag-url.json?"+q.Encode(), nil)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	req.Header.Set(c.keyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Response{}, fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	return out, nil
}
