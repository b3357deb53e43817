package hue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/amimof/huego"

	"github.com/nerrad567/moodring/internal/lighting"
)

// DeviceTypeMaxLength is the longest devicetype the bridge accepts.
const DeviceTypeMaxLength = 40

// defaultRequestTimeout bounds each bridge call when none is configured.
const defaultRequestTimeout = 5 * time.Second

// BridgeConfig is the subset of GET /api/<user>/config the service uses.
//
// An unauthorised username still gets a reduced config back; the reduced
// form leaves IPAddress empty.
type BridgeConfig struct {
	Name       string `json:"name"`
	BridgeID   string `json:"bridgeid"`
	IPAddress  string `json:"ipaddress"`
	APIVersion string `json:"apiversion"`
	SWVersion  string `json:"swversion"`
	ModelID    string `json:"modelid"`
}

// Authorized reports whether the config came back for a known application.
func (c BridgeConfig) Authorized() bool {
	return c.IPAddress != ""
}

// Light is one entry of the bridge's light inventory.
type Light struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	ModelID   string `json:"modelid"`
	Reachable bool   `json:"reachable"`
}

// Client talks to one bridge over the v1 REST API through huego.
//
// huego binds the username to its Bridge value, so a username change swaps
// in a new one.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	host    string
	timeout time.Duration

	mu     sync.RWMutex
	bridge *huego.Bridge
}

// NewClient creates a client for the bridge at host ("10.0.0.2" or
// "10.0.0.2:8080"). username may be empty before registration.
func NewClient(host, username string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	c := &Client{host: host, timeout: timeout}
	c.bridge = c.newBridge(username)
	return c
}

// newBridge builds a huego bridge for username. The scheme is set up front
// because huego otherwise adds it by writing to the shared Bridge.
func (c *Client) newBridge(username string) *huego.Bridge {
	return huego.New("http://"+c.host, username)
}

// Host returns the bridge address.
func (c *Client) Host() string {
	return c.host
}

// Username returns the application username in use.
func (c *Client) Username() string {
	return c.current().User
}

// SetUsername switches the session to a different username.
func (c *Client) SetUsername(username string) {
	b := c.newBridge(username)
	c.mu.Lock()
	c.bridge = b
	c.mu.Unlock()
}

func (c *Client) current() *huego.Bridge {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bridge
}

// Config fetches the bridge configuration for the current username.
//
// Returns:
//   - BridgeConfig: Reduced (IPAddress empty) when the username is unknown
//   - error: ErrRequestFailed if the bridge cannot be reached
func (c *Client) Config(ctx context.Context) (BridgeConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cfg, err := c.current().GetConfigContext(ctx)
	if err != nil {
		// Older firmware answers unknown users with an error array
		// instead of a reduced config.
		if isErrorArray(err) {
			return BridgeConfig{}, nil
		}
		return BridgeConfig{}, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	if cfg == nil {
		return BridgeConfig{}, fmt.Errorf("%w: empty config", ErrRequestFailed)
	}

	return BridgeConfig{
		Name:       cfg.Name,
		BridgeID:   cfg.BridgeID,
		IPAddress:  cfg.IPAddress,
		APIVersion: cfg.APIVersion,
		SWVersion:  cfg.SwVersion,
		ModelID:    cfg.ModelID,
	}, nil
}

// Register creates a new application on the bridge.
//
// The devicetype sent is "<username>#<description>", cut to the bridge's
// 40 character limit on a rune boundary. On success the client switches to
// the username the bridge issued.
//
// Returns:
//   - string: The issued username
//   - error: ErrLinkButtonNotPressed or ErrRegistrationFailed
func (c *Client) Register(ctx context.Context, username, description string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	deviceType := truncateRunes(username+"#"+description, DeviceTypeMaxLength)

	// Registration goes to /api without a username.
	issued, err := c.newBridge("").CreateUserContext(ctx, deviceType)
	if err != nil {
		var apiErr *huego.APIError
		if errors.As(err, &apiErr) {
			if apiErr.Type == apiErrorLinkButtonNeeded {
				return "", ErrLinkButtonNotPressed
			}
			return "", fmt.Errorf("%w: %s", ErrRegistrationFailed, apiErr.Description)
		}
		return "", fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}

	if issued == "" {
		issued = username
	}
	c.SetUsername(issued)
	return issued, nil
}

// Lights returns the bridge's light inventory ordered by ID.
func (c *Client) Lights(ctx context.Context) ([]Light, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	found, err := c.current().GetLightsContext(ctx)
	if err != nil {
		// The lights resource only answers with an array on error, and
		// an unknown username is the error it reports.
		if isErrorArray(err) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	lights := make([]Light, 0, len(found))
	for _, l := range found {
		light := Light{
			ID:      strconv.Itoa(l.ID),
			Name:    l.Name,
			Type:    l.Type,
			ModelID: l.ModelID,
		}
		if l.State != nil {
			light.Reachable = l.State.Reachable
		}
		lights = append(lights, light)
	}
	sort.Slice(lights, func(i, j int) bool {
		return lightIDLess(lights[i].ID, lights[j].ID)
	})
	return lights, nil
}

// SetLightState sends state to one light. It satisfies lighting.Commander.
func (c *Client) SetLightState(ctx context.Context, lightID string, state lighting.LightState) error {
	id, err := strconv.Atoi(lightID)
	if err != nil {
		return fmt.Errorf("%w: light %q is not a bridge light ID", ErrCommandFailed, lightID)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	hs := huego.State{On: state.On}
	if state.On {
		x, y, bri := RGBToXYBrightness(state.RGB.R, state.RGB.G, state.RGB.B)
		hs.Xy = []float32{float32(x), float32(y)}
		hs.Bri = uint8(bri)
	}

	if _, err := c.current().SetLightStateContext(ctx, id, hs); err != nil {
		var apiErr *huego.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("%w: light %s: %s", ErrCommandFailed, lightID, apiErr.Description)
		}
		return fmt.Errorf("%w: light %s: %w", ErrCommandFailed, lightID, err)
	}
	return nil
}

// RGBToXYBrightness converts an sRGB color to CIE xy chromaticity and a
// bridge brightness (1-254) using the wide gamut conversion Philips
// documents for its lights.
func RGBToXYBrightness(r, g, b uint8) (x, y float64, bri int) {
	// Linearise sRGB.
	red := gammaCorrect(float64(r) / 255)
	green := gammaCorrect(float64(g) / 255)
	blue := gammaCorrect(float64(b) / 255)

	// Wide gamut D65 matrix.
	bigX := red*0.664511 + green*0.154324 + blue*0.162028
	bigY := red*0.283881 + green*0.668433 + blue*0.047685
	bigZ := red*0.000088 + green*0.072310 + blue*0.986039

	sum := bigX + bigY + bigZ
	if sum == 0 {
		// Black has no chromaticity; use the D65 white point.
		return 0.3127, 0.3290, 1
	}

	x = round4(bigX / sum)
	y = round4(bigY / sum)

	// Luminance drives brightness; 0 would read as "unchanged" to the
	// bridge, so the floor is 1.
	bri = int(math.Round(bigY * 254))
	bri = max(1, min(254, bri))
	return x, y, bri
}

func gammaCorrect(v float64) float64 {
	if v > 0.04045 {
		return math.Pow((v+0.055)/1.055, 2.4)
	}
	return v / 12.92
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// isErrorArray reports whether huego failed decoding because the bridge
// answered with a [{"error":...}] array where it expected an object.
func isErrorArray(err error) bool {
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &typeErr) && typeErr.Value == "array"
}

// lightIDLess orders numeric IDs numerically and everything else lexically.
func lightIDLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
