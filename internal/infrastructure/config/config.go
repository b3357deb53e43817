package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Moodring.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Player      PlayerConfig      `yaml:"player"`
	Lights      []LightAssignment `yaml:"lights"`
	Palette     PaletteConfig     `yaml:"palette"`
	Application ApplicationConfig `yaml:"application"`
	Hue         HueConfig         `yaml:"hue"`
	Artwork     ArtworkConfig     `yaml:"artwork"`
	ColorTag    ColorTagConfig    `yaml:"colortag"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// PlayerConfig identifies the audio player whose playback drives the lights.
type PlayerConfig struct {
	// Name is the player's friendly (room) name, e.g. "family room".
	Name   string             `yaml:"name"`
	Topics PlayerTopicsConfig `yaml:"topics"`
}

// PlayerTopicsConfig names the MQTT topics the player bridge publishes on.
type PlayerTopicsConfig struct {
	Topology       string `yaml:"topology"`
	TransportState string `yaml:"transport_state"`
}

// LightAssignment maps a bridge light (by exact name) to a palette slot.
type LightAssignment struct {
	Light string `yaml:"light"`
	Slot  int    `yaml:"slot"`
}

// PaletteConfig controls color lookup behaviour.
type PaletteConfig struct {
	// ErrorColors is the sentinel palette stored when no colors can be found.
	ErrorColors []string `yaml:"error_colors"`

	// NextTrackCaching enables prefetching the next track's palette.
	NextTrackCaching bool `yaml:"next_track_caching"`

	// RetryFailedLookups removes the cache placeholder when the cover-art
	// query fails, so the next notification tries again. When false the
	// placeholder stays and the track never resolves for the process lifetime.
	RetryFailedLookups bool `yaml:"retry_failed_lookups"`
}

// ApplicationConfig is the identity registered with the lighting bridge.
type ApplicationConfig struct {
	Username    string `yaml:"username"`
	Description string `yaml:"description"`
}

// HueConfig contains lighting bridge settings.
type HueConfig struct {
	// Discovery is the bridge discovery mode: "nupnp", "mdns" or "static".
	Discovery string `yaml:"discovery"`

	// Host is the bridge address used in static mode.
	Host string `yaml:"host"`

	// Username overrides the stored/registered bridge username.
	Username string `yaml:"username"`

	MDNSTimeout    int    `yaml:"mdns_timeout"`
	RequestTimeout int    `yaml:"request_timeout"`
	HealthInterval int    `yaml:"health_interval"`
}

// ArtworkConfig contains cover-art (Last.fm) lookup settings.
type ArtworkConfig struct {
	APIKey string `yaml:"api_key"`

	// Size is the preferred Last.fm image size ("mega" by default).
	Size    string `yaml:"size"`
	Timeout int    `yaml:"timeout"`
}

// ColorTagConfig contains remote color extraction settings.
type ColorTagConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	KeyHeader string `yaml:"key_header"`
	Palette   string `yaml:"palette"`
	Sort      string `yaml:"sort"`
	Timeout   int    `yaml:"timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP status API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Discovery modes accepted in hue.discovery.
const (
	DiscoveryNUPnP  = "nupnp"
	DiscoveryMDNS   = "mdns"
	DiscoveryStatic = "static"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MOODRING_SECTION_KEY
// For example: MOODRING_DATABASE_PATH, MOODRING_LASTFM_API_KEY
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Player: PlayerConfig{
			Name: "family room",
			Topics: PlayerTopicsConfig{
				Topology:       "sonos/topology",
				TransportState: "sonos/transport-state",
			},
		},
		Palette: PaletteConfig{
			ErrorColors:      []string{"#330033"},
			NextTrackCaching: true,
		},
		Application: ApplicationConfig{
			Username:    "sonos-moodring",
			Description: "Display cover art colors from Sonos",
		},
		Hue: HueConfig{
			Discovery:      DiscoveryNUPnP,
			MDNSTimeout:    3,
			RequestTimeout: 10,
			HealthInterval: 30,
		},
		Artwork: ArtworkConfig{
			Size:    "mega",
			Timeout: 10,
		},
		ColorTag: ColorTagConfig{
			BaseURL:   "https://apicloud-colortag.p.mashape.com",
			KeyHeader: "X-Mashape-Key",
			Palette:   "simple",
			Sort:      "weight",
			Timeout:   15,
		},
		Database: DatabaseConfig{
			Path:        "./data/moodring.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "moodring",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MOODRING_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Player
	if v := os.Getenv("MOODRING_PLAYER_NAME"); v != "" {
		cfg.Player.Name = v
	}

	// Hue
	if v := os.Getenv("MOODRING_HUE_HOST"); v != "" {
		cfg.Hue.Host = v
	}
	if v := os.Getenv("MOODRING_HUE_USERNAME"); v != "" {
		cfg.Hue.Username = v
	}

	// Third-party API keys
	if v := os.Getenv("MOODRING_LASTFM_API_KEY"); v != "" {
		cfg.Artwork.APIKey = v
	}
	if v := os.Getenv("MOODRING_COLORTAG_API_KEY"); v != "" {
		cfg.ColorTag.APIKey = v
	}

	// Database
	if v := os.Getenv("MOODRING_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("MOODRING_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MOODRING_MQTT_PORT"); v != "" {
		// A malformed port is ignored and the file value kept.
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("MOODRING_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MOODRING_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("MOODRING_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Every problem found is reported, not just the first.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Player: the zone to follow and where the bridge publishes its events.
	if strings.TrimSpace(c.Player.Name) == "" {
		errs = append(errs, "player.name is required")
	}
	if c.Player.Topics.Topology == "" || c.Player.Topics.TransportState == "" {
		errs = append(errs, "player.topics.topology and player.topics.transport_state are required")
	}

	// An empty list is valid: moodring then only tracks and caches. Slots
	// past the palette length are accepted and simply stay dark.
	for i, l := range c.Lights {
		if l.Light == "" {
			errs = append(errs, fmt.Sprintf("lights[%d].light is required", i))
		}
		if l.Slot < 0 {
			errs = append(errs, fmt.Sprintf("lights[%d].slot must be >= 0", i))
		}
	}

	// Sentinel colors are what the lights show when an album has no art.
	if len(c.Palette.ErrorColors) == 0 {
		errs = append(errs, "palette.error_colors must contain at least one color")
	}
	for i, hex := range c.Palette.ErrorColors {
		if !isHexColor(hex) {
			errs = append(errs, fmt.Sprintf("palette.error_colors[%d] %q is not a hex color", i, hex))
		}
	}

	if c.Application.Username == "" {
		errs = append(errs, "application.username is required")
	}

	switch c.Hue.Discovery {
	case DiscoveryNUPnP, DiscoveryMDNS:
		// host is ignored when discovering.
	case DiscoveryStatic:
		if c.Hue.Host == "" {
			errs = append(errs, "hue.host is required when hue.discovery is static (set MOODRING_HUE_HOST)")
		}
	default:
		errs = append(errs, "hue.discovery must be nupnp, mdns, or static")
	}

	// Both lookups fail closed without keys, so refuse to start instead.
	if c.Artwork.APIKey == "" {
		errs = append(errs, "artwork.api_key is required (set MOODRING_LASTFM_API_KEY)")
	}
	if c.ColorTag.APIKey == "" {
		errs = append(errs, "colortag.api_key is required (set MOODRING_COLORTAG_API_KEY)")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// Broker host/port have defaults; only QoS can be out of range.
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// isHexColor reports whether s is a 6-digit hex color with optional leading '#'.
func isHexColor(s string) bool {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return false
	}
	_, err := strconv.ParseUint(s, 16, 32)
	return err == nil
}

// ReadTimeout returns the API read timeout as a Duration.
func (c APIConfig) ReadTimeout() time.Duration {
	return Seconds(c.Timeouts.Read)
}

// WriteTimeout returns the API write timeout as a Duration.
// WebSocket connections are hijacked and not bound by it.
func (c APIConfig) WriteTimeout() time.Duration {
	return Seconds(c.Timeouts.Write)
}

// IdleTimeout returns the API keep-alive idle timeout as a Duration.
func (c APIConfig) IdleTimeout() time.Duration {
	return Seconds(c.Timeouts.Idle)
}

// Seconds converts a whole-second config value to a Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
