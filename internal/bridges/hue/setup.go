package hue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/moodring/internal/infrastructure/config"
)

// Logger is the logging surface the bridge package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SetupOptions configures a Setup run.
type SetupOptions struct {
	// Discoverer finds the bridge. Required.
	Discoverer Discoverer

	// Credentials stores issued usernames. Optional; without it a
	// registration is used for this run only.
	Credentials CredentialStore

	// Application is the identity to register with.
	Application config.ApplicationConfig

	// Username overrides the stored credential when set (hue.username).
	Username string

	// Assignments maps light names to palette slots.
	Assignments []config.LightAssignment

	// RequestTimeout bounds each bridge call.
	RequestTimeout time.Duration

	Logger Logger
}

// SetupResult is what a successful setup produces.
type SetupResult struct {
	Bridge     Bridge
	Client     *Client
	Config     BridgeConfig
	Lights     []Light
	Slots      map[int][]string
	Registered bool
}

// Setup discovers a bridge, makes sure this application is registered with
// it and resolves the configured light assignments.
type Setup struct {
	opts   SetupOptions
	logger Logger
}

// NewSetup creates a Setup.
func NewSetup(opts SetupOptions) *Setup {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Setup{opts: opts, logger: logger}
}

// Run performs discovery, identification, registration if needed, light
// enumeration and assignment resolution, in that order. It stops at the
// first failure.
//
// Returns:
//   - *SetupResult: The connected client and resolved slot table
//   - error: ErrNoBridges, ErrLinkButtonNotPressed, ErrRegistrationFailed,
//     ErrDiscoveryFailed or ErrRequestFailed (wrapped)
func (s *Setup) Run(ctx context.Context) (*SetupResult, error) {
	if s.opts.Discoverer == nil {
		return nil, fmt.Errorf("%w: no discoverer configured", ErrDiscoveryFailed)
	}

	bridges, err := s.opts.Discoverer.Discover(ctx)
	if err != nil {
		return nil, err
	}
	if len(bridges) == 0 {
		return nil, ErrNoBridges
	}
	// First answer wins. With several bridges on the LAN, pin one via
	// hue.host instead.
	bridge := bridges[0]
	s.logger.Info("hue bridge found", "bridge_id", bridge.ID, "host", bridge.Host, "count", len(bridges))

	// Static hosts have no ID until the bridge answers, so the credential
	// key is fixed before identification.
	credKey := bridge.Key()
	client := NewClient(bridge.Address(), s.username(ctx, credKey), s.opts.RequestTimeout)

	bridgeCfg, err := client.Config(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading bridge config: %w", err)
	}

	// An unknown username gets the reduced config back, not an error. That
	// is the signal to register.
	registered := false
	if !bridgeCfg.Authorized() {
		s.logger.Info("registering with hue bridge, press the link button if this fails",
			"host", bridge.Host, "username", s.opts.Application.Username)

		issued, err := client.Register(ctx, s.opts.Application.Username, s.opts.Application.Description)
		if err != nil {
			return nil, err
		}
		registered = true

		// Re-read now that we are whitelisted; the reduced config lacks
		// the bridge ID for static hosts.
		if bridgeCfg, err = client.Config(ctx); err != nil {
			return nil, fmt.Errorf("reading bridge config: %w", err)
		}
		// Best effort: a failed save costs a link-button press next start.
		s.saveCredential(ctx, credKey, bridge.Host, issued)
	}
	if bridge.ID == "" {
		bridge.ID = bridgeCfg.BridgeID
	}

	lights, err := client.Lights(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing lights: %w", err)
	}

	// Assignments naming lights that are not on this bridge are dropped
	// silently; the slot log line shows what actually matched.
	slots := ResolveAssignments(lights, s.opts.Assignments)
	s.logger.Info("hue lights resolved",
		"bridge", bridgeCfg.Name,
		"lights_found", len(lights),
		"slots", slots,
	)

	return &SetupResult{
		Bridge:     bridge,
		Client:     client,
		Config:     bridgeCfg,
		Lights:     lights,
		Slots:      slots,
		Registered: registered,
	}, nil
}

// username picks the configured override, then a stored credential, then
// the application username.
func (s *Setup) username(ctx context.Context, key string) string {
	if s.opts.Username != "" {
		return s.opts.Username
	}
	if s.opts.Credentials != nil {
		cred, err := s.opts.Credentials.Get(ctx, key)
		switch {
		case err == nil:
			return cred.Username
		case !errors.Is(err, ErrCredentialNotFound):
			s.logger.Warn("reading stored credential failed", "bridge", key, "error", err)
		}
	}
	return s.opts.Application.Username
}

func (s *Setup) saveCredential(ctx context.Context, key, host, username string) {
	if s.opts.Credentials == nil {
		return
	}
	err := s.opts.Credentials.Save(ctx, Credential{
		BridgeID: key,
		Host:     host,
		Username: username,
	})
	if err != nil {
		s.logger.Warn("storing bridge credential failed", "bridge", key, "error", err)
		return
	}
	s.logger.Info("hue bridge credential stored", "bridge", key)
}

// ResolveAssignments matches assignments to the inventory by exact light
// name. Unknown names are skipped. Several lights may share a slot; their
// order follows the assignment order.
func ResolveAssignments(lights []Light, assignments []config.LightAssignment) map[int][]string {
	// Names are not unique on a bridge; keep every ID per name.
	byName := make(map[string][]string, len(lights))
	for _, l := range lights {
		byName[l.Name] = append(byName[l.Name], l.ID)
	}

	slots := make(map[int][]string)
	for _, a := range assignments {
		for _, id := range byName[a.Light] {
			slots[a.Slot] = append(slots[a.Slot], id)
		}
	}
	return slots
}
