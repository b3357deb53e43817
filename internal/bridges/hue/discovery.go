package hue

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/amimof/huego"
	"github.com/hashicorp/mdns"

	"github.com/nerrad567/moodring/internal/infrastructure/config"
)

// MDNSService is the DNS-SD service type Hue bridges advertise.
const MDNSService = "_hue._tcp"

// Bridge is a discovered bridge.
type Bridge struct {
	// ID is the bridge's unique ID, empty when the discovery method cannot
	// provide one (static host).
	ID   string
	Host string
	Port int
}

// Address returns the host[:port] the v1 REST API is reached on.
//
// The v1 API is always served on plain HTTP port 80, so the HTTPS port the
// cloud endpoint reports (443) is ignored.
func (b Bridge) Address() string {
	switch b.Port {
	case 0, 80, 443:
		return b.Host
	default:
		return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
	}
}

// Key identifies the bridge for credential storage.
func (b Bridge) Key() string {
	if b.ID != "" {
		return strings.ToLower(b.ID)
	}
	return b.Host
}

// Discoverer finds bridges on the network.
type Discoverer interface {
	Discover(ctx context.Context) ([]Bridge, error)
}

// NewDiscoverer returns the discoverer selected by cfg.Discovery.
func NewDiscoverer(cfg config.HueConfig) (Discoverer, error) {
	switch cfg.Discovery {
	case config.DiscoveryNUPnP, "":
		return NewNUPnPDiscoverer(config.Seconds(cfg.RequestTimeout)), nil
	case config.DiscoveryMDNS:
		return NewMDNSDiscoverer(config.Seconds(cfg.MDNSTimeout)), nil
	case config.DiscoveryStatic:
		return StaticDiscoverer{Host: cfg.Host}, nil
	default:
		return nil, fmt.Errorf("%w: unknown discovery mode %q", ErrDiscoveryFailed, cfg.Discovery)
	}
}

// =============================================================================
// N-UPnP
// =============================================================================

// NUPnPDiscoverer asks the vendor's cloud endpoint which bridges share the
// caller's public address.
type NUPnPDiscoverer struct {
	timeout  time.Duration
	discover func(context.Context) ([]huego.Bridge, error)
}

// NewNUPnPDiscoverer creates a discoverer that gives the cloud lookup up to
// timeout.
func NewNUPnPDiscoverer(timeout time.Duration) *NUPnPDiscoverer {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &NUPnPDiscoverer{timeout: timeout, discover: huego.DiscoverAllContext}
}

// Discover implements Discoverer. Entries without an address are dropped.
func (d *NUPnPDiscoverer) Discover(ctx context.Context) ([]Bridge, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	found, err := d.discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscoveryFailed, err)
	}

	bridges := make([]Bridge, 0, len(found))
	for _, b := range found {
		if b.Host == "" {
			continue
		}
		// The cloud reports the HTTPS port; the v1 API stays on port 80.
		bridges = append(bridges, Bridge{ID: b.ID, Host: b.Host})
	}
	return bridges, nil
}

// =============================================================================
// mDNS
// =============================================================================

// MDNSDiscoverer browses the local network for _hue._tcp.
type MDNSDiscoverer struct {
	timeout time.Duration
	query   func(*mdns.QueryParam) error
}

// NewMDNSDiscoverer creates a discoverer that browses for timeout.
func NewMDNSDiscoverer(timeout time.Duration) *MDNSDiscoverer {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &MDNSDiscoverer{timeout: timeout, query: mdns.Query}
}

// Discover implements Discoverer. It blocks for the browse timeout.
func (d *MDNSDiscoverer) Discover(ctx context.Context) ([]Bridge, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	collected := make(chan []Bridge, 1)

	go func() {
		seen := make(map[string]bool)
		var bridges []Bridge
		for entry := range entries {
			b, ok := bridgeFromEntry(entry)
			if !ok || seen[b.Host] {
				continue
			}
			seen[b.Host] = true
			bridges = append(bridges, b)
		}
		collected <- bridges
	}()

	params := &mdns.QueryParam{
		Service:     MDNSService,
		Domain:      "local",
		Timeout:     d.timeout,
		Entries:     entries,
		DisableIPv6: true,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.query(params)
		close(entries)
	}()

	var queryErr error
	select {
	case queryErr = <-errCh:
	case <-ctx.Done():
		// The browse ends on its own timeout; entries is closed then.
		return nil, ctx.Err()
	}

	bridges := <-collected
	if queryErr != nil && len(bridges) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrDiscoveryFailed, queryErr)
	}
	return bridges, nil
}

// bridgeFromEntry converts an mDNS answer into a Bridge.
func bridgeFromEntry(entry *mdns.ServiceEntry) (Bridge, bool) {
	if entry == nil || entry.AddrV4 == nil {
		return Bridge{}, false
	}
	b := Bridge{Host: entry.AddrV4.String(), Port: entry.Port}
	for _, field := range entry.InfoFields {
		if v, ok := strings.CutPrefix(field, "bridgeid="); ok {
			b.ID = v
		}
	}
	return b, true
}

// =============================================================================
// Static
// =============================================================================

// StaticDiscoverer returns the configured host without touching the network.
type StaticDiscoverer struct {
	Host string
}

// Discover implements Discoverer.
func (d StaticDiscoverer) Discover(_ context.Context) ([]Bridge, error) {
	if d.Host == "" {
		return nil, nil
	}
	return []Bridge{{Host: d.Host}}, nil
}
