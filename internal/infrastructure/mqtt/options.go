package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/moodring/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second

	// ackTimeout bounds every publish/subscribe round trip. Kept short: the
	// reactor would rather drop a palette publish than stall a track change.
	ackTimeout = 5 * time.Second

	// quiesceMillis is handed to paho's Disconnect, which takes milliseconds.
	quiesceMillis = 500

	keepAlive = 30 * time.Second
	maxQoS    = 2
)

// Presence states and reasons written to Topics.SystemStatus.
const (
	presenceOnline  = "online"
	presenceOffline = "offline"

	reasonShutdown = "graceful_shutdown"
	reasonLost     = "unexpected_disconnect"
)

// presence is the retained document on moodring/system/status.
type presence struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// presencePayload encodes a presence document stamped with the current time.
func presencePayload(clientID, status, reason string) []byte {
	payload, err := json.Marshal(presence{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		// Only strings in the struct; Marshal cannot fail here.
		return nil
	}
	return payload
}

// brokerURL renders the paho server URL for the configured broker.
func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// buildClientOptions maps the mqtt config section onto paho options,
// including the last will that marks moodring offline if it dies.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Transport events for one player must be handled in publish order or a
	// stale PAUSED can overwrite a newer PLAYING. The listener keeps its
	// handler non-blocking so ordered delivery cannot stall PUBACKs.
	opts.SetOrderMatters(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(config.Seconds(cfg.Reconnect.InitialDelay))
	opts.SetMaxReconnectInterval(config.Seconds(cfg.Reconnect.MaxDelay))

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	// Will payload is fixed at connect time, so its timestamp is the
	// connect time, not the moment the broker fires it.
	opts.SetBinaryWill(Topics{}.SystemStatus(),
		presencePayload(cfg.Broker.ClientID, presenceOffline, reasonLost),
		1, true)

	return opts
}
