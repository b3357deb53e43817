// Package mqtt is moodring's broker connection: it reads player bridge
// events and writes palettes, lookup outcomes, bridge health and a retained
// presence document (with a last will for crashes).
//
// # Architecture
//
// The audio player is not spoken to directly. A Sonos-to-MQTT bridge
// publishes topology and transport-state events; Moodring subscribes to
// them and publishes what it did back onto the same broker.
//
//	Sonos ↔ player bridge ↔ MQTT broker ↔ Moodring → Hue bridge (HTTP)
//
// Inbound handlers run in publish order (SetOrderMatters), on the same
// goroutine that delivers PUBACKs. Handlers must not block: a handler that
// waits on a goroutine which is itself waiting on a QoS 1 publish stalls
// both. The player listener hands payloads to a bounded queue that drops
// its oldest entry when full.
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) when the broker is not on localhost
//   - Set the password via MOODRING_MQTT_PASSWORD, not the config file
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.PublishJSON(mqtt.Topics{}.Palette(), event, true)
package mqtt
