// Package sonos follows a Sonos player through MQTT.
//
// Moodring does not speak UPnP itself. A player bridge on the network (for
// example node-sonos-http-api with its MQTT plugin) publishes two event
// streams which this package consumes:
//
//   - topology: the full zone layout, a JSON array of zones with their
//     coordinator and members
//   - transport state: one message per player whenever playback changes,
//     carrying the zone state and current/next track metadata
//
// The Listener resolves the configured room name to a Player on the first
// topology message and keeps that handle for the life of the process.
// Later topology messages only refresh the handle's coordinator so grouping
// changes are followed.
//
// All messages are funnelled through one buffered channel and handled by a
// single worker goroutine, so the TransportHandler is never called
// concurrently and sees events in arrival order.
package sonos
