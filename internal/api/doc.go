// Package api implements the HTTP status API and WebSocket server for Moodring.
//
// This package provides:
//   - Read-only REST endpoints for health, metrics, the palette cache, light
//     assignments and palette history
//   - A WebSocket hub that streams palette and lookup events
//   - Middleware (request ID, logging, recovery, body size limit)
//
// # Endpoints
//
//	GET /api/v1/health            process and bridge health
//	GET /api/v1/metrics           runtime, cache, light and database metrics
//	GET /api/v1/cache             cached album palettes
//	GET /api/v1/lights            slot to light assignments
//	GET /api/v1/history?limit=N   recent palette dispatches
//	GET /api/v1/ws                WebSocket (channels: palette.applied,
//	                              palette.lookup, bridge.health)
//
// # Graceful Degradation
//
// MQTT, the history repository and the bridge status are optional. Without
// them the matching fields are omitted or the endpoint answers 503.
package api
