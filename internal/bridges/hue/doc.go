// Package hue connects Moodring to a Philips Hue bridge.
//
// It covers the one-time setup a bridge needs before lights can be driven:
//
//   - Discovery: the vendor's N-UPnP cloud endpoint, mDNS (_hue._tcp) or a
//     fixed host from configuration
//   - Identification: GET /api/<username>/config; a reduced answer without
//     an ipaddress means the username is unknown to the bridge
//   - Registration: POST /api with a devicetype of "<username>#<description>";
//     the bridge only accepts it within 30 seconds of its link button being
//     pressed. Issued usernames are persisted in SQLite (hue_credentials).
//   - Enumeration: GET /api/<username>/lights, then exact-name matching of
//     the configured light assignments to palette slots
//
// The REST calls and the cloud lookup go through github.com/amimof/huego;
// mDNS browsing uses github.com/hashicorp/mdns.
//
// After setup, *Client satisfies lighting.Commander. Colors are sent as CIE
// xy plus brightness.
//
// A HealthReporter publishes the state of the bridge link to MQTT.
//
// # Usage
//
//	disc, err := hue.NewDiscoverer(cfg.Hue)
//	setup := hue.NewSetup(hue.SetupOptions{
//	    Discoverer:  disc,
//	    Credentials: hue.NewSQLiteCredentialStore(db.DB),
//	    Application: cfg.Application,
//	    Assignments: cfg.Lights,
//	})
//	result, err := setup.Run(ctx)
//	if err != nil {
//	    // run without lights
//	}
//	driver := lighting.NewDriver(lighting.NewTable(result.Slots), result.Client, log)
package hue
