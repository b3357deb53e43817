// Package influxdb records Moodring activity as time-series metrics.
//
// It wraps the official influxdb-client-go v2 library. InfluxDB is optional;
// when influxdb.enabled is false nothing is connected and callers hold a nil
// *Client, which every write method tolerates.
//
// # Measurements
//
//   - palette_applied: tags source (cache, lookup, sentinel); fields slots, commands
//   - color_lookup: tags outcome (resolved, sentinel, dropped), prefetch; field duration_ms
//   - light_command: tags light_id, result (ok, error)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WritePaletteMetric("lookup", 5, 2)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched according to batch_size and flush_interval; write errors arrive
// through the SetOnError callback.
package influxdb
