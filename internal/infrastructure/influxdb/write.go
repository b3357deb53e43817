package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementPalette      = "palette_applied"
	MeasurementLookup       = "color_lookup"
	MeasurementLightCommand = "light_command"
)

// WritePaletteMetric records one palette dispatch.
//
// Parameters:
//   - source: where the palette came from ("cache", "lookup", "sentinel")
//   - slots: number of colors in the palette
//   - commands: number of light commands issued for it
func (c *Client) WritePaletteMetric(source string, slots, commands int) {
	c.write(MeasurementPalette,
		map[string]string{"source": source},
		map[string]any{"slots": slots, "commands": commands})
}

// WriteLookupMetric records how a color lookup ended ("resolved",
// "sentinel" or "dropped") and how long it took from placeholder to finish.
func (c *Client) WriteLookupMetric(outcome string, prefetch bool, duration time.Duration) {
	c.write(MeasurementLookup,
		map[string]string{"outcome": outcome, "prefetch": strconv.FormatBool(prefetch)},
		map[string]any{"duration_ms": duration.Milliseconds()})
}

// WriteLightCommandMetric counts one light state command by light and result.
func (c *Client) WriteLightCommandMetric(lightID string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	c.write(MeasurementLightCommand,
		map[string]string{"light_id": lightID, "result": result},
		map[string]any{"count": 1})
}

// write queues a point stamped now. No-op when nil or closed.
func (c *Client) write(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
