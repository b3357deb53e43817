// Package notify forwards reactor events to everything that wants them:
// MQTT, WebSocket clients, the palette history table and InfluxDB.
//
// Every sink is optional. A failing sink is logged and never affects the
// others or the reactor.
package notify

import (
	"context"
	"time"

	"github.com/nerrad567/moodring/internal/history"
	"github.com/nerrad567/moodring/internal/infrastructure/mqtt"
	"github.com/nerrad567/moodring/internal/reactor"
)

// WebSocket channels.
const (
	ChannelPaletteApplied = "palette.applied"
	ChannelLookupFinished = "palette.lookup"
)

// Publisher publishes JSON to MQTT. Implemented by *mqtt.Client.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
	IsConnected() bool
}

// Broadcaster pushes events to WebSocket clients. Implemented by *api.Hub.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Metrics writes time-series points. Implemented by *influxdb.Client.
type Metrics interface {
	WritePaletteMetric(source string, slots, commands int)
	WriteLookupMetric(outcome string, prefetch bool, duration time.Duration)
	WriteLightCommandMetric(lightID string, ok bool)
}

// Logger is the logging surface the fanout needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Options lists the sinks. Leave a field nil to skip that sink.
type Options struct {
	Publisher   Publisher
	Broadcaster Broadcaster
	History     history.Repository
	Metrics     Metrics
	Logger      Logger
}

// Fanout implements reactor.Observer.
type Fanout struct {
	publisher   Publisher
	broadcaster Broadcaster
	history     history.Repository
	metrics     Metrics
	logger      Logger
	topics      mqtt.Topics
}

var _ reactor.Observer = (*Fanout)(nil)

// New creates a Fanout.
func New(opts Options) *Fanout {
	f := &Fanout{
		publisher:   opts.Publisher,
		broadcaster: opts.Broadcaster,
		history:     opts.History,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}
	if f.logger == nil {
		f.logger = noopLogger{}
	}
	return f
}

// PaletteApplied implements reactor.Observer.
func (f *Fanout) PaletteApplied(ctx context.Context, ev reactor.PaletteEvent) {
	f.publish(f.topics.Palette(), ev, true)

	if f.broadcaster != nil {
		f.broadcaster.Broadcast(ChannelPaletteApplied, ev)
	}

	if f.history != nil {
		err := f.history.Record(ctx, &history.Entry{
			EventID:   ev.ID,
			Artist:    ev.Key.Artist,
			Album:     ev.Key.Album,
			Colors:    ev.Colors,
			Source:    ev.Source,
			Commands:  ev.Commands,
			CreatedAt: ev.Timestamp,
		})
		if err != nil {
			f.logger.Warn("recording palette history failed", "event_id", ev.ID, "error", err)
		}
	}

	if f.metrics != nil {
		f.metrics.WritePaletteMetric(ev.Source, len(ev.Colors), ev.Commands)
	}
}

// LookupFinished implements reactor.Observer.
func (f *Fanout) LookupFinished(_ context.Context, ev reactor.LookupEvent) {
	f.publish(f.topics.Lookup(), ev, false)

	if f.broadcaster != nil {
		f.broadcaster.Broadcast(ChannelLookupFinished, ev)
	}
	if f.metrics != nil {
		f.metrics.WriteLookupMetric(ev.Outcome, ev.Prefetch, ev.Duration)
	}
}

// LightCommand records one light command result. Pass it to
// lighting.Driver.SetOnCommand.
func (f *Fanout) LightCommand(lightID string, err error) {
	if f.metrics != nil {
		f.metrics.WriteLightCommandMetric(lightID, err == nil)
	}
}

func (f *Fanout) publish(topic string, v any, retained bool) {
	if f.publisher == nil || !f.publisher.IsConnected() {
		return
	}
	if err := f.publisher.PublishJSON(topic, v, retained); err != nil {
		f.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
		return
	}
	f.logger.Debug("event published", "topic", topic)
}
