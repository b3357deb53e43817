package reactor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/moodring/internal/bridges/sonos"
	"github.com/nerrad567/moodring/internal/colorcache"
	"github.com/nerrad567/moodring/internal/palette"
	"github.com/nerrad567/moodring/internal/resolver"
)

// Palette sources reported in PaletteEvent.Source.
const (
	SourceCache    = "cache"
	SourceLookup   = "lookup"
	SourceSentinel = "sentinel"
)

// Lookup outcomes reported in LookupEvent.Outcome.
const (
	OutcomeResolved = "resolved"
	OutcomeSentinel = "sentinel"
	OutcomeDropped  = "dropped"
)

// PlayerSource provides the tracked player handle.
// Implemented by *sonos.Listener.
type PlayerSource interface {
	Player() (sonos.Player, bool)
}

// Resolver finds the palette for an album. Implemented by *resolver.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, artist, album string) (palette.Palette, error)
}

// Dispatcher sends a palette to the lights. Implemented by *lighting.Driver.
type Dispatcher interface {
	Apply(ctx context.Context, p palette.Palette) int
}

// Observer is told about every palette dispatch and finished lookup.
type Observer interface {
	PaletteApplied(ctx context.Context, ev PaletteEvent)
	LookupFinished(ctx context.Context, ev LookupEvent)
}

// PaletteEvent describes one palette sent to the lights.
type PaletteEvent struct {
	ID        string          `json:"id"`
	Key       colorcache.Key  `json:"key"`
	Title     string          `json:"title,omitempty"`
	Source    string          `json:"source"`
	Colors    palette.Palette `json:"colors"`
	Commands  int             `json:"commands"`
	Timestamp time.Time       `json:"timestamp"`
}

// LookupEvent describes how a color lookup ended.
type LookupEvent struct {
	ID        string          `json:"id"`
	Key       colorcache.Key  `json:"key"`
	Prefetch  bool            `json:"prefetch"`
	Outcome   string          `json:"outcome"`
	Colors    palette.Palette `json:"colors,omitempty"`
	Error     string          `json:"error,omitempty"`
	Released  bool            `json:"released,omitempty"`
	Duration  time.Duration   `json:"duration_ns"`
	Timestamp time.Time       `json:"timestamp"`
}

// Logger is the logging surface the reactor needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

type noopObserver struct{}

func (noopObserver) PaletteApplied(context.Context, PaletteEvent) {}
func (noopObserver) LookupFinished(context.Context, LookupEvent)  {}

// Options configures a Reactor.
type Options struct {
	Player   PlayerSource
	Cache    *colorcache.Cache
	Resolver Resolver
	Lights   Dispatcher

	// Observer is optional.
	Observer Observer

	// Sentinel is stored and shown when no colors can be found.
	Sentinel palette.Palette

	// NextTrackCaching enables next-track prefetch.
	NextTrackCaching bool

	// RetryFailedLookups removes the placeholder after a failed cover-art
	// query instead of leaving it pending forever.
	RetryFailedLookups bool

	Logger Logger
}

// Reactor reacts to transport-state events.
//
// Thread Safety: HandleTransportState must not be called concurrently with
// itself; the Sonos listener guarantees this. Lookups it starts run
// concurrently with later calls.
type Reactor struct {
	player   PlayerSource
	cache    *colorcache.Cache
	resolver Resolver
	lights   Dispatcher
	observer Observer
	logger   Logger

	sentinel         palette.Palette
	nextTrackCaching bool
	retryFailed      bool

	wg sync.WaitGroup
}

// New creates a Reactor.
func New(opts Options) *Reactor {
	r := &Reactor{
		player:           opts.Player,
		cache:            opts.Cache,
		resolver:         opts.Resolver,
		lights:           opts.Lights,
		observer:         opts.Observer,
		logger:           opts.Logger,
		sentinel:         opts.Sentinel.Clone(),
		nextTrackCaching: opts.NextTrackCaching,
		retryFailed:      opts.RetryFailedLookups,
	}
	if r.observer == nil {
		r.observer = noopObserver{}
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	if r.cache == nil {
		r.cache = colorcache.New()
	}
	return r
}

// Cache returns the reactor's color cache.
func (r *Reactor) Cache() *colorcache.Cache {
	return r.cache
}

// HandleTransportState reacts to one transport-state event. It returns as
// soon as any lookups are started; use Wait to block on them.
func (r *Reactor) HandleTransportState(ctx context.Context, ev sonos.TransportEvent) {
	if r.player == nil {
		return
	}
	// Only the tracked group's coordinator speaks for the room; member
	// players echo the same track and would double every lookup.
	player, ok := r.player.Player()
	if !ok || ev.UUID != player.CoordinatorUUID || ev.State.ZoneState != sonos.ZoneStatePlaying {
		return
	}

	current := ev.State.CurrentTrack
	r.handleCurrent(ctx, current)

	if !ev.State.HasNextTrack() || !r.nextTrackCaching {
		return
	}
	r.prefetch(ctx, *ev.State.NextTrack)
}

// handleCurrent runs first so a next track equal to the current one finds
// the key already present.
func (r *Reactor) handleCurrent(ctx context.Context, track sonos.Track) {
	key := keyOf(track)

	colors, state := r.cache.Lookup(key)
	switch state {
	case colorcache.StateResolved:
		r.logger.Debug("cached palette", "artist", key.Artist, "album", key.Album)
		r.dispatch(ctx, key, track.Title, SourceCache, colors)

	case colorcache.StateAbsent:
		// The placeholder makes repeat events for this album wait on the
		// one lookup instead of starting their own.
		if !r.cache.Reserve(key) {
			return
		}
		r.wg.Add(1)
		go r.lookup(ctx, key, track.Title, false)

	case colorcache.StatePending:
		// Lights stay as they are until the in-flight lookup lands.
		r.logger.Debug("lookup already in flight", "artist", key.Artist, "album", key.Album)
	}
}

// prefetch reserves the next track's key and resolves it in the
// background. Already known or pending keys are skipped.
func (r *Reactor) prefetch(ctx context.Context, track sonos.Track) {
	key := keyOf(track)
	if !r.cache.Reserve(key) {
		return
	}
	r.wg.Add(1)
	go r.lookup(ctx, key, track.Title, true)
}

// lookup resolves key and stores the outcome. Non-prefetch lookups also
// dispatch the result.
func (r *Reactor) lookup(ctx context.Context, key colorcache.Key, title string, prefetch bool) {
	defer r.wg.Done()

	started := time.Now()
	colors, err := r.resolver.Resolve(ctx, key.Artist, key.Album)

	ev := LookupEvent{
		ID:       uuid.NewString(),
		Key:      key,
		Prefetch: prefetch,
		Duration: time.Since(started),
	}

	switch {
	// Transport failure or shutdown: nothing is learned about the album, so
	// no sentinel is stored.
	case errors.Is(err, resolver.ErrArtworkLookup) || ctx.Err() != nil:
		ev.Outcome = OutcomeDropped
		ev.Error = errString(err, ctx.Err())
		// Without retry the placeholder stays and the album is never looked
		// up again this run. Cancellation always releases.
		if r.retryFailed || ctx.Err() != nil {
			r.cache.Release(key)
			ev.Released = true
		}
		r.logger.Warn("cover art lookup failed",
			"artist", key.Artist,
			"album", key.Album,
			"prefetch", prefetch,
			"released", ev.Released,
			"error", ev.Error,
		)
		ev.Timestamp = time.Now().UTC()
		r.observer.LookupFinished(ctx, ev)
		return

	// No artwork or no usable colors: a definitive answer, cache the sentinel.
	case err != nil || len(colors) == 0:
		r.logger.Info("no artwork colors, using sentinel",
			"artist", key.Artist,
			"album", key.Album,
			"prefetch", prefetch,
			"error", err,
		)
		colors = r.sentinel.Clone()
		ev.Outcome = OutcomeSentinel
		if err != nil {
			ev.Error = err.Error()
		}

	default:
		r.logger.Info("fetched album colors",
			"artist", key.Artist,
			"album", key.Album,
			"prefetch", prefetch,
			"colors", len(colors),
		)
		ev.Outcome = OutcomeResolved
	}

	// Store before dispatch so an event arriving mid-dispatch sees a hit.
	r.cache.Store(key, colors)
	ev.Colors = colors
	ev.Timestamp = time.Now().UTC()
	r.observer.LookupFinished(ctx, ev)

	// Prefetched colors wait in the cache for the track to start.
	if prefetch {
		return
	}
	source := SourceLookup
	if ev.Outcome == OutcomeSentinel {
		source = SourceSentinel
	}
	r.dispatch(ctx, key, title, source, colors)
}

// dispatch applies colors and reports the result. A nil dispatcher (no
// bridge configured) still reports, with zero commands.
func (r *Reactor) dispatch(ctx context.Context, key colorcache.Key, title, source string, colors palette.Palette) {
	commands := 0
	if r.lights != nil {
		commands = r.lights.Apply(ctx, colors)
	}
	r.observer.PaletteApplied(ctx, PaletteEvent{
		ID:        uuid.NewString(),
		Key:       key,
		Title:     title,
		Source:    source,
		Colors:    colors,
		Commands:  commands,
		Timestamp: time.Now().UTC(),
	})
}

// Wait blocks until every lookup started so far has finished.
func (r *Reactor) Wait() {
	r.wg.Wait()
}

func keyOf(t sonos.Track) colorcache.Key {
	return colorcache.Key{Artist: t.Artist, Album: t.Album}
}

// errString prefers the resolver's error over the bare context error.
func errString(err, ctxErr error) string {
	if err != nil {
		return err.Error()
	}
	if ctxErr != nil {
		return ctxErr.Error()
	}
	return ""
}
