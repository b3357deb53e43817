package sonos

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/moodring/internal/infrastructure/mqtt"
)

// defaultQueueSize bounds messages waiting for the worker.
const defaultQueueSize = 64

// Subscriber is the MQTT surface the listener needs.
// Implemented by *mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// TransportHandler reacts to transport-state changes.
type TransportHandler interface {
	HandleTransportState(ctx context.Context, event TransportEvent)
}

// TransportHandlerFunc adapts a function to TransportHandler.
type TransportHandlerFunc func(ctx context.Context, event TransportEvent)

// HandleTransportState calls f.
func (f TransportHandlerFunc) HandleTransportState(ctx context.Context, event TransportEvent) {
	f(ctx, event)
}

// Logger is the logging surface the listener needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	// PlayerName is the room name to follow.
	PlayerName string

	// TopologyTopic and TransportTopic are the MQTT topics to consume.
	TopologyTopic  string
	TransportTopic string

	// QueueSize bounds buffered messages. Default: 64.
	QueueSize int
}

type message struct {
	topic   string
	payload []byte
}

// Listener consumes player events and hands transport changes to a
// TransportHandler one at a time.
//
// Thread Safety: Player may be called from any goroutine.
type Listener struct {
	cfg        ListenerConfig
	subscriber Subscriber
	handler    TransportHandler
	logger     Logger

	queue chan message

	player   *Player
	playerMu sync.RWMutex

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
}

// NewListener creates a listener. Call Start to subscribe.
func NewListener(cfg ListenerConfig, subscriber Subscriber, handler TransportHandler, logger Logger) *Listener {
	if logger == nil {
		logger = noopLogger{}
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Listener{
		cfg:        cfg,
		subscriber: subscriber,
		handler:    handler,
		logger:     logger,
		queue:      make(chan message, size),
		done:       make(chan struct{}),
	}
}

// Player returns the tracked player, if resolved.
func (l *Listener) Player() (Player, bool) {
	l.playerMu.RLock()
	defer l.playerMu.RUnlock()
	if l.player == nil {
		return Player{}, false
	}
	return *l.player, true
}

// Start subscribes to both topics and starts the worker. The worker stops
// when ctx is cancelled or Stop is called.
func (l *Listener) Start(ctx context.Context) error {
	err := ErrAlreadyStarted
	l.startOnce.Do(func() {
		err = l.start(ctx)
	})
	return err
}

func (l *Listener) start(ctx context.Context) error {
	l.wg.Add(1)
	go l.run(ctx)
	l.started.Store(true)

	if err := l.subscriber.Subscribe(l.cfg.TopologyTopic, 1, l.enqueue); err != nil {
		return err
	}
	if err := l.subscriber.Subscribe(l.cfg.TransportTopic, 1, l.enqueue); err != nil {
		return err
	}

	l.logger.Info("listening for player events",
		"player", l.cfg.PlayerName,
		"topology_topic", l.cfg.TopologyTopic,
		"transport_topic", l.cfg.TransportTopic,
	)
	return nil
}

// Stop unsubscribes and waits for the worker to finish the message in hand.
// Safe to call multiple times.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		if l.started.Load() {
			for _, topic := range []string{l.cfg.TopologyTopic, l.cfg.TransportTopic} {
				if err := l.subscriber.Unsubscribe(topic); err != nil {
					l.logger.Debug("unsubscribe failed", "topic", topic, "error", err)
				}
			}
		}
		close(l.done)
		l.wg.Wait()
	})
}

// enqueue is the MQTT handler. paho calls it on its inbound goroutine, which
// also delivers the PUBACKs the worker's own publishes wait for, so it must
// never block. When the queue is full the oldest message is dropped: the
// newest transport state is the one that matters.
func (l *Listener) enqueue(topic string, payload []byte) error {
	msg := message{topic: topic, payload: append([]byte(nil), payload...)}

	for {
		select {
		case <-l.done:
			return nil
		case l.queue <- msg:
			return nil
		default:
		}

		// Full: make room and try again.
		select {
		case old := <-l.queue:
			l.logger.Warn("player event queue full, dropping oldest message",
				"dropped_topic", old.topic,
				"queue_size", cap(l.queue),
			)
		default:
			// The worker emptied a slot in the meantime.
		}
	}
}

func (l *Listener) run(ctx context.Context) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case msg := <-l.queue:
			l.dispatch(ctx, msg)
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, msg message) {
	switch msg.topic {
	case l.cfg.TopologyTopic:
		l.handleTopology(msg.payload)
	case l.cfg.TransportTopic:
		l.handleTransport(ctx, msg.payload)
	default:
		l.logger.Debug("ignoring message on unexpected topic", "topic", msg.topic)
	}
}

// handleTopology resolves the player on first sight and afterwards only
// follows its coordinator.
func (l *Listener) handleTopology(payload []byte) {
	zones, err := ParseTopology(payload)
	if err != nil {
		l.logger.Warn("discarding topology message", "error", err)
		return
	}

	l.playerMu.Lock()
	defer l.playerMu.Unlock()

	if l.player == nil {
		p, err := PlayerByName(zones, l.cfg.PlayerName)
		if err != nil {
			l.logger.Debug("player not in topology yet", "player", l.cfg.PlayerName)
			return
		}
		l.player = &p
		l.logger.Info("player resolved",
			"room", p.RoomName,
			"uuid", p.UUID,
			"coordinator", p.CoordinatorUUID,
		)
		return
	}

	if coord, ok := coordinatorOf(zones, l.player.UUID); ok && coord != l.player.CoordinatorUUID {
		l.logger.Info("player coordinator changed",
			"room", l.player.RoomName,
			"from", l.player.CoordinatorUUID,
			"to", coord,
		)
		l.player.CoordinatorUUID = coord
	}
}

func (l *Listener) handleTransport(ctx context.Context, payload []byte) {
	ev, err := ParseTransportEvent(payload)
	if err != nil {
		l.logger.Warn("discarding transport message", "error", err)
		return
	}
	if l.handler != nil {
		l.handler.HandleTransportState(ctx, ev)
	}
}
