package sonos

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/moodring/internal/infrastructure/mqtt"
)

const (
	testTopologyTopic  = "sonos/topology"
	testTransportTopic = "sonos/transport-state"
)

// mockSubscriber captures handlers so tests can deliver messages directly.
type mockSubscriber struct {
	mu           sync.Mutex
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
	failOn       string
}

func newMockSubscriber() *mockSubscriber {
	return &mockSubscriber{handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *mockSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if topic == m.failOn {
		return mqtt.ErrSubscribeFailed
	}
	m.handlers[topic] = handler
	return nil
}

func (m *mockSubscriber) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribed = append(m.unsubscribed, topic)
	return nil
}

func (m *mockSubscriber) deliver(t *testing.T, topic, payload string) {
	t.Helper()
	m.mu.Lock()
	h := m.handlers[topic]
	m.mu.Unlock()
	if h == nil {
		t.Fatalf("no handler for %s", topic)
	}
	if err := h(topic, []byte(payload)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
}

// recordingHandler collects transport events in order.
type recordingHandler struct {
	mu     sync.Mutex
	events []TransportEvent
	ch     chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{ch: make(chan struct{}, 16)}
}

func (r *recordingHandler) HandleTransportState(_ context.Context, ev TransportEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *recordingHandler) waitFor(t *testing.T, n int) []TransportEvent {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i+1)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TransportEvent(nil), r.events...)
}

const topologyFamilyRoom = `[
  {"uuid":"RINCON_A","coordinator":{"uuid":"RINCON_A","roomName":"Kitchen"},
   "members":[{"uuid":"RINCON_A","roomName":"Kitchen"},{"uuid":"RINCON_B","roomName":"Family Room"}]}
]`

const topologyRegrouped = `[
  {"uuid":"RINCON_A","coordinator":{"uuid":"RINCON_A","roomName":"Kitchen"},
   "members":[{"uuid":"RINCON_A","roomName":"Kitchen"}]},
  {"uuid":"RINCON_B","coordinator":{"uuid":"RINCON_B","roomName":"Family Room"},
   "members":[{"uuid":"RINCON_B","roomName":"Family Room"}]}
]`

func newTestListener(sub Subscriber, h TransportHandler) *Listener {
	return NewListener(ListenerConfig{
		PlayerName:     "family room",
		TopologyTopic:  testTopologyTopic,
		TransportTopic: testTransportTopic,
	}, sub, h, nil)
}

// waitForPlayer polls until the listener has resolved a player.
func waitForPlayer(t *testing.T, l *Listener, coordinator string) Player {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p, ok := l.Player(); ok && p.CoordinatorUUID == coordinator {
			return p
		}
		time.Sleep(5 * time.Millisecond)
	}
	p, ok := l.Player()
	t.Fatalf("Player() = %+v, %v; want coordinator %s", p, ok, coordinator)
	return Player{}
}

// =============================================================================
// Parsing
// =============================================================================

func TestPlayerByName_CaseInsensitive(t *testing.T) {
	zones, err := ParseTopology([]byte(topologyFamilyRoom))
	if err != nil {
		t.Fatalf("ParseTopology() error = %v", err)
	}

	p, err := PlayerByName(zones, "FAMILY ROOM")
	if err != nil {
		t.Fatalf("PlayerByName() error = %v", err)
	}
	if p.UUID != "RINCON_B" || p.CoordinatorUUID != "RINCON_A" {
		t.Errorf("PlayerByName() = %+v, want RINCON_B coordinated by RINCON_A", p)
	}

	if _, err := PlayerByName(zones, "Garage"); !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("PlayerByName(Garage) error = %v, want ErrPlayerNotFound", err)
	}
}

func TestParseTransportEvent(t *testing.T) {
	ev, err := ParseTransportEvent([]byte(`{"uuid":"RINCON_A","roomName":"Kitchen","state":{
		"zoneState":"PLAYING","playbackState":"PLAYING",
		"currentTrack":{"artist":"Muse","album":"Drones","title":"Dead Inside"},
		"nextTrack":{"artist":"","album":"","title":""}}}`))
	if err != nil {
		t.Fatalf("ParseTransportEvent() error = %v", err)
	}
	if ev.State.ZoneState != ZoneStatePlaying {
		t.Errorf("ZoneState = %q", ev.State.ZoneState)
	}
	if ev.State.CurrentTrack.Album != "Drones" {
		t.Errorf("CurrentTrack.Album = %q", ev.State.CurrentTrack.Album)
	}
	if ev.State.HasNextTrack() {
		t.Error("HasNextTrack() = true for blank next track")
	}
}

func TestParseTransportEvent_Invalid(t *testing.T) {
	for _, payload := range []string{`not json`, `{"roomName":"Kitchen"}`} {
		if _, err := ParseTransportEvent([]byte(payload)); !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("ParseTransportEvent(%q) error = %v, want ErrInvalidMessage", payload, err)
		}
	}
}

// =============================================================================
// Listener
// =============================================================================

func TestListener_ResolvesPlayerOnFirstTopology(t *testing.T) {
	sub := newMockSubscriber()
	l := newTestListener(sub, newRecordingHandler())
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer l.Stop()

	if _, ok := l.Player(); ok {
		t.Fatal("Player() resolved before any topology")
	}

	sub.deliver(t, testTopologyTopic, topologyFamilyRoom)
	p := waitForPlayer(t, l, "RINCON_A")
	if p.RoomName != "Family Room" {
		t.Errorf("RoomName = %q, want Family Room", p.RoomName)
	}
}

func TestListener_FollowsCoordinatorButKeepsPlayer(t *testing.T) {
	sub := newMockSubscriber()
	l := newTestListener(sub, newRecordingHandler())
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer l.Stop()

	sub.deliver(t, testTopologyTopic, topologyFamilyRoom)
	waitForPlayer(t, l, "RINCON_A")

	sub.deliver(t, testTopologyTopic, topologyRegrouped)
	p := waitForPlayer(t, l, "RINCON_B")
	if p.UUID != "RINCON_B" {
		t.Errorf("UUID = %q, want RINCON_B", p.UUID)
	}
}

func TestListener_IgnoresTopologyWithoutPlayer(t *testing.T) {
	sub := newMockSubscriber()
	h := newRecordingHandler()
	l := newTestListener(sub, h)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer l.Stop()

	sub.deliver(t, testTopologyTopic, `[{"uuid":"X","coordinator":{"uuid":"X"},"members":[{"uuid":"X","roomName":"Office"}]}]`)
	sub.deliver(t, testTopologyTopic, `garbage`)

	// A transport message flushes the queue behind the topology messages.
	sub.deliver(t, testTransportTopic, `{"uuid":"X","state":{"zoneState":"STOPPED"}}`)
	h.waitFor(t, 1)

	if _, ok := l.Player(); ok {
		t.Error("Player() resolved from topology without the configured room")
	}
}

func TestListener_ForwardsTransportEventsInOrder(t *testing.T) {
	sub := newMockSubscriber()
	h := newRecordingHandler()
	l := newTestListener(sub, h)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer l.Stop()

	sub.deliver(t, testTransportTopic, `{"uuid":"RINCON_A","state":{"zoneState":"PLAYING","currentTrack":{"artist":"A","album":"1"}}}`)
	sub.deliver(t, testTransportTopic, `not json`)
	sub.deliver(t, testTransportTopic, `{"uuid":"RINCON_A","state":{"zoneState":"PAUSED_PLAYBACK","currentTrack":{"artist":"A","album":"2"}}}`)

	events := h.waitFor(t, 2)
	if events[0].State.CurrentTrack.Album != "1" || events[1].State.CurrentTrack.Album != "2" {
		t.Errorf("events out of order: %+v", events)
	}
}

func TestListener_StartTwice(t *testing.T) {
	l := newTestListener(newMockSubscriber(), nil)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer l.Stop()

	if err := l.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestListener_SubscribeFailure(t *testing.T) {
	sub := newMockSubscriber()
	sub.failOn = testTransportTopic
	l := newTestListener(sub, nil)
	defer l.Stop()

	if err := l.Start(context.Background()); !errors.Is(err, mqtt.ErrSubscribeFailed) {
		t.Errorf("Start() error = %v, want ErrSubscribeFailed", err)
	}
}

func TestListener_StopUnsubscribes(t *testing.T) {
	sub := newMockSubscriber()
	l := newTestListener(sub, nil)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	l.Stop()
	l.Stop()

	if len(sub.unsubscribed) != 2 {
		t.Errorf("unsubscribed = %v, want both topics", sub.unsubscribed)
	}

	// Messages after Stop are accepted and dropped without blocking.
	sub.deliver(t, testTransportTopic, `{"uuid":"A"}`)
}

func transportPlaying(album string) string {
	return `{"uuid":"RINCON_B","state":{"zoneState":"PLAYING","currentTrack":{"artist":"A","album":"` + album + `"}}}`
}

// blockingHandler parks the worker until release is closed.
type blockingHandler struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingHandler) HandleTransportState(_ context.Context, _ TransportEvent) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
}

func TestListener_FullQueueDoesNotBlockDelivery(t *testing.T) {
	sub := newMockSubscriber()
	h := &blockingHandler{entered: make(chan struct{}), release: make(chan struct{})}
	l := NewListener(ListenerConfig{
		PlayerName:     "family room",
		TopologyTopic:  testTopologyTopic,
		TransportTopic: testTransportTopic,
		QueueSize:      2,
	}, sub, h, nil)

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer l.Stop()
	defer close(h.release)

	// The first event occupies the worker.
	sub.deliver(t, testTransportTopic, transportPlaying("0"))
	select {
	case <-h.entered:
	case <-time.After(time.Second):
		t.Fatal("worker never picked up the first event")
	}

	// Twice the queue size while the worker is busy; each delivery must
	// return straight away.
	sub.mu.Lock()
	handler := sub.handlers[testTransportTopic]
	sub.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, album := range []string{"1", "2", "3", "4"} {
			_ = handler(testTransportTopic, []byte(transportPlaying(album))) //nolint:errcheck // always nil
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("delivery blocked on a full queue")
	}

	if got := len(l.queue); got != 2 {
		t.Fatalf("queue length = %d, want 2", got)
	}
	var albums []string
	for len(l.queue) > 0 {
		ev, err := ParseTransportEvent((<-l.queue).payload)
		if err != nil {
			t.Fatalf("ParseTransportEvent() error = %v", err)
		}
		albums = append(albums, ev.State.CurrentTrack.Album)
	}
	if len(albums) != 2 || albums[0] != "3" || albums[1] != "4" {
		t.Errorf("queued albums = %v, want the newest [3 4]", albums)
	}
}

func TestListener_EnqueueAfterStopReturns(t *testing.T) {
	l := NewListener(ListenerConfig{QueueSize: 1}, newMockSubscriber(), nil, nil)
	l.Stop()

	done := make(chan struct{})
	go func() {
		_ = l.enqueue(testTransportTopic, []byte(`{}`)) //nolint:errcheck // always nil
		_ = l.enqueue(testTransportTopic, []byte(`{}`)) //nolint:errcheck // always nil
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked after Stop")
	}
}
