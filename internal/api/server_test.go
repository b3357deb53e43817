package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/moodring/internal/bridges/hue"
	"github.com/nerrad567/moodring/internal/colorcache"
	"github.com/nerrad567/moodring/internal/history"
	"github.com/nerrad567/moodring/internal/infrastructure/config"
	"github.com/nerrad567/moodring/internal/infrastructure/logging"
	"github.com/nerrad567/moodring/internal/lighting"
	"github.com/nerrad567/moodring/internal/palette"
)

type stubHistory struct {
	entries   []history.Entry
	err       error
	lastLimit int
}

func (s *stubHistory) Record(context.Context, *history.Entry) error { return nil }

func (s *stubHistory) List(_ context.Context, limit int) ([]history.Entry, error) {
	s.lastLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	return s.entries, nil
}

type stubBridge struct {
	status hue.HealthStatus
	reason string
}

func (s stubBridge) Status() (hue.HealthStatus, string) { return s.status, s.reason }

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

func testDeps() Deps {
	cache := colorcache.New()
	cache.Store(colorcache.Key{Artist: "Muse", Album: "Origin of Symmetry"}, palette.Palette{"#1a2b3c", "#ffffff"})
	cache.Reserve(colorcache.Key{Artist: "Muse", Album: "Absolution"})

	return Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:  testLogger(),
		Cache:   cache,
		Lights:  lighting.NewTable(map[int][]string{0: {"1", "2"}, 1: {"3"}}),
		History: &stubHistory{},
		Bridge:  stubBridge{status: hue.HealthHealthy},
		Version: "test",
	}
}

// testServer creates a Server with a running hub.
func testServer(t *testing.T, deps Deps) *Server {
	t.Helper()

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.hub = NewHub(srv.wsCfg, srv.logger)
	go srv.hub.Run(ctx)

	return srv
}

func get(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

// ─── Constructor Tests ─────────────────────────────────────────────

func TestNew_RequiresLoggerAndCache(t *testing.T) {
	deps := testDeps()
	deps.Logger = nil
	if _, err := New(deps); err == nil {
		t.Error("New() without logger: want error")
	}

	deps = testDeps()
	deps.Cache = nil
	if _, err := New(deps); err == nil {
		t.Error("New() without cache: want error")
	}
}

func TestNew_ExternalHub(t *testing.T) {
	deps := testDeps()
	hub := NewHub(deps.WS, deps.Logger)
	deps.ExternalHub = hub

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if srv.Hub() != hub || !srv.externalHub {
		t.Error("external hub not used")
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv := testServer(t, testDeps())
	w := get(t, srv, "/api/v1/health")

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var resp struct {
		Status        string       `json:"status"`
		Version       string       `json:"version"`
		MQTTConnected bool         `json:"mqtt_connected"`
		CacheEntries  int          `json:"cache_entries"`
		Bridge        BridgeHealth `json:"bridge"`
	}
	decode(t, w, &resp)

	if resp.Status != "ok" || resp.Version != "test" {
		t.Errorf("status/version = %q/%q, want ok/test", resp.Status, resp.Version)
	}
	if resp.MQTTConnected {
		t.Error("mqtt_connected = true without a client")
	}
	if resp.CacheEntries != 2 {
		t.Errorf("cache_entries = %d, want 2", resp.CacheEntries)
	}
	if resp.Bridge.Status != hue.HealthHealthy {
		t.Errorf("bridge status = %q, want healthy", resp.Bridge.Status)
	}
}

func TestHealth_DegradedBridge(t *testing.T) {
	deps := testDeps()
	deps.Bridge = stubBridge{status: hue.HealthDegraded, reason: "bridge not set up"}
	srv := testServer(t, deps)

	var resp struct {
		Status string       `json:"status"`
		Bridge BridgeHealth `json:"bridge"`
	}
	decode(t, get(t, srv, "/api/v1/health"), &resp)

	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if resp.Bridge.Status != hue.HealthDegraded || resp.Bridge.Reason != "bridge not set up" {
		t.Errorf("bridge = %+v", resp.Bridge)
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv := testServer(t, testDeps())
	w := get(t, srv, "/api/v1/health")

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv := testServer(t, testDeps())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestRecovery(t *testing.T) {
	srv := testServer(t, testDeps())
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestNotFound(t *testing.T) {
	srv := testServer(t, testDeps())
	if w := get(t, srv, "/api/v1/devices"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ─── Cache and Lights Tests ────────────────────────────────────────

func TestListCache(t *testing.T) {
	srv := testServer(t, testDeps())
	w := get(t, srv, "/api/v1/cache")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Entries []colorcache.Entry `json:"entries"`
		Count   int                `json:"count"`
	}
	decode(t, w, &resp)

	if resp.Count != 2 || len(resp.Entries) != 2 {
		t.Fatalf("count = %d entries = %d, want 2", resp.Count, len(resp.Entries))
	}
	// Snapshot is sorted by artist then album.
	if resp.Entries[0].Key.Album != "Absolution" || !resp.Entries[0].Pending {
		t.Errorf("entries[0] = %+v, want pending Absolution", resp.Entries[0])
	}
	if len(resp.Entries[1].Colors) != 2 {
		t.Errorf("entries[1].colors = %v", resp.Entries[1].Colors)
	}
}

func TestListLights(t *testing.T) {
	srv := testServer(t, testDeps())

	var resp struct {
		Slots  []SlotLights `json:"slots"`
		Lights int          `json:"lights"`
	}
	decode(t, get(t, srv, "/api/v1/lights"), &resp)

	if resp.Lights != 3 {
		t.Errorf("lights = %d, want 3", resp.Lights)
	}
	if len(resp.Slots) != 2 || resp.Slots[0].Slot != 0 || resp.Slots[1].Slot != 1 {
		t.Fatalf("slots = %+v, want 0 then 1", resp.Slots)
	}
	if strings.Join(resp.Slots[0].Lights, ",") != "1,2" {
		t.Errorf("slot 0 lights = %v, want [1 2]", resp.Slots[0].Lights)
	}
}

func TestListLights_NoTable(t *testing.T) {
	deps := testDeps()
	deps.Lights = nil
	srv := testServer(t, deps)

	var resp struct {
		Slots  []SlotLights `json:"slots"`
		Lights int          `json:"lights"`
	}
	decode(t, get(t, srv, "/api/v1/lights"), &resp)

	if resp.Slots == nil || len(resp.Slots) != 0 || resp.Lights != 0 {
		t.Errorf("resp = %+v, want empty slot list", resp)
	}
}

// ─── History Tests ─────────────────────────────────────────────────

func TestListHistory(t *testing.T) {
	deps := testDeps()
	hist := &stubHistory{entries: []history.Entry{
		{ID: 2, EventID: "b", Artist: "Muse", Album: "Absolution", Source: "lookup"},
		{ID: 1, EventID: "a", Artist: "Muse", Album: "Origin of Symmetry", Source: "cache"},
	}}
	deps.History = hist
	srv := testServer(t, deps)

	w := get(t, srv, "/api/v1/history?limit=10")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Entries []history.Entry `json:"entries"`
		Count   int             `json:"count"`
	}
	decode(t, w, &resp)

	if resp.Count != 2 || resp.Entries[0].EventID != "b" {
		t.Errorf("resp = %+v", resp)
	}
	if hist.lastLimit != 10 {
		t.Errorf("limit passed = %d, want 10", hist.lastLimit)
	}
}

func TestListHistory_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		hist   history.Repository
		want   int
	}{
		{"bad limit", "/api/v1/history?limit=abc", &stubHistory{}, http.StatusBadRequest},
		{"negative limit", "/api/v1/history?limit=-1", &stubHistory{}, http.StatusBadRequest},
		{"repository error", "/api/v1/history", &stubHistory{err: errors.New("locked")}, http.StatusInternalServerError},
		{"no repository", "/api/v1/history", nil, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := testDeps()
			deps.History = tt.hist
			srv := testServer(t, deps)

			w := get(t, srv, tt.target)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}

			var apiErr Error
			decode(t, w, &apiErr)
			if apiErr.Status != tt.want || apiErr.Code == "" {
				t.Errorf("error body = %+v", apiErr)
			}
		})
	}
}

// ─── Metrics Tests ─────────────────────────────────────────────────

func TestMetrics(t *testing.T) {
	srv := testServer(t, testDeps())

	var m SystemMetrics
	decode(t, get(t, srv, "/api/v1/metrics"), &m)

	if m.Version != "test" {
		t.Errorf("version = %q", m.Version)
	}
	if m.Runtime.Goroutines == 0 {
		t.Error("goroutines = 0")
	}
	if m.Cache.Entries != 2 || m.Cache.Pending != 1 {
		t.Errorf("cache = %+v, want 2 entries, 1 pending", m.Cache)
	}
	if m.Lights.Slots != 2 || m.Lights.Assigned != 3 {
		t.Errorf("lights = %+v, want 2 slots, 3 assigned", m.Lights)
	}
}

// ─── WebSocket Hub Tests ───────────────────────────────────────────

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{"palette.applied": {}},
	}
	hub.Register(client)

	hub.Broadcast("palette.applied", map[string]any{"colors": []string{"#1a2b3c"}})

	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.Type != WSTypeEvent || wsMsg.EventType != "palette.applied" {
			t.Errorf("message = %+v, want palette.applied event", wsMsg)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for broadcast message")
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{"bridge.health": {}},
	}
	hub.Register(client)

	hub.Broadcast("palette.applied", map[string]any{})

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, testLogger())

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}

func TestHub_RetainedReplayOnSubscribe(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, testLogger())
	hub.Retain("palette.applied")

	hub.Broadcast("palette.applied", map[string]any{"source": "lookup"})
	hub.Broadcast("palette.lookup", map[string]any{"outcome": "resolved"})

	if _, ok := hub.retained("palette.applied"); !ok {
		t.Error("palette.applied not retained")
	}
	if _, ok := hub.retained("palette.lookup"); ok {
		t.Error("palette.lookup retained, want only marked channels")
	}

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	hub.Register(client)
	client.subscribe(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{"palette.applied", "palette.lookup"}},
	})

	var got []WSMessage
	for len(client.send) > 0 {
		var m WSMessage
		if err := json.Unmarshal(<-client.send, &m); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		got = append(got, m)
	}

	if len(got) != 2 {
		t.Fatalf("got %d messages, want response + one replay", len(got))
	}
	if got[0].Type != WSTypeResponse || got[1].EventType != "palette.applied" {
		t.Errorf("messages = %+v, want response then palette.applied replay", got)
	}

	// Subscribing again does not replay.
	client.subscribe(WSMessage{Type: WSTypeSubscribe, ID: "sub-2", Payload: WSSubscribePayload{Channels: []string{"palette.applied"}}})
	if n := len(client.send); n != 1 {
		t.Errorf("queued %d messages on resubscribe, want only the response", n)
	}
}

func TestWSClient_SubscribeWithoutChannels(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	client := &WSClient{hub: hub, send: make(chan []byte, 4), subscriptions: make(map[string]struct{})}

	client.handleMessage([]byte(`{"type":"subscribe","id":"s","payload":{}}`))

	var m WSMessage
	if err := json.Unmarshal(<-client.send, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Type != WSTypeError || m.ID != "s" {
		t.Errorf("message = %+v, want error for s", m)
	}
}

// ─── WebSocket Connection Tests ────────────────────────────────────

func dialWebSocket(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestWebSocket_SubscribeAndReceive(t *testing.T) {
	srv := testServer(t, testDeps())
	ws := dialWebSocket(t, srv)

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{"palette.applied"}},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var response WSMessage
	if err := ws.ReadJSON(&response); err != nil {
		t.Fatalf("read response: %v", err)
	}
	if response.Type != WSTypeResponse || response.ID != "sub-1" {
		t.Errorf("response = %+v, want response to sub-1", response)
	}

	srv.hub.Broadcast("palette.applied", map[string]any{"source": "cache"})

	var event WSMessage
	if err := ws.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Type != WSTypeEvent || event.EventType != "palette.applied" {
		t.Errorf("event = %+v, want palette.applied", event)
	}
}

func TestWebSocket_PingAndUnknownType(t *testing.T) {
	srv := testServer(t, testDeps())
	ws := dialWebSocket(t, srv)
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	var pong WSMessage
	if err := ws.ReadJSON(&pong); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if pong.Type != WSTypePong || pong.ID != "p-1" {
		t.Errorf("pong = %+v", pong)
	}

	if err := ws.WriteJSON(WSMessage{Type: "bogus", ID: "x-1"}); err != nil {
		t.Fatalf("write bogus: %v", err)
	}
	var errMsg WSMessage
	if err := ws.ReadJSON(&errMsg); err != nil {
		t.Fatalf("read error: %v", err)
	}
	if errMsg.Type != WSTypeError {
		t.Errorf("type = %q, want error", errMsg.Type)
	}
}

// ─── Lifecycle Tests ───────────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	deps := testDeps()
	port := 19090
	deps.Config.Port = port

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := srv.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	resp, err := http.Get("http://" + addr + "/api/v1/health")
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health check status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if _, err := http.Get("http://" + addr + "/api/v1/health"); err == nil {
		t.Error("server still responding after Close()")
	}
}

func TestServer_HealthCheckNotStarted(t *testing.T) {
	srv := testServer(t, testDeps())
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() on unstarted server: want error")
	}
}

func TestClose_NotStarted(t *testing.T) {
	srv := testServer(t, testDeps())
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
