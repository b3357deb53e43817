package hue

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeBridge is an in-process v1 REST bridge.
type fakeBridge struct {
	mu          sync.Mutex
	users       map[string]bool
	linkPressed bool
	issue       string
	lights      map[string]string
	states      map[string]map[string]any
	deviceTypes []string
	server      *httptest.Server
}

func newFakeBridge(t *testing.T) *fakeBridge {
	t.Helper()
	f := &fakeBridge{
		users:  make(map[string]bool),
		issue:  "issued-user-0001",
		lights: map[string]string{"1": "LivingColors 1", "2": "LivingColors 2", "10": "Hall"},
		states: make(map[string]map[string]any),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

// host returns the server address without scheme.
func (f *fakeBridge) host() string {
	return strings.TrimPrefix(f.server.URL, "http://")
}

func (f *fakeBridge) allow(user string) {
	f.mu.Lock()
	f.users[user] = true
	f.mu.Unlock()
}

func (f *fakeBridge) setLinkPressed(pressed bool) {
	f.mu.Lock()
	f.linkPressed = pressed
	f.mu.Unlock()
}

// registrations returns the devicetypes sent to POST /api.
func (f *fakeBridge) registrations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deviceTypes...)
}

func (f *fakeBridge) state(id string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[id]
}

func (f *fakeBridge) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	w.Header().Set("Content-Type", "application/json")

	// POST /api
	if r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "api" {
		var body struct {
			DeviceType string `json:"devicetype"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck // test server
		f.deviceTypes = append(f.deviceTypes, body.DeviceType)
		if !f.linkPressed {
			_, _ = io.WriteString(w, `[{"error":{"type":101,"address":"","description":"link button not pressed"}}]`)
			return
		}
		f.users[f.issue] = true
		_, _ = io.WriteString(w, `[{"success":{"username":"`+f.issue+`"}}]`)
		return
	}

	if len(parts) < 3 || parts[0] != "api" {
		http.NotFound(w, r)
		return
	}
	user := parts[1]
	known := f.users[user]

	switch {
	case r.Method == http.MethodGet && parts[2] == "config":
		if !known {
			_, _ = io.WriteString(w, `{"name":"Philips hue","bridgeid":"001788FFFE23BFC2","apiversion":"1.16.0"}`)
			return
		}
		_, _ = io.WriteString(w, `{"name":"Living Room","bridgeid":"001788FFFE23BFC2","ipaddress":"10.0.0.2","apiversion":"1.16.0"}`)

	case r.Method == http.MethodGet && parts[2] == "lights" && len(parts) == 3:
		if !known {
			_, _ = io.WriteString(w, `[{"error":{"type":1,"address":"/lights","description":"unauthorized user"}}]`)
			return
		}
		out := make(map[string]any, len(f.lights))
		for id, name := range f.lights {
			out[id] = map[string]any{"name": name, "type": "Color light", "state": map[string]any{"reachable": true}}
		}
		_ = json.NewEncoder(w).Encode(out) //nolint:errcheck // test server

	case r.Method == http.MethodPut && len(parts) == 5 && parts[2] == "lights" && parts[4] == "state":
		if _, ok := f.lights[parts[3]]; !ok {
			_, _ = io.WriteString(w, `[{"error":{"type":3,"address":"/lights/`+parts[3]+`","description":"resource not available"}}]`)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck // test server
		f.states[parts[3]] = body
		_, _ = io.WriteString(w, `[{"success":{"/lights/`+parts[3]+`/state/on":true}}]`)

	default:
		http.NotFound(w, r)
	}
}
