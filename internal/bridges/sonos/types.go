package sonos

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ZoneStatePlaying is the only zone state that triggers a palette change.
const ZoneStatePlaying = "PLAYING"

// Member is one player in a zone.
type Member struct {
	UUID     string `json:"uuid"`
	RoomName string `json:"roomName"`
}

// Zone is a group of players sharing playback.
type Zone struct {
	UUID        string   `json:"uuid"`
	Coordinator Member   `json:"coordinator"`
	Members     []Member `json:"members"`
}

// Player is the tracked device handle.
type Player struct {
	RoomName        string `json:"room_name"`
	UUID            string `json:"uuid"`
	CoordinatorUUID string `json:"coordinator_uuid"`
}

// Track is the metadata the lookup needs.
type Track struct {
	Artist string `json:"artist"`
	Album  string `json:"album"`
	Title  string `json:"title"`
}

// Empty reports whether the track carries neither artist nor album.
func (t Track) Empty() bool {
	return t.Artist == "" && t.Album == ""
}

// State is the playback state inside a transport event.
type State struct {
	ZoneState     string `json:"zoneState"`
	PlaybackState string `json:"playbackState"`
	CurrentTrack  Track  `json:"currentTrack"`
	NextTrack     *Track `json:"nextTrack,omitempty"`
}

// HasNextTrack reports whether a non-empty next track is queued.
func (s State) HasNextTrack() bool {
	return s.NextTrack != nil && !s.NextTrack.Empty()
}

// TransportEvent is one transport-state change.
type TransportEvent struct {
	UUID     string `json:"uuid"`
	RoomName string `json:"roomName"`
	State    State  `json:"state"`
}

// ParseTopology decodes a topology message.
func ParseTopology(payload []byte) ([]Zone, error) {
	var zones []Zone
	if err := json.Unmarshal(payload, &zones); err != nil {
		return nil, fmt.Errorf("%w: topology: %w", ErrInvalidMessage, err)
	}
	return zones, nil
}

// ParseTransportEvent decodes a transport-state message.
func ParseTransportEvent(payload []byte) (TransportEvent, error) {
	var ev TransportEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return TransportEvent{}, fmt.Errorf("%w: transport state: %w", ErrInvalidMessage, err)
	}
	if ev.UUID == "" {
		return TransportEvent{}, fmt.Errorf("%w: transport state without uuid", ErrInvalidMessage)
	}
	return ev, nil
}

// PlayerByName finds the member whose room name matches name
// (case-insensitive) and returns it with its zone coordinator.
func PlayerByName(zones []Zone, name string) (Player, error) {
	for _, z := range zones {
		for _, m := range z.Members {
			if strings.EqualFold(m.RoomName, name) {
				return Player{
					RoomName:        m.RoomName,
					UUID:            m.UUID,
					CoordinatorUUID: z.Coordinator.UUID,
				}, nil
			}
		}
	}
	return Player{}, fmt.Errorf("%w: %q", ErrPlayerNotFound, name)
}

// coordinatorOf returns the coordinator UUID of the zone containing uuid.
func coordinatorOf(zones []Zone, uuid string) (string, bool) {
	for _, z := range zones {
		for _, m := range z.Members {
			if m.UUID == uuid {
				return z.Coordinator.UUID, true
			}
		}
	}
	return "", false
}
