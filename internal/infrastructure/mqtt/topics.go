package mqtt

// TopicPrefix is the root of every topic moodring publishes. Player bridge
// topics come from config since they belong to the bridge, not to us.
const TopicPrefix = "moodring"

// Topics builds moodring's outbound topic names.
//
//	mqtt.Topics{}.Palette()            // moodring/palette
//	mqtt.Topics{}.BridgeHealth("hue")  // moodring/health/hue
//	mqtt.Topics{}.BridgeHealth("+")    // wildcard for the API relay
type Topics struct{}

// Palette is retained so a late subscriber sees the colors currently on the lights.
func (Topics) Palette() string { return TopicPrefix + "/palette" }

// Lookup carries one event per artwork/color lookup, success or failure.
func (Topics) Lookup() string { return TopicPrefix + "/lookup" }

// BridgeHealth is the retained health topic of a lighting bridge.
func (Topics) BridgeHealth(bridge string) string {
	return TopicPrefix + "/health/" + bridge
}

// SystemStatus holds the presence document and the last will.
func (Topics) SystemStatus() string { return TopicPrefix + "/system/status" }
