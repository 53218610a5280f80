package model

// DiscoveryDevice groups every appliance entity under one device in Home Assistant.
type DiscoveryDevice struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

// DiscoveryMessage is the Home Assistant discovery payload for one appliance,
// exposed as a binary sensor. Topics may use "~" as the base topic.
type DiscoveryMessage struct {
	BaseTopic   string          `json:"~"`
	Name        string          `json:"name"`
	UniqueID    string          `json:"unique_id"`
	StateTopic  string          `json:"state_topic"`
	PayloadOn   string          `json:"payload_on"`
	PayloadOff  string          `json:"payload_off"`
	DeviceClass string          `json:"device_class,omitempty"`
	Icon        string          `json:"icon,omitempty"`
	Device      DiscoveryDevice `json:"device"`
}

var icons = map[Name]string{
	Fan:   "mdi:fan",
	Light: "mdi:lightbulb",
}

// Icon is the Material Design icon Home Assistant shows for the appliance.
func (n Name) Icon() string {
	return icons[n]
}
