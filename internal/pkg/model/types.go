package model

type DeviceType string

func (dt DeviceType) String() string {
	return string(dt)
}

const (
	DeviceTypeSwitch   DeviceType = "switch"
	DeviceTypeDimmer   DeviceType = "dimmer"
	DeviceTypeLight    DeviceType = "light"
	DeviceTypeCover    DeviceType = "cover"
	DeviceTypeSensor   DeviceType = "sensor"
	DeviceTypeDoorbell DeviceType = "doorbell"
	DeviceTypeScene    DeviceType = "scene"
)

var DeviceTypes = []DeviceType{
	DeviceTypeSwitch,
	DeviceTypeDimmer,
	DeviceTypeLight,
	DeviceTypeCover,
	DeviceTypeSensor,
	DeviceTypeDoorbell,
	DeviceTypeScene,
}

// ParseDeviceType returns the matching type and false when s is not a known type.
func ParseDeviceType(s string) (DeviceType, bool) {
	for _, dt := range DeviceTypes {
		if dt.String() == s {
			return dt, true
		}
	}
	return "", false
}

// Command is the single-byte command code understood by the gateway.
type Command byte

const (
	CommandOff   Command = 0
	CommandOn    Command = 1
	CommandDim   Command = 2
	CommandStop  Command = 3
	CommandOpen  Command = 4
	CommandClose Command = 5
)

func (c Command) String() string {
	switch c {
	case CommandOff:
		return "off"
	case CommandOn:
		return "on"
	case CommandDim:
		return "dim"
	case CommandStop:
		return "stop"
	case CommandOpen:
		return "open"
	case CommandClose:
		return "close"
	}
	return "unknown"
}

type HubState string

func (hs HubState) String() string {
	return string(hs)
}

const (
	HubDisconnected HubState = "disconnected"
	HubConnecting   HubState = "connecting"
	HubConnected    HubState = "connected"
	HubError        HubState = "error"
)

type EventType string

func (et EventType) String() string {
	return string(et)
}

const (
	EventDeviceDiscovered EventType = "device_discovered"
	EventDeviceUpdated    EventType = "device_updated"
	EventHubConnected     EventType = "hub_connected"
	EventCommandSent      EventType = "command_sent"
	EventCommandFailed    EventType = "command_failed"
)

// Confidence is a trust score between 0 and 100 for a cached device state.
type Confidence int

const (
	ConfidenceHigh      Confidence = 100
	ConfidenceMedium    Confidence = 80
	ConfidenceLow       Confidence = 60
	ConfidenceUncertain Confidence = 40
)

func (c Confidence) String() string {
	switch {
	case c >= ConfidenceHigh:
		return "high"
	case c >= ConfidenceMedium:
		return "medium"
	case c >= ConfidenceLow:
		return "low"
	}
	return "uncertain"
}
