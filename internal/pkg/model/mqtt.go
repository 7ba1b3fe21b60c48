package model

type RegisterDevice struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

// RegisterMessage is the Home Assistant discovery config for a single device.
type RegisterMessage struct {
	Tilda                   string         `json:"~"`
	Name                    string         `json:"name"`
	ID                      string         `json:"unique_id"`
	ObjectID                string         `json:"object_id,omitempty"`
	StateTopic              string         `json:"state_topic"`
	CommandTopic            string         `json:"command_topic,omitempty"`
	ValueTemplate           string         `json:"value_template,omitempty"`
	JSONAttributes          string         `json:"json_attributes_topic,omitempty"`
	PayloadOn               string         `json:"payload_on,omitempty"`
	PayloadOff              string         `json:"payload_off,omitempty"`
	StateOn                 string         `json:"state_on,omitempty"`
	StateOff                string         `json:"state_off,omitempty"`
	PayloadOpen             string         `json:"payload_open,omitempty"`
	PayloadClose            string         `json:"payload_close,omitempty"`
	StateOpen               string         `json:"state_open,omitempty"`
	StateClosed             string         `json:"state_closed,omitempty"`
	BrightnessCommandTopic  string         `json:"brightness_command_topic,omitempty"`
	BrightnessStateTopic    string         `json:"brightness_state_topic,omitempty"`
	BrightnessValueTemplate string         `json:"brightness_value_template,omitempty"`
	BrightnessScale         int            `json:"brightness_scale,omitempty"`
	OptimisticControl       bool           `json:"optimistic,omitempty"`
	Device                  RegisterDevice `json:"device"`
}

// StatePayload is published retained on {base}/{mac}/{device_id}/state.
type StatePayload struct {
	DeviceID    int64  `json:"device_id"`
	State       string `json:"state"`
	Brightness  *int   `json:"brightness"`
	Position    *int   `json:"position"`
	LastCommand string `json:"last_command"`
	LastUpdate  string `json:"last_update"`
	Confidence  int    `json:"confidence"`
}

func NewStatePayload(d Device) StatePayload {
	s := "off"
	if d.State.On {
		s = "on"
	}
	p := StatePayload{
		DeviceID:    d.ID,
		State:       s,
		Brightness:  d.State.Brightness,
		Position:    d.State.Position,
		LastCommand: d.State.LastCommand,
		Confidence:  int(d.State.Confidence),
	}
	if !d.State.LastUpdate.IsZero() {
		p.LastUpdate = d.State.LastUpdate.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return p
}
