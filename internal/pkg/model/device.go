package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FlexInt accepts JSON numbers, numeric strings, empty strings and null.
// The cloud sends ids and version counters in either form.
type FlexInt int64

func (fi *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*fi = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*fi = 0
			return nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*fi = FlexInt(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	v, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return err
		}
		v = int64(f)
	}
	*fi = FlexInt(v)
	return nil
}

// ModuleRecord is one entry of the cloud sync response.
type ModuleRecord struct {
	ID            FlexInt `json:"id"`
	Data          string  `json:"data"`
	Status        string  `json:"status"`
	Device        FlexInt `json:"device"`
	VersionData   FlexInt `json:"version_data"`
	VersionStatus FlexInt `json:"version_status"`
}

// Device is the long-lived descriptor kept in the hub registry.
// State is filled in on read from the state tracker.
type Device struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Type          DeviceType `json:"type"`
	Dimmable      bool       `json:"dimmable"`
	DeviceCode    int64      `json:"device_code"`
	WireID        byte       `json:"wire_id"`
	CloudOnly     bool       `json:"cloud_only"`
	AssumedState  bool       `json:"assumed_state"`
	VersionData   int64      `json:"version_data"`
	VersionStatus int64      `json:"version_status"`
	State         State      `json:"state"`
}

// State is the cached on/off state of a device together with how much it can be trusted.
type State struct {
	On          bool       `json:"on"`
	Brightness  *int       `json:"brightness,omitempty"`
	Position    *int       `json:"position,omitempty"`
	LastCommand string     `json:"last_command"`
	LastUpdate  time.Time  `json:"last_update"`
	Confidence  Confidence `json:"confidence"`
}

type Scene struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Devices []int64 `json:"devices"`
}

// Event is emitted for discovery, connection and every command issued through the hub.
type Event struct {
	ID          uuid.UUID `json:"id"`
	Type        EventType `json:"type"`
	Hub         string    `json:"hub"`
	DeviceID    int64     `json:"device_id,omitempty"`
	Command     string    `json:"command,omitempty"`
	Success     bool      `json:"success"`
	DeviceCount int       `json:"device_count,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewEvent(eventType EventType, hub string) Event {
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		Hub:       hub,
		Timestamp: time.Now().UTC(),
	}
}
