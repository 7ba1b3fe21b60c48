package eventlog

import (
	"time"

	"github.com/anicoll/ics2000-integration/internal/pkg/model"
)

type Kind string

const (
	KindEvent Kind = "event"
	KindState Kind = "state"
)

// Record is one journal entry. Integer keys keep the file compact.
type Record struct {
	Kind        Kind      `cbor:"1,keyasint" json:"kind"`
	Timestamp   time.Time `cbor:"2,keyasint" json:"timestamp"`
	Hub         string    `cbor:"3,keyasint,omitempty" json:"hub,omitempty"`
	DeviceID    int64     `cbor:"4,keyasint,omitempty" json:"device_id,omitempty"`
	EventID     string    `cbor:"5,keyasint,omitempty" json:"event_id,omitempty"`
	EventType   string    `cbor:"6,keyasint,omitempty" json:"event_type,omitempty"`
	Command     string    `cbor:"7,keyasint,omitempty" json:"command,omitempty"`
	Success     bool      `cbor:"8,keyasint,omitempty" json:"success,omitempty"`
	DeviceCount int       `cbor:"9,keyasint,omitempty" json:"device_count,omitempty"`
	Name        string    `cbor:"10,keyasint,omitempty" json:"name,omitempty"`
	On          *bool     `cbor:"11,keyasint,omitempty" json:"on,omitempty"`
	Brightness  *int      `cbor:"12,keyasint,omitempty" json:"brightness,omitempty"`
	Position    *int      `cbor:"13,keyasint,omitempty" json:"position,omitempty"`
	Confidence  int       `cbor:"14,keyasint,omitempty" json:"confidence,omitempty"`
}

func eventRecord(e model.Event) Record {
	return Record{
		Kind:        KindEvent,
		Timestamp:   e.Timestamp.UTC(),
		Hub:         e.Hub,
		DeviceID:    e.DeviceID,
		EventID:     e.ID.String(),
		EventType:   e.Type.String(),
		Command:     e.Command,
		Success:     e.Success,
		DeviceCount: e.DeviceCount,
	}
}

func stateRecord(d model.Device, now time.Time) Record {
	on := d.State.On
	return Record{
		Kind:       KindState,
		Timestamp:  now.UTC(),
		DeviceID:   d.ID,
		Name:       d.Name,
		Command:    d.State.LastCommand,
		On:         &on,
		Brightness: d.State.Brightness,
		Position:   d.State.Position,
		Confidence: int(d.State.Confidence),
	}
}
