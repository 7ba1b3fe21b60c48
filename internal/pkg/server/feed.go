package server

import (
	"context"
	"encoding/json"

	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"github.com/anicoll/ics2000-integration/pkg/sockets"
)

type feedMessage struct {
	Type   string        `json:"type"`
	Device *model.Device `json:"device,omitempty"`
	Event  *model.Event  `json:"event,omitempty"`
}

// Feed pushes state changes and events to websocket clients.
type Feed struct {
	b *sockets.Broadcaster
}

func NewFeed(b *sockets.Broadcaster) *Feed {
	return &Feed{b: b}
}

func (f *Feed) PublishState(_ context.Context, d model.Device) error {
	return f.send(feedMessage{Type: "state", Device: &d})
}

func (f *Feed) PublishEvent(_ context.Context, e model.Event) error {
	return f.send(feedMessage{Type: "event", Event: &e})
}

func (f *Feed) send(msg feedMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	f.b.Broadcast(body)
	return nil
}
