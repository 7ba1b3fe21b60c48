package cmd

import (
	"context"
	"time"

	"github.com/anicoll/ics2000-integration/internal/pkg/hub"
	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"github.com/anicoll/ics2000-integration/internal/pkg/mqtt"
)

// HubService is the part of the hub driven by the service loop, the API and MQTT.
type HubService interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	DiscoverDevices(ctx context.Context) ([]model.Device, error)
	Refresh(ctx context.Context) error
	Reload(ctx context.Context) error

	Devices(ctx context.Context) []model.Device
	Device(ctx context.Context, id int64) (model.Device, error)
	TurnOn(ctx context.Context, id int64) (model.Device, error)
	TurnOff(ctx context.Context, id int64) (model.Device, error)
	Identify(ctx context.Context, id int64) (model.Device, error)
	SetBrightness(ctx context.Context, id int64, pct int) (model.Device, error)
	SetCoverPosition(ctx context.Context, id int64, position int) (model.Device, error)
	ResetState(ctx context.Context, id int64) error
	ResetAllStates(ctx context.Context) error
	Scenes() []model.Scene
	ExecuteScene(ctx context.Context, id int64) error
	Diagnostics(ctx context.Context) hub.Diagnostics
}

// EventStore is the command history kept by the sqlite and postgres backends.
type EventStore interface {
	WriteEvent(ctx context.Context, event model.Event) error
	GetEvents(ctx context.Context, deviceID *int64, from, to *time.Time) ([]model.Event, error)
	Cleanup(ctx context.Context) error
}

type CommandSource interface {
	HandleCommands(ctx context.Context, controller mqtt.Controller) error
}
