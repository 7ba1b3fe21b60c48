package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/anicoll/ics2000-integration/internal/pkg/hub"
	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"github.com/anicoll/ics2000-integration/internal/pkg/mqtt"
)

var errNotMocked = errors.New("not mocked")

// MockHubService is a mock implementation of the HubService interface.
type MockHubService struct {
	ConnectFunc          func(ctx context.Context) error
	DisconnectFunc       func(ctx context.Context) error
	DiscoverDevicesFunc  func(ctx context.Context) ([]model.Device, error)
	RefreshFunc          func(ctx context.Context) error
	ReloadFunc           func(ctx context.Context) error
	DevicesFunc          func(ctx context.Context) []model.Device
	DeviceFunc           func(ctx context.Context, id int64) (model.Device, error)
	TurnOnFunc           func(ctx context.Context, id int64) (model.Device, error)
	TurnOffFunc          func(ctx context.Context, id int64) (model.Device, error)
	IdentifyFunc         func(ctx context.Context, id int64) (model.Device, error)
	SetBrightnessFunc    func(ctx context.Context, id int64, pct int) (model.Device, error)
	SetCoverPositionFunc func(ctx context.Context, id int64, position int) (model.Device, error)
	ResetStateFunc       func(ctx context.Context, id int64) error
	ResetAllStatesFunc   func(ctx context.Context) error
	ExecuteSceneFunc     func(ctx context.Context, id int64) error
}

func (m *MockHubService) Connect(ctx context.Context) error {
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx)
	}
	return nil
}

func (m *MockHubService) Disconnect(ctx context.Context) error {
	if m.DisconnectFunc != nil {
		return m.DisconnectFunc(ctx)
	}
	return nil
}

func (m *MockHubService) DiscoverDevices(ctx context.Context) ([]model.Device, error) {
	if m.DiscoverDevicesFunc != nil {
		return m.DiscoverDevicesFunc(ctx)
	}
	return nil, nil
}

func (m *MockHubService) Refresh(ctx context.Context) error {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx)
	}
	return nil
}

func (m *MockHubService) Reload(ctx context.Context) error {
	if m.ReloadFunc != nil {
		return m.ReloadFunc(ctx)
	}
	return nil
}

func (m *MockHubService) Devices(ctx context.Context) []model.Device {
	if m.DevicesFunc != nil {
		return m.DevicesFunc(ctx)
	}
	return nil
}

func (m *MockHubService) Device(ctx context.Context, id int64) (model.Device, error) {
	if m.DeviceFunc != nil {
		return m.DeviceFunc(ctx, id)
	}
	return model.Device{}, hub.ErrDeviceNotFound
}

func (m *MockHubService) TurnOn(ctx context.Context, id int64) (model.Device, error) {
	if m.TurnOnFunc != nil {
		return m.TurnOnFunc(ctx, id)
	}
	return model.Device{}, errNotMocked
}

func (m *MockHubService) TurnOff(ctx context.Context, id int64) (model.Device, error) {
	if m.TurnOffFunc != nil {
		return m.TurnOffFunc(ctx, id)
	}
	return model.Device{}, errNotMocked
}

func (m *MockHubService) Identify(ctx context.Context, id int64) (model.Device, error) {
	if m.IdentifyFunc != nil {
		return m.IdentifyFunc(ctx, id)
	}
	return model.Device{}, errNotMocked
}

func (m *MockHubService) SetBrightness(ctx context.Context, id int64, pct int) (model.Device, error) {
	if m.SetBrightnessFunc != nil {
		return m.SetBrightnessFunc(ctx, id, pct)
	}
	return model.Device{}, errNotMocked
}

func (m *MockHubService) SetCoverPosition(ctx context.Context, id int64, position int) (model.Device, error) {
	if m.SetCoverPositionFunc != nil {
		return m.SetCoverPositionFunc(ctx, id, position)
	}
	return model.Device{}, errNotMocked
}

func (m *MockHubService) ResetState(ctx context.Context, id int64) error {
	if m.ResetStateFunc != nil {
		return m.ResetStateFunc(ctx, id)
	}
	return nil
}

func (m *MockHubService) ResetAllStates(ctx context.Context) error {
	if m.ResetAllStatesFunc != nil {
		return m.ResetAllStatesFunc(ctx)
	}
	return nil
}

func (m *MockHubService) Scenes() []model.Scene {
	return nil
}

func (m *MockHubService) ExecuteScene(ctx context.Context, id int64) error {
	if m.ExecuteSceneFunc != nil {
		return m.ExecuteSceneFunc(ctx, id)
	}
	return hub.ErrSceneNotFound
}

func (m *MockHubService) Diagnostics(context.Context) hub.Diagnostics {
	return hub.Diagnostics{}
}

// MockEventStore is a mock implementation of the EventStore interface.
type MockEventStore struct {
	WriteEventFunc func(ctx context.Context, event model.Event) error
	CleanupFunc    func(ctx context.Context) error
}

func (m *MockEventStore) WriteEvent(ctx context.Context, event model.Event) error {
	if m.WriteEventFunc != nil {
		return m.WriteEventFunc(ctx, event)
	}
	return nil
}

func (m *MockEventStore) GetEvents(context.Context, *int64, *time.Time, *time.Time) ([]model.Event, error) {
	return nil, nil
}

func (m *MockEventStore) Cleanup(ctx context.Context) error {
	if m.CleanupFunc != nil {
		return m.CleanupFunc(ctx)
	}
	return nil
}

// MockCommandSource is a mock implementation of the CommandSource interface.
type MockCommandSource struct {
	HandleCommandsFunc func(ctx context.Context, controller mqtt.Controller) error
}

func (m *MockCommandSource) HandleCommands(ctx context.Context, controller mqtt.Controller) error {
	if m.HandleCommandsFunc != nil {
		return m.HandleCommandsFunc(ctx, controller)
	}
	return nil
}
