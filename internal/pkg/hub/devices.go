package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"github.com/samber/lo"
)

// Devices returns every known device with its current state.
func (h *Hub) Devices(ctx context.Context) []model.Device {
	return lo.Map(h.registry.List(), func(d model.Device, _ int) model.Device {
		return h.withState(ctx, d)
	})
}

func (h *Hub) Device(ctx context.Context, id int64) (model.Device, error) {
	d, ok := h.device(ctx, id)
	if !ok {
		return model.Device{}, fmt.Errorf("%w: %d", ErrDeviceNotFound, id)
	}
	return d, nil
}

func (h *Hub) Scenes() []model.Scene {
	return h.registry.Scenes()
}

func (h *Hub) device(ctx context.Context, id int64) (model.Device, bool) {
	d, ok := h.registry.Get(id)
	if !ok {
		return model.Device{}, false
	}
	return h.withState(ctx, d), true
}

func (h *Hub) withState(ctx context.Context, d model.Device) model.Device {
	d.State, _ = h.tracker.Get(ctx, d.ID)
	return d
}

type Diagnostics struct {
	Hub                 string                   `json:"hub"`
	State               model.HubState           `json:"state"`
	Connected           bool                     `json:"connected"`
	LocalIP             string                   `json:"local_ip,omitempty"`
	LastSync            *time.Time               `json:"last_sync,omitempty"`
	DeviceCount         int                      `json:"device_count"`
	SceneCount          int                      `json:"scene_count"`
	DevicesByType       map[model.DeviceType]int `json:"devices_by_type"`
	AverageConfidence   float64                  `json:"average_confidence"`
	HighConfidence      int                      `json:"high_confidence"`
	MediumConfidence    int                      `json:"medium_confidence"`
	LowConfidence       int                      `json:"low_confidence"`
	UncertainConfidence int                      `json:"uncertain_confidence"`
}

// Diagnostics counts devices per confidence level.
func (h *Hub) Diagnostics(ctx context.Context) Diagnostics {
	devices := h.Devices(ctx)
	diag := Diagnostics{
		Hub:         h.ID(),
		State:       h.State(),
		Connected:   h.Connected(),
		LocalIP:     h.transport.IP(),
		DeviceCount: len(devices),
		SceneCount:  len(h.registry.Scenes()),
		DevicesByType: lo.CountValuesBy(devices, func(d model.Device) model.DeviceType {
			return d.Type
		}),
	}
	if last := h.LastSync(); !last.IsZero() {
		diag.LastSync = &last
	}
	if len(devices) == 0 {
		return diag
	}

	total := 0
	for _, d := range devices {
		c := int(d.State.Confidence)
		total += c
		switch {
		case c >= int(model.ConfidenceHigh):
			diag.HighConfidence++
		case c >= int(model.ConfidenceMedium):
			diag.MediumConfidence++
		case c >= int(model.ConfidenceLow):
			diag.LowConfidence++
		default:
			diag.UncertainConfidence++
		}
	}
	diag.AverageConfidence = float64(total) / float64(len(devices))
	return diag
}
