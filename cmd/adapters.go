package cmd

import (
	"context"

	"github.com/anicoll/ics2000-integration/internal/pkg/model"
)

// hubController drops the returned device so MQTT commands can drive the hub.
type hubController struct {
	hub HubService
}

func (c hubController) TurnOn(ctx context.Context, id int64) error {
	_, err := c.hub.TurnOn(ctx, id)
	return err
}

func (c hubController) TurnOff(ctx context.Context, id int64) error {
	_, err := c.hub.TurnOff(ctx, id)
	return err
}

func (c hubController) SetBrightness(ctx context.Context, id int64, pct int) error {
	_, err := c.hub.SetBrightness(ctx, id, pct)
	return err
}

func (c hubController) SetCoverPosition(ctx context.Context, id int64, position int) error {
	_, err := c.hub.SetCoverPosition(ctx, id, position)
	return err
}

// historySink records hub events in the event store. States are already persisted by the tracker.
type historySink struct {
	store EventStore
}

func (s historySink) PublishState(context.Context, model.Device) error {
	return nil
}

func (s historySink) PublishEvent(ctx context.Context, e model.Event) error {
	return s.store.WriteEvent(ctx, e)
}
