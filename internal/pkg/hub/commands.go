package hub

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"github.com/anicoll/ics2000-integration/internal/pkg/state"
	"go.uber.org/zap"
)

func (h *Hub) TurnOn(ctx context.Context, id int64) (model.Device, error) {
	return h.execute(ctx, id, "turn_on", model.CommandOn, 0, state.Update{On: true})
}

func (h *Hub) TurnOff(ctx context.Context, id int64) (model.Device, error) {
	return h.execute(ctx, id, "turn_off", model.CommandOff, 0, state.Update{On: false})
}

// SetBrightness dims to pct percent. Devices that cannot dim are switched on for any
// non-zero value and off for zero.
func (h *Hub) SetBrightness(ctx context.Context, id int64, pct int) (model.Device, error) {
	if pct < 0 || pct > 100 {
		return model.Device{}, fmt.Errorf("%w: brightness %d", ErrInvalidValue, pct)
	}
	d, ok := h.registry.Get(id)
	if !ok {
		return model.Device{}, fmt.Errorf("%w: %d", ErrDeviceNotFound, id)
	}
	if !d.Dimmable {
		h.logger.Debug("device is not dimmable, switching instead", zap.Int64("device_id", id), zap.Int("brightness", pct))
		if pct > 0 {
			return h.TurnOn(ctx, id)
		}
		return h.TurnOff(ctx, id)
	}
	value := DimValue(pct)
	return h.execute(ctx, id, "set_brightness", model.CommandDim, value, state.Update{On: pct > 0, Brightness: &pct})
}

// SetCoverPosition only opens or closes. Positions above 50 open the cover.
func (h *Hub) SetCoverPosition(ctx context.Context, id int64, position int) (model.Device, error) {
	if position < 0 || position > 100 {
		return model.Device{}, fmt.Errorf("%w: position %d", ErrInvalidValue, position)
	}
	on := position > 50
	cmd := model.CommandOff
	if on {
		cmd = model.CommandOn
	}
	return h.execute(ctx, id, "set_position", cmd, 0, state.Update{On: on, Position: &position})
}

// Identify blinks the device and leaves it in the state it had before.
func (h *Hub) Identify(ctx context.Context, id int64) (model.Device, error) {
	d, ok := h.registry.Get(id)
	if !ok {
		return model.Device{}, fmt.Errorf("%w: %d", ErrDeviceNotFound, id)
	}
	unlock := h.lockDevice(id)
	defer unlock()

	previous, _ := h.tracker.Get(ctx, id)
	h.logger.Info("identifying device", zap.Int64("device_id", id), zap.Int("cycles", h.cfg.IdentifyCycles))

	err := h.blink(ctx, d)
	if err == nil && previous.On {
		err = h.send(ctx, d, model.CommandOn, 0)
	}
	if err != nil {
		h.emit(ctx, h.commandEvent(model.EventCommandFailed, id, "identify", false))
		return h.withState(ctx, d), err
	}

	d.State = h.tracker.RecordCommand(ctx, id, state.Update{On: previous.On, Command: "identify"})
	h.notify(ctx, d)
	h.emit(ctx, h.commandEvent(model.EventCommandSent, id, "identify", true))
	return d, nil
}

func (h *Hub) blink(ctx context.Context, d model.Device) error {
	for range h.cfg.IdentifyCycles {
		if err := h.send(ctx, d, model.CommandOn, 0); err != nil {
			return err
		}
		if err := sleep(ctx, h.cfg.IdentifyDelay); err != nil {
			return err
		}
		if err := h.send(ctx, d, model.CommandOff, 0); err != nil {
			return err
		}
		if err := sleep(ctx, h.cfg.IdentifyDelay); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteScene always fails: the gateway exposes no way to trigger a scene.
func (h *Hub) ExecuteScene(ctx context.Context, id int64) error {
	if _, ok := h.registry.Scene(id); !ok {
		return fmt.Errorf("%w: %d", ErrSceneNotFound, id)
	}
	h.logger.Warn("scene execution requested but not supported", zap.Int64("scene_id", id))
	e := h.newEvent(model.EventCommandFailed)
	e.Command = "execute_scene"
	h.emit(ctx, e)
	return ErrSceneUnsupported
}

// ResetState forgets the stored state of one device.
func (h *Hub) ResetState(ctx context.Context, id int64) error {
	unlock := h.lockDevice(id)
	err := h.tracker.Reset(ctx, id)
	unlock()
	if err != nil {
		return err
	}
	if d, ok := h.device(ctx, id); ok {
		h.notify(ctx, d)
	}
	return nil
}

// ResetAllStates forgets every stored state.
func (h *Hub) ResetAllStates(ctx context.Context) error {
	if err := h.tracker.ResetAll(ctx); err != nil {
		return err
	}
	for _, d := range h.Devices(ctx) {
		h.notify(ctx, d)
	}
	return nil
}

// execute sends one command, updates state optimistically on success and schedules a
// resync to reconcile with what the cloud reports.
func (h *Hub) execute(ctx context.Context, id int64, name string, cmd model.Command, value byte, u state.Update) (model.Device, error) {
	d, ok := h.registry.Get(id)
	if !ok {
		return model.Device{}, fmt.Errorf("%w: %d", ErrDeviceNotFound, id)
	}
	unlock := h.lockDevice(id)
	defer unlock()

	if err := h.send(ctx, d, cmd, value); err != nil {
		h.emit(ctx, h.commandEvent(model.EventCommandFailed, id, name, false))
		return h.withState(ctx, d), err
	}

	u.Command = name
	d.State = h.tracker.RecordCommand(ctx, id, u)
	h.notify(ctx, d)
	h.emit(ctx, h.commandEvent(model.EventCommandSent, id, name, true))
	h.scheduleResync(id)
	return d, nil
}

func (h *Hub) send(ctx context.Context, d model.Device, cmd model.Command, value byte) error {
	if d.CloudOnly {
		h.logger.Debug("device is cloud-only, skipping local control", zap.Int64("device_id", d.ID), zap.Stringer("command", cmd))
		return nil
	}
	if err := h.transport.Send(ctx, d.ID, cmd, value); err != nil {
		h.logger.Warn("command not confirmed", zap.Int64("device_id", d.ID), zap.Stringer("command", cmd), zap.Error(err))
		return err
	}
	return nil
}

func (h *Hub) scheduleResync(id int64) {
	h.schedule(h.cfg.ResyncDelay, func() {
		if h.closed.Load() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		if _, err := h.DiscoverDevices(ctx); err != nil {
			h.logger.Warn("delayed resync failed", zap.Int64("device_id", id), zap.Error(err))
		}
	})
}

func (h *Hub) commandEvent(t model.EventType, id int64, command string, success bool) model.Event {
	e := h.newEvent(t)
	e.DeviceID = id
	e.Command = command
	e.Success = success
	return e
}

// DimValue maps a percentage onto the 0-255 dim range.
func DimValue(pct int) byte {
	return byte(math.Round(float64(pct) * 255 / 100))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
