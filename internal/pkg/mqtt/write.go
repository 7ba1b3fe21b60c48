package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

func (s *service) PublishState(ctx context.Context, device model.Device) error {
	if err := s.RegisterDevice(device); err != nil {
		s.logger.Warn("failed to register device with home assistant", zap.Int64("device_id", device.ID), zap.Error(err))
	}

	payload, err := json.Marshal(model.NewStatePayload(device))
	if err != nil {
		return err
	}
	return s.wait(s.client.Publish(s.stateTopic(device.ID), 1, true, payload))
}

func (s *service) PublishEvent(ctx context.Context, event model.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("%s/%s/events", s.cfg.BaseTopic, s.cfg.Hub)
	return s.wait(s.client.Publish(topic, 0, false, payload))
}

// RegisterDevice publishes the discovery config once per device.
func (s *service) RegisterDevice(device model.Device) error {
	s.mu.Lock()
	_, exists := s.configured[device.ID]
	s.mu.Unlock()
	if exists {
		return nil
	}

	msg := s.registerMsg(device)
	topic := fmt.Sprintf("%s/%s/%s/config", s.cfg.DiscoveryPrefix, component(device.Type), msg.ObjectID)
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := s.wait(s.client.Publish(topic, 1, true, payload)); err != nil {
		return err
	}

	s.mu.Lock()
	s.configured[device.ID] = struct{}{}
	s.mu.Unlock()
	s.logger.Debug("registered device with home assistant", zap.Int64("device_id", device.ID), zap.String("topic", topic))
	return nil
}

func (s *service) deviceTopic(id int64) string {
	return fmt.Sprintf("%s/%s/%d", s.cfg.BaseTopic, s.cfg.Hub, id)
}

func (s *service) stateTopic(id int64) string {
	return s.deviceTopic(id) + "/state"
}

func (s *service) registerMsg(device model.Device) model.RegisterMessage {
	objectID := slug.Make(fmt.Sprintf("ics2000 %s %d", s.cfg.Hub, device.ID))
	msg := model.RegisterMessage{
		Tilda:          s.deviceTopic(device.ID),
		Name:           device.Name,
		ID:             objectID,
		ObjectID:       objectID,
		StateTopic:     "~/state",
		JSONAttributes: "~/state",
		ValueTemplate:  "{{ value_json.state }}",
		Device: model.RegisterDevice{
			Name:         device.Name,
			Identifiers:  []string{objectID},
			Model:        device.Type.String(),
			Manufacturer: "KlikAanKlikUit",
			ViaDevice:    slug.Make("ics2000 " + s.cfg.Hub),
		},
	}

	switch component(device.Type) {
	case "light", "switch":
		msg.CommandTopic = "~/set"
		msg.PayloadOn, msg.PayloadOff = "on", "off"
		msg.StateOn, msg.StateOff = "on", "off"
		msg.OptimisticControl = true
		if device.Dimmable {
			msg.BrightnessCommandTopic = "~/brightness/set"
			msg.BrightnessStateTopic = "~/state"
			msg.BrightnessValueTemplate = "{{ value_json.brightness }}"
			msg.BrightnessScale = 100
		}
	case "cover":
		msg.CommandTopic = "~/set"
		msg.PayloadOpen, msg.PayloadClose = "open", "close"
		msg.StateOpen, msg.StateClosed = "on", "off"
		msg.OptimisticControl = true
	case "binary_sensor":
		msg.PayloadOn, msg.PayloadOff = "on", "off"
	}
	return msg
}

func component(t model.DeviceType) string {
	switch t {
	case model.DeviceTypeLight, model.DeviceTypeDimmer:
		return "light"
	case model.DeviceTypeCover:
		return "cover"
	case model.DeviceTypeSensor, model.DeviceTypeDoorbell:
		return "binary_sensor"
	case model.DeviceTypeScene:
		return "scene"
	}
	return "switch"
}
