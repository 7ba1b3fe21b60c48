package mqtt

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// HandleCommands subscribes to the command topics published in the discovery config
// and forwards them to the controller. Each command runs on its own goroutine so a
// command that publishes state never stalls the client's message router.
func (s *service) HandleCommands(ctx context.Context, controller Controller) error {
	prefix := fmt.Sprintf("%s/%s", s.cfg.BaseTopic, s.cfg.Hub)
	filters := map[string]byte{
		prefix + "/+/set":            1,
		prefix + "/+/brightness/set": 1,
	}
	return s.wait(s.client.SubscribeMultiple(filters, func(_ paho_mqtt.Client, msg paho_mqtt.Message) {
		topic, payload := msg.Topic(), string(msg.Payload())
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			if err := s.handleCommand(ctx, controller, topic, payload); err != nil {
				s.logger.Warn("failed to handle mqtt command", zap.String("topic", topic), zap.Error(err))
			}
		}()
	}))
}

func (s *service) handleCommand(ctx context.Context, controller Controller, topic, payload string) error {
	prefix := fmt.Sprintf("%s/%s/", s.cfg.BaseTopic, s.cfg.Hub)
	rest, ok := strings.CutPrefix(topic, prefix)
	if !ok {
		return nil
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[len(parts)-1] != "set" {
		return nil
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return fmt.Errorf("bad device id in topic: %w", err)
	}
	payload = strings.ToLower(strings.TrimSpace(payload))
	s.logger.Debug("received mqtt command", zap.Int64("device_id", id), zap.String("payload", payload))

	if len(parts) == 3 && parts[1] == "brightness" {
		pct, err := strconv.Atoi(payload)
		if err != nil {
			return fmt.Errorf("bad brightness %q: %w", payload, err)
		}
		return controller.SetBrightness(ctx, id, pct)
	}
	if len(parts) != 2 {
		return nil
	}
	switch payload {
	case "on":
		return controller.TurnOn(ctx, id)
	case "off":
		return controller.TurnOff(ctx, id)
	case "open":
		return controller.SetCoverPosition(ctx, id, 100)
	case "close":
		return controller.SetCoverPosition(ctx, id, 0)
	}
	return fmt.Errorf("unknown command %q", payload)
}
