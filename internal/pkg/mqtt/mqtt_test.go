package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gosimple/slug"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	paho_mqtt.Client

	mu         sync.Mutex
	published  []published
	handler    paho_mqtt.MessageHandler
	subscribed map[string]byte
	err        error
}

func (c *fakeClient) Connect() paho_mqtt.Token { return &fakeToken{err: c.err} }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload any) paho_mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return &fakeToken{err: c.err}
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, callback paho_mqtt.MessageHandler) paho_mqtt.Token {
	c.subscribed = filters
	c.handler = callback
	return &fakeToken{}
}

func (c *fakeClient) topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo.Map(c.published, func(p published, _ int) string { return p.topic })
}

type fakeMessage struct {
	paho_mqtt.Message
	topic   string
	payload string
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return []byte(m.payload) }

type call struct {
	op    string
	id    int64
	value int
}

type fakeController struct {
	mu    sync.Mutex
	calls []call
	// block, when set, holds every command until it is closed.
	block chan struct{}
}

func (f *fakeController) record(c call) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return nil
}

func (f *fakeController) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeController) TurnOn(_ context.Context, id int64) error {
	return f.record(call{op: "on", id: id})
}

func (f *fakeController) TurnOff(_ context.Context, id int64) error {
	return f.record(call{op: "off", id: id})
}

func (f *fakeController) SetBrightness(_ context.Context, id int64, pct int) error {
	return f.record(call{op: "brightness", id: id, value: pct})
}

func (f *fakeController) SetCoverPosition(_ context.Context, id int64, position int) error {
	return f.record(call{op: "position", id: id, value: position})
}

func newTestService(t *testing.T, client *fakeClient) *service {
	return New(client, Config{Hub: "001122334455"}, WithLogger(zaptest.NewLogger(t)))
}

func TestPublishState(t *testing.T) {
	client := &fakeClient{}
	s := newTestService(t, client)
	ctx := context.Background()

	d := model.Device{
		ID:       42,
		Name:     "Hall Dimmer",
		Type:     model.DeviceTypeDimmer,
		Dimmable: true,
		State: model.State{
			On:          true,
			Brightness:  lo.ToPtr(60),
			LastCommand: "set_brightness",
			LastUpdate:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Confidence:  model.ConfidenceHigh,
		},
	}
	require.NoError(t, s.PublishState(ctx, d))
	require.NoError(t, s.PublishState(ctx, d))

	objectID := slug.Make("ics2000 001122334455 42")
	assert.Equal(t, []string{
		"homeassistant/light/" + objectID + "/config",
		"ics2000/001122334455/42/state",
		"ics2000/001122334455/42/state",
	}, client.topics())

	var config model.RegisterMessage
	require.NoError(t, json.Unmarshal(client.published[0].payload, &config))
	assert.True(t, client.published[0].retained)
	assert.Equal(t, "ics2000/001122334455/42", config.Tilda)
	assert.Equal(t, "~/brightness/set", config.BrightnessCommandTopic)
	assert.Equal(t, 100, config.BrightnessScale)
	assert.Equal(t, "Hall Dimmer", config.Device.Name)

	state := client.published[1]
	assert.True(t, state.retained)
	assert.Equal(t, byte(1), state.qos)
	assert.JSONEq(t, `{
		"device_id": 42,
		"state": "on",
		"brightness": 60,
		"position": null,
		"last_command": "set_brightness",
		"last_update": "2026-03-01T12:00:00Z",
		"confidence": 100
	}`, string(state.payload))
}

func TestPublishState_RegisterFailureStillPublishes(t *testing.T) {
	client := &fakeClient{err: errors.New("not authorised")}
	s := newTestService(t, client)

	err := s.PublishState(context.Background(), model.Device{ID: 1, Type: model.DeviceTypeSwitch})
	assert.Error(t, err)
	assert.Len(t, client.topics(), 2)
	assert.Empty(t, s.configured)
}

func TestPublishEvent(t *testing.T) {
	client := &fakeClient{}
	s := newTestService(t, client)

	e := model.NewEvent(model.EventCommandSent, "001122334455")
	require.NoError(t, s.PublishEvent(context.Background(), e))
	require.Len(t, client.published, 1)
	assert.Equal(t, "ics2000/001122334455/events", client.published[0].topic)
	assert.False(t, client.published[0].retained)
}

func TestComponent(t *testing.T) {
	tests := map[model.DeviceType]string{
		model.DeviceTypeSwitch:   "switch",
		model.DeviceTypeDimmer:   "light",
		model.DeviceTypeLight:    "light",
		model.DeviceTypeCover:    "cover",
		model.DeviceTypeSensor:   "binary_sensor",
		model.DeviceTypeDoorbell: "binary_sensor",
		model.DeviceTypeScene:    "scene",
	}
	for dt, expected := range tests {
		t.Run(dt.String(), func(t *testing.T) {
			assert.Equal(t, expected, component(dt))
		})
	}
}

func TestHandleCommands(t *testing.T) {
	tests := map[string]struct {
		topic    string
		payload  string
		expected []call
	}{
		"on":         {topic: "ics2000/001122334455/7/set", payload: "ON", expected: []call{{op: "on", id: 7}}},
		"off":        {topic: "ics2000/001122334455/7/set", payload: "off", expected: []call{{op: "off", id: 7}}},
		"open":       {topic: "ics2000/001122334455/8/set", payload: "open", expected: []call{{op: "position", id: 8, value: 100}}},
		"close":      {topic: "ics2000/001122334455/8/set", payload: "close", expected: []call{{op: "position", id: 8, value: 0}}},
		"brightness": {topic: "ics2000/001122334455/9/brightness/set", payload: "35", expected: []call{{op: "brightness", id: 9, value: 35}}},
		"own state":  {topic: "ics2000/001122334455/9/state", payload: "{}"},
		"events":     {topic: "ics2000/001122334455/events", payload: "{}"},
		"bad id":     {topic: "ics2000/001122334455/abc/set", payload: "on"},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			client := &fakeClient{}
			s := newTestService(t, client)
			controller := &fakeController{}
			require.NoError(t, s.HandleCommands(context.Background(), controller))
			assert.Equal(t, map[string]byte{
				"ics2000/001122334455/+/set":            1,
				"ics2000/001122334455/+/brightness/set": 1,
			}, client.subscribed)

			client.handler(client, fakeMessage{topic: test.topic, payload: test.payload})
			s.inflight.Wait()
			assert.Equal(t, test.expected, controller.recorded())
		})
	}
}

func TestHandleCommands_DoesNotHoldRouter(t *testing.T) {
	client := &fakeClient{}
	s := newTestService(t, client)
	controller := &fakeController{block: make(chan struct{})}
	require.NoError(t, s.HandleCommands(context.Background(), controller))

	returned := make(chan struct{})
	go func() {
		client.handler(client, fakeMessage{topic: "ics2000/001122334455/7/set", payload: "on"})
		client.handler(client, fakeMessage{topic: "ics2000/001122334455/8/set", payload: "off"})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("message handler blocked on a running command")
	}
	assert.Empty(t, controller.recorded())

	close(controller.block)
	s.inflight.Wait()
	assert.ElementsMatch(t, []call{{op: "on", id: 7}, {op: "off", id: 8}}, controller.recorded())
}

func TestClientOptions(t *testing.T) {
	tests := map[string]struct {
		host   string
		broker string
	}{
		"bare host": {host: "broker", broker: "tcp://broker:1883"},
		"host port": {host: "broker:1884", broker: "tcp://broker:1884"},
		"full url":  {host: "ssl://broker:8883", broker: "ssl://broker:8883"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			opts := clientOptions(ClientConfig{Host: tc.host, Username: "user", Password: "pass", ClientID: "ics"})
			require.Len(t, opts.Servers, 1)
			assert.Equal(t, tc.broker, opts.Servers[0].String())
			assert.Equal(t, "user", opts.Username)
			assert.Equal(t, "ics", opts.ClientID)
			assert.True(t, opts.AutoReconnect)
			assert.False(t, opts.Order)
		})
	}
}
