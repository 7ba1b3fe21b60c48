package publisher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"go.uber.org/zap"
)

var errAlreadyRegistered = errors.New("publisher already registered")

// Sink receives device states and hub events, e.g. MQTT, InfluxDB or the websocket feed.
type Sink interface {
	PublishState(ctx context.Context, device model.Device) error
	PublishEvent(ctx context.Context, event model.Event) error
}

// Publisher fans state changes and events out to every registered sink.
// A state identical to the last one published for a device is dropped.
type Publisher struct {
	mu     sync.RWMutex
	sinks  map[string]Sink
	states sync.Map
	logger *zap.Logger
}

type Option func(*Publisher)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func New(opts ...Option) *Publisher {
	p := &Publisher{
		sinks:  make(map[string]Sink),
		logger: zap.L(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Publisher) Register(name string, sink Sink) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.sinks[name]; ok {
		return fmt.Errorf("%w: %s", errAlreadyRegistered, name)
	}
	p.sinks[name] = sink
	return nil
}

// Names returns the registered sink names in sorted order.
func (p *Publisher) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.sinks))
	for name := range p.sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Publisher) OnStateChange(ctx context.Context, device model.Device) {
	if !p.shouldUpdate(device) {
		return
	}
	for name, sink := range p.snapshot() {
		if err := sink.PublishState(ctx, device); err != nil {
			p.logger.Error("failed to publish state", zap.Error(err), zap.String("publisher", name), zap.Int64("device_id", device.ID))
			continue
		}
		p.logger.Debug("published state", zap.String("publisher", name), zap.Int64("device_id", device.ID))
	}
}

func (p *Publisher) OnEvent(ctx context.Context, event model.Event) {
	for name, sink := range p.snapshot() {
		if err := sink.PublishEvent(ctx, event); err != nil {
			p.logger.Error("failed to publish event", zap.Error(err), zap.String("publisher", name), zap.Stringer("event", event.Type))
		}
	}
}

// Forget clears the dedupe cache so the next state of every device is published.
func (p *Publisher) Forget() {
	p.states.Clear()
}

func (p *Publisher) snapshot() map[string]Sink {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]Sink, len(p.sinks))
	for name, sink := range p.sinks {
		out[name] = sink
	}
	return out
}

func (p *Publisher) shouldUpdate(device model.Device) bool {
	value := fingerprint(device)
	old, exists := p.states.Swap(device.ID, value)
	if exists && old.(string) == value {
		return false
	}
	if !exists {
		p.logger.Info("configured device", zap.Int64("device_id", device.ID), zap.String("name", device.Name), zap.String("state", value))
	}
	return true
}

func fingerprint(d model.Device) string {
	s := d.State
	return fmt.Sprintf("%s|%s|%t|%s|%s|%s|%d",
		d.Name, d.Type, s.On, optional(s.Brightness), optional(s.Position), s.LastCommand, s.Confidence)
}

func optional(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}
