// Package mqtt republishes device state to a broker and exposes the devices to Home Assistant.
package mqtt

import (
	"context"
	"errors"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	DefaultBaseTopic       = "ics2000"
	DefaultDiscoveryPrefix = "homeassistant"
)

type Config struct {
	BaseTopic       string
	DiscoveryPrefix string
	// Hub is the gateway MAC, used as the second topic level.
	Hub     string
	Timeout time.Duration
}

// Controller is the subset of the hub driven by command topics.
type Controller interface {
	TurnOn(ctx context.Context, id int64) error
	TurnOff(ctx context.Context, id int64) error
	SetBrightness(ctx context.Context, id int64, pct int) error
	SetCoverPosition(ctx context.Context, id int64, position int) error
}

type service struct {
	client paho_mqtt.Client
	cfg    Config
	logger *zap.Logger

	mu         sync.Mutex
	configured map[int64]struct{}

	inflight sync.WaitGroup
}

type Option func(*service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

func New(client paho_mqtt.Client, cfg Config, opts ...Option) *service {
	if cfg.BaseTopic == "" {
		cfg.BaseTopic = DefaultBaseTopic
	}
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = DefaultDiscoveryPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	s := &service{
		client:     client,
		cfg:        cfg,
		logger:     zap.L(),
		configured: make(map[int64]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *service) Connect() error {
	token := s.client.Connect()
	res := token.WaitTimeout(s.cfg.Timeout)
	if res {
		return token.Error()
	}
	if err := token.Error(); err != nil {
		return err
	}
	return errors.New("unable to connect in time")
}

// Disconnect lets running commands finish publishing before closing the connection.
func (s *service) Disconnect() {
	s.inflight.Wait()
	s.client.Disconnect(250)
}

// wait blocks until the token completes or the timeout elapses.
func (s *service) wait(token paho_mqtt.Token) error {
	if !token.WaitTimeout(s.cfg.Timeout) {
		if err := token.Error(); err != nil {
			return err
		}
		return errors.New("mqtt: timed out waiting for broker")
	}
	return token.Error()
}
