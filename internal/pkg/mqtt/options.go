package mqtt

import (
	"fmt"
	"strings"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultKeepAlive      = 30 * time.Second
	defaultConnectTimeout = 10 * time.Second
	maxReconnectInterval  = time.Minute
)

type ClientConfig struct {
	// Host is host:port or a full broker URL.
	Host     string
	Username string
	Password string
	ClientID string
}

// NewClient builds a paho client that reconnects on its own after the first connect.
func NewClient(cfg ClientConfig) paho_mqtt.Client {
	return paho_mqtt.NewClient(clientOptions(cfg))
}

func clientOptions(cfg ClientConfig) *paho_mqtt.ClientOptions {
	opts := paho_mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg.Host))
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(maxReconnectInterval)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	// handlers may publish with QoS 1, ordered delivery would hold the acks behind them.
	opts.SetOrderMatters(false)
	return opts
}

func brokerURL(host string) string {
	if strings.Contains(host, "://") {
		return host
	}
	if !strings.Contains(host, ":") {
		host += ":1883"
	}
	return fmt.Sprintf("tcp://%s", host)
}
