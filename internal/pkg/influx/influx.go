// Package influx writes device states and hub events to InfluxDB as time series.
package influx

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
)

const (
	measurementState = "device_state"
	measurementEvent = "hub_event"

	connectTimeout = 10 * time.Second
)

var ErrConnectionFailed = errors.New("influx: connection failed")

type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	// BatchSize and FlushInterval tune the non-blocking write API.
	BatchSize     uint
	FlushInterval time.Duration
}

// pointWriter is the part of api.WriteAPI used here.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

type Client struct {
	client influxdb2.Client
	writer pointWriter
	hub    string
	now    func() time.Time
	logger *zap.Logger
}

// Connect pings the server and returns a client writing to cfg.Bucket.
func Connect(ctx context.Context, cfg Config, hub string, logger *zap.Logger) (*Client, error) {
	opts := influxdb2.DefaultOptions()
	if cfg.BatchSize > 0 {
		opts.SetBatchSize(cfg.BatchSize)
	}
	if cfg.FlushInterval > 0 {
		opts.SetFlushInterval(uint(cfg.FlushInterval.Milliseconds()))
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			logger.Warn("influx write failed", zap.Error(err))
		}
	}()

	c := newClient(writeAPI, hub, logger)
	c.client = client
	return c, nil
}

func newClient(w pointWriter, hub string, logger *zap.Logger) *Client {
	return &Client{
		writer: w,
		hub:    hub,
		now:    time.Now,
		logger: logger,
	}
}

func (c *Client) PublishState(_ context.Context, d model.Device) error {
	fields := map[string]any{
		"on":         d.State.On,
		"confidence": int(d.State.Confidence),
	}
	if d.State.Brightness != nil {
		fields["brightness"] = *d.State.Brightness
	}
	if d.State.Position != nil {
		fields["position"] = *d.State.Position
	}
	c.writer.WritePoint(write.NewPoint(measurementState,
		map[string]string{
			"hub":       c.hub,
			"device_id": strconv.FormatInt(d.ID, 10),
			"name":      d.Name,
			"type":      d.Type.String(),
		},
		fields,
		c.now(),
	))
	return nil
}

func (c *Client) PublishEvent(_ context.Context, e model.Event) error {
	tags := map[string]string{
		"hub":  e.Hub,
		"type": e.Type.String(),
	}
	if e.Command != "" {
		tags["command"] = e.Command
	}
	fields := map[string]any{
		"success": e.Success,
		"id":      e.ID.String(),
	}
	if e.DeviceID != 0 {
		fields["device_id"] = e.DeviceID
	}
	if e.DeviceCount != 0 {
		fields["device_count"] = e.DeviceCount
	}
	c.writer.WritePoint(write.NewPoint(measurementEvent, tags, fields, e.Timestamp))
	return nil
}

// Close flushes buffered points and closes the connection.
func (c *Client) Close() error {
	c.writer.Flush()
	if c.client != nil {
		c.client.Close()
	}
	return nil
}
