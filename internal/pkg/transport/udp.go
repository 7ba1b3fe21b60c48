package transport

import (
	"context"
	"encoding/hex"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"go.uber.org/zap"
)

type Config struct {
	MAC              string
	IP               string
	ControlPort      int
	DiscoveryPort    int
	BroadcastAddr    string
	Tries            int
	Sleep            time.Duration
	WriteTimeout     time.Duration
	DiscoveryTimeout time.Duration
	Mapper           string
}

func (c Config) withDefaults() Config {
	if c.ControlPort == 0 {
		c.ControlPort = 9760
	}
	if c.DiscoveryPort == 0 {
		c.DiscoveryPort = 2012
	}
	if c.BroadcastAddr == "" {
		c.BroadcastAddr = "255.255.255.255"
	}
	if c.Tries <= 0 {
		c.Tries = 3
	}
	if c.Sleep <= 0 {
		c.Sleep = 100 * time.Millisecond
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = time.Second
	}
	if c.DiscoveryTimeout <= 0 {
		c.DiscoveryTimeout = 5 * time.Second
	}
	return c
}

// UDP sends one-way control packets to the gateway. There is no acknowledgement on the wire.
type UDP struct {
	cfg    Config
	mac    []byte
	macHex string
	mapper IDMapper
	logger *zap.Logger

	mu sync.RWMutex
	ip string
}

type Option func(*UDP)

func WithLogger(logger *zap.Logger) Option {
	return func(u *UDP) {
		u.logger = logger
	}
}

func New(cfg Config, opts ...Option) (*UDP, error) {
	cfg = cfg.withDefaults()
	macHex, err := NormalizeMAC(cfg.MAC)
	if err != nil {
		return nil, err
	}
	mac, _ := hex.DecodeString(macHex)
	mapper, err := MapperByName(cfg.Mapper)
	if err != nil {
		return nil, err
	}
	u := &UDP{
		cfg:    cfg,
		mac:    mac,
		macHex: macHex,
		mapper: mapper,
		logger: zap.L(),
		ip:     cfg.IP,
	}
	for _, o := range opts {
		o(u)
	}
	return u, nil
}

func (u *UDP) IP() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.ip
}

func (u *UDP) SetIP(ip string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ip = ip
}

func (u *UDP) WireID(deviceID int64) byte {
	return u.mapper(deviceID)
}

func (u *UDP) Mapper() IDMapper {
	return u.mapper
}

// Send transmits the packet Tries times. Without a known gateway IP it is a successful no-op.
func (u *UDP) Send(ctx context.Context, deviceID int64, cmd model.Command, value byte) error {
	ip := u.IP()
	if ip == "" {
		u.logger.Debug("no local ip, skipping udp send", zap.Int64("device_id", deviceID), zap.Stringer("command", cmd))
		return nil
	}
	packet := BuildPacket(u.mac, u.mapper(deviceID), cmd, value)
	addr := net.JoinHostPort(ip, strconv.Itoa(u.cfg.ControlPort))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		u.logger.Warn("failed to open udp socket", zap.String("addr", addr), zap.Error(err))
		return &TransportError{Attempt: 0, Err: err}
	}
	defer conn.Close()

	for attempt := 1; attempt <= u.cfg.Tries; attempt++ {
		if err := conn.SetWriteDeadline(time.Now().Add(u.cfg.WriteTimeout)); err != nil {
			return &TransportError{Attempt: attempt, Err: err}
		}
		if _, err := conn.Write(packet); err != nil {
			u.logger.Warn("udp send failed",
				zap.String("addr", addr),
				zap.Int64("device_id", deviceID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return &TransportError{Attempt: attempt, Err: err}
		}
		if attempt == u.cfg.Tries {
			break
		}
		select {
		case <-ctx.Done():
			return &TransportError{Attempt: attempt, Err: ctx.Err()}
		case <-time.After(u.cfg.Sleep):
		}
	}
	u.logger.Debug("udp command sent",
		zap.String("addr", addr),
		zap.Int64("device_id", deviceID),
		zap.Stringer("command", cmd),
		zap.Uint8("value", value),
		zap.Int("tries", u.cfg.Tries))
	return nil
}

// Discover broadcasts a probe and returns the address of the gateway.
// A reply carrying our MAC wins; otherwise the first reply is used.
func (u *UDP) Discover(ctx context.Context) (string, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	deadline := time.Now().Add(u.cfg.DiscoveryTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return "", err
	}

	target := &net.UDPAddr{IP: net.ParseIP(u.cfg.BroadcastAddr), Port: u.cfg.DiscoveryPort}
	if _, err := conn.WriteTo([]byte("D"), target); err != nil {
		return "", err
	}
	u.logger.Debug("sent discovery probe", zap.Stringer("target", target))

	fallback := ""
	buf := make([]byte, 2048)
	for {
		if ctx.Err() != nil {
			break
		}
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				break
			}
			return "", err
		}
		host, _, err := net.SplitHostPort(from.String())
		if err != nil {
			continue
		}
		if u.matchesMAC(buf[:n]) {
			u.logger.Info("found gateway", zap.String("ip", host))
			u.SetIP(host)
			return host, nil
		}
		if fallback == "" {
			fallback = host
		}
	}
	if fallback == "" {
		return "", ErrGatewayNotFound
	}
	u.logger.Info("gateway reply did not include mac, using first responder", zap.String("ip", fallback))
	u.SetIP(fallback)
	return fallback, nil
}

func (u *UDP) matchesMAC(payload []byte) bool {
	if strings.Contains(strings.ToUpper(hex.EncodeToString(payload)), u.macHex) {
		return true
	}
	return strings.Contains(strings.ToUpper(strings.NewReplacer(":", "", "-", "").Replace(string(payload))), u.macHex)
}
