package cloud

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/anicoll/ics2000-integration/internal/pkg/codec"
	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"github.com/anicoll/ics2000-integration/internal/pkg/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultAuthURL        = "https://ics2000.trustsmartcloud.com/gateway.php"
	DefaultSyncURL        = "https://trustsmartcloud2.com/ics2000_api/gateway.php"
	DefaultDeviceUniqueID = "android"
	DefaultTimeout        = 10 * time.Second
)

type Config struct {
	Email              string
	Password           string
	MAC                string
	AuthURL            string
	SyncURL            string
	DeviceUniqueID     string
	Platform           string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
	group  singleflight.Group

	mu      sync.RWMutex
	session *Session
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.SyncURL == "" {
		cfg.SyncURL = DefaultSyncURL
	}
	if cfg.DeviceUniqueID == "" {
		cfg.DeviceUniqueID = DefaultDeviceUniqueID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec
			},
		},
		logger: zap.L(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Session returns the cached session or nil before the first successful login.
func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Authenticate logs in and replaces the cached session. Concurrent callers share one request.
func (c *Client) Authenticate(ctx context.Context) (*Session, error) {
	v, err, _ := c.group.Do("auth", func() (any, error) {
		return c.authenticate(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (c *Client) authenticate(ctx context.Context) (*Session, error) {
	form := url.Values{
		"action":           {"login"},
		"email":            {c.cfg.Email},
		"password_hash":    {c.cfg.Password},
		"device_unique_id": {c.cfg.DeviceUniqueID},
		"platform":         {c.cfg.Platform},
		"mac":              {c.cfg.MAC},
	}
	status, body, err := c.post(ctx, c.cfg.AuthURL, form)
	if err != nil {
		return nil, &AuthError{Reason: AuthCannotConnect, Err: err}
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, &AuthError{Reason: AuthInvalidCredentials, StatusCode: status, Err: fmt.Errorf("%s", http.StatusText(status))}
	case status != http.StatusOK:
		return nil, &AuthError{Reason: AuthCannotConnect, StatusCode: status, Err: fmt.Errorf("%s", http.StatusText(status))}
	}

	var res loginResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, &AuthError{Reason: AuthCannotConnect, StatusCode: status, Err: ErrNotJSON}
	}
	if len(res.Homes) == 0 {
		if r := res.reason(); r != "" {
			return nil, &AuthError{Reason: AuthInvalidCredentials, StatusCode: status, Err: fmt.Errorf("%w: %s", ErrNoHomes, r)}
		}
		return nil, &AuthError{Reason: AuthInvalidCredentials, StatusCode: status, Err: ErrNoHomes}
	}

	home := c.pickHome(res.Homes)
	key, err := codec.ParseKey(home.AESKey)
	if err != nil {
		return nil, &AuthError{Reason: AuthCannotConnect, StatusCode: status, Err: err}
	}
	mac := home.MAC
	if normalized, err := transport.NormalizeMAC(home.MAC); err == nil {
		mac = normalized
	} else if c.cfg.MAC != "" {
		mac = c.cfg.MAC
	}
	session := &Session{
		Email:  c.cfg.Email,
		HomeID: string(home.HomeID),
		MAC:    mac,
		AESKey: home.AESKey,
		Key:    key,
		Homes:  res.Homes,
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	c.logger.Info("authenticated with cloud",
		zap.String("home_id", session.HomeID),
		zap.String("mac", session.MAC),
		zap.String("aes_key_prefix", prefix(home.AESKey, 8)))
	return session, nil
}

// pickHome prefers the home whose gateway mac matches the configured one.
func (c *Client) pickHome(homes []Home) Home {
	want, err := transport.NormalizeMAC(c.cfg.MAC)
	if err != nil {
		return homes[0]
	}
	for _, h := range homes {
		if got, err := transport.NormalizeMAC(h.MAC); err == nil && got == want {
			return h
		}
	}
	return homes[0]
}

// Sync fetches the module list. Any failure is a *SyncError.
func (c *Client) Sync(ctx context.Context, session *Session) ([]model.ModuleRecord, error) {
	if session == nil {
		return nil, &SyncError{Err: ErrNoSession}
	}
	form := url.Values{
		"email":         {session.Email},
		"mac":           {session.MAC},
		"action":        {"sync"},
		"password_hash": {c.cfg.Password},
		"home_id":       {session.HomeID},
	}
	status, body, err := c.post(ctx, c.cfg.SyncURL, form)
	if err != nil {
		return nil, &SyncError{Err: err}
	}
	if status != http.StatusOK {
		return nil, &SyncError{StatusCode: status, Err: fmt.Errorf("%s", http.StatusText(status))}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, &SyncError{StatusCode: status, Err: ErrEmptyResponse}
	}
	if !json.Valid(trimmed) {
		return nil, &SyncError{StatusCode: status, Err: ErrNotJSON}
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, &SyncError{StatusCode: status, Err: ErrNotList}
	}
	if len(raw) == 0 {
		return nil, &SyncError{StatusCode: status, Err: ErrEmptyResponse}
	}

	records := make([]model.ModuleRecord, 0, len(raw))
	for i, r := range raw {
		var rec model.ModuleRecord
		if err := json.Unmarshal(r, &rec); err != nil {
			c.logger.Warn("skipping unreadable module record", zap.Int("index", i), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	c.logger.Debug("synced modules", zap.Int("count", len(records)))
	return records, nil
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, data, nil
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
