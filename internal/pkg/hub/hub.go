// Package hub composes the cloud client, codec, classifier, local transport and state
// tracker into the operations callers use to drive one ICS-2000 gateway.
package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anicoll/ics2000-integration/internal/pkg/classifier"
	"github.com/anicoll/ics2000-integration/internal/pkg/cloud"
	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"github.com/anicoll/ics2000-integration/internal/pkg/state"
	"github.com/anicoll/ics2000-integration/internal/pkg/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultResyncDelay    = 2 * time.Second
	DefaultIdentifyCycles = 3
	DefaultIdentifyDelay  = 500 * time.Millisecond
	DefaultCloudOnlyAbove = 100000

	syncTimeout = 30 * time.Second
)

type CloudClient interface {
	Authenticate(ctx context.Context) (*cloud.Session, error)
	Session() *cloud.Session
	Sync(ctx context.Context, session *cloud.Session) ([]model.ModuleRecord, error)
}

type Transport interface {
	Send(ctx context.Context, deviceID int64, cmd model.Command, value byte) error
	Discover(ctx context.Context) (string, error)
	IP() string
	WireID(deviceID int64) byte
	Mapper() transport.IDMapper
}

// Observer is told about every state change and every event the hub emits.
type Observer interface {
	OnStateChange(ctx context.Context, device model.Device)
	OnEvent(ctx context.Context, event model.Event)
}

// Scheduler runs fn once after delay without blocking the caller.
type Scheduler func(delay time.Duration, fn func())

// Override forces the name and/or type of one device after classification.
type Override struct {
	Name string
	Type model.DeviceType
}

type Config struct {
	MAC            string
	DiscoverLocal  bool
	ResyncDelay    time.Duration
	IdentifyCycles int
	IdentifyDelay  time.Duration
	// Ids above this threshold are cloud-only and never sent over UDP. Zero disables the check.
	CloudOnlyAbove int64
	Blacklist      []int64
	Overrides      map[int64]Override
}

func (c Config) withDefaults() Config {
	if c.ResyncDelay <= 0 {
		c.ResyncDelay = DefaultResyncDelay
	}
	if c.IdentifyCycles <= 0 {
		c.IdentifyCycles = DefaultIdentifyCycles
	}
	if c.IdentifyDelay <= 0 {
		c.IdentifyDelay = DefaultIdentifyDelay
	}
	return c
}

type Hub struct {
	cfg        Config
	cloud      CloudClient
	transport  Transport
	tracker    *state.Tracker
	classifier *classifier.Classifier
	registry   *Registry
	schedule   Scheduler
	now        func() time.Time
	logger     *zap.Logger
	blacklist  map[int64]struct{}

	mu        sync.RWMutex
	hubState  model.HubState
	hubID     string
	lastSync  time.Time
	observers []Observer
	reported  map[string]struct{}

	syncGroup singleflight.Group
	locks     sync.Map
	closed    atomic.Bool
}

type Option func(*Hub)

func WithLogger(logger *zap.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

func WithRegistry(r *Registry) Option {
	return func(h *Hub) {
		h.registry = r
	}
}

func WithClassifier(c *classifier.Classifier) Option {
	return func(h *Hub) {
		h.classifier = c
	}
}

func WithScheduler(s Scheduler) Option {
	return func(h *Hub) {
		h.schedule = s
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		h.now = now
	}
}

func WithObserver(o Observer) Option {
	return func(h *Hub) {
		h.observers = append(h.observers, o)
	}
}

func New(cfg Config, client CloudClient, tr Transport, tracker *state.Tracker, opts ...Option) *Hub {
	h := &Hub{
		cfg:       cfg.withDefaults(),
		cloud:     client,
		transport: tr,
		tracker:   tracker,
		now:       time.Now,
		logger:    zap.L(),
		hubState:  model.HubDisconnected,
		hubID:     cfg.MAC,
		reported:  make(map[string]struct{}),
		blacklist: make(map[int64]struct{}, len(cfg.Blacklist)),
	}
	for _, id := range cfg.Blacklist {
		h.blacklist[id] = struct{}{}
	}
	for _, o := range opts {
		o(h)
	}
	if h.registry == nil {
		h.registry = NewRegistry()
	}
	if h.classifier == nil {
		h.classifier = classifier.New(classifier.WithLogger(h.logger))
	}
	if h.schedule == nil {
		h.schedule = func(delay time.Duration, fn func()) {
			time.AfterFunc(delay, fn)
		}
	}
	return h
}

// Connect authenticates against the cloud and, when enabled and no IP is configured,
// looks for the gateway on the local network. A failed discovery is not fatal.
func (h *Hub) Connect(ctx context.Context) error {
	h.closed.Store(false)
	h.setState(model.HubConnecting)

	session, err := h.cloud.Authenticate(ctx)
	if err != nil {
		h.setState(model.HubError)
		h.logger.Error("failed to authenticate with cloud", zap.Error(err), zap.Bool("invalid_credentials", cloud.IsInvalidCredentials(err)))
		return err
	}
	if session.MAC != "" {
		h.mu.Lock()
		h.hubID = session.MAC
		h.mu.Unlock()
	}

	if err := h.tracker.Load(ctx); err != nil {
		h.logger.Warn("failed to load persisted device states", zap.Error(err))
	}

	if h.cfg.DiscoverLocal && h.transport.IP() == "" {
		if ip, err := h.transport.Discover(ctx); err != nil {
			h.logger.Warn("gateway not found on local network, commands will only update state", zap.Error(err))
		} else {
			h.logger.Info("gateway found on local network", zap.String("ip", ip))
		}
	}

	h.setState(model.HubConnected)
	h.emit(ctx, h.newEvent(model.EventHubConnected))
	h.logger.Info("connected to gateway", zap.String("hub", h.ID()), zap.String("home_id", session.HomeID), zap.String("ip", h.transport.IP()))
	return nil
}

// Reload re-authenticates and runs a full sync.
func (h *Hub) Reload(ctx context.Context) error {
	if _, err := h.cloud.Authenticate(ctx); err != nil {
		h.logger.Error("failed to re-authenticate with cloud", zap.Error(err))
		return err
	}
	h.logger.Info("re-authenticated with cloud")
	_, err := h.DiscoverDevices(ctx)
	return err
}

// Disconnect persists all state. Pending resyncs that fire afterwards are dropped.
func (h *Hub) Disconnect(ctx context.Context) error {
	h.closed.Store(true)
	h.setState(model.HubDisconnected)
	return h.tracker.Flush(ctx)
}

// Subscribe registers an observer for state changes and events.
func (h *Hub) Subscribe(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, o)
}

// ID is the gateway MAC, used as the hub identifier on events.
func (h *Hub) ID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.hubID
}

func (h *Hub) State() model.HubState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.hubState
}

func (h *Hub) Connected() bool {
	return h.State() == model.HubConnected
}

func (h *Hub) LastSync() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastSync
}

func (h *Hub) setState(s model.HubState) {
	h.mu.Lock()
	previous := h.hubState
	h.hubState = s
	h.mu.Unlock()
	if previous != s {
		h.logger.Debug("hub state changed", zap.Stringer("from", previous), zap.Stringer("to", s))
	}
}

func (h *Hub) newEvent(t model.EventType) model.Event {
	e := model.NewEvent(t, h.ID())
	e.Timestamp = h.now().UTC()
	return e
}

func (h *Hub) snapshotObservers() []Observer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Observer(nil), h.observers...)
}

func (h *Hub) emit(ctx context.Context, e model.Event) {
	for _, o := range h.snapshotObservers() {
		o.OnEvent(ctx, e)
	}
}

func (h *Hub) notify(ctx context.Context, d model.Device) {
	for _, o := range h.snapshotObservers() {
		o.OnStateChange(ctx, d)
	}
}

// lockDevice serialises state mutations for one device across commands and syncs.
func (h *Hub) lockDevice(id int64) func() {
	v, _ := h.locks.LoadOrStore(id, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}
