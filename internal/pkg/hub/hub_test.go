package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anicoll/ics2000-integration/internal/pkg/cloud"
	"github.com/anicoll/ics2000-integration/internal/pkg/codec"
	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"github.com/anicoll/ics2000-integration/internal/pkg/state"
	"github.com/anicoll/ics2000-integration/internal/pkg/transport"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

const testKey = "000102030405060708090a0b0c0d0e0f"

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeCloud struct {
	AuthenticateFunc func(ctx context.Context) (*cloud.Session, error)
	SyncFunc         func(ctx context.Context, session *cloud.Session) ([]model.ModuleRecord, error)

	mu      sync.Mutex
	session *cloud.Session
	auths   int
	syncs   int
}

func (f *fakeCloud) Authenticate(ctx context.Context) (*cloud.Session, error) {
	f.mu.Lock()
	f.auths++
	f.mu.Unlock()
	s, err := f.AuthenticateFunc(ctx)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.session = s
	f.mu.Unlock()
	return s, nil
}

func (f *fakeCloud) Session() *cloud.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *fakeCloud) Sync(ctx context.Context, session *cloud.Session) ([]model.ModuleRecord, error) {
	f.mu.Lock()
	f.syncs++
	f.mu.Unlock()
	return f.SyncFunc(ctx, session)
}

func (f *fakeCloud) syncCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncs
}

type sent struct {
	id    int64
	cmd   model.Command
	value byte
}

type fakeTransport struct {
	SendFunc     func(ctx context.Context, id int64, cmd model.Command, value byte) error
	DiscoverFunc func(ctx context.Context) (string, error)

	mu     sync.Mutex
	ip     string
	sent   []sent
	mapper transport.IDMapper
}

func newFakeTransport(t *testing.T) *fakeTransport {
	m, err := transport.MapperByName(transport.DefaultMapper)
	require.NoError(t, err)
	return &fakeTransport{mapper: m}
}

func (f *fakeTransport) Send(ctx context.Context, id int64, cmd model.Command, value byte) error {
	f.mu.Lock()
	f.sent = append(f.sent, sent{id: id, cmd: cmd, value: value})
	f.mu.Unlock()
	if f.SendFunc != nil {
		return f.SendFunc(ctx, id, cmd, value)
	}
	return nil
}

func (f *fakeTransport) Discover(ctx context.Context) (string, error) {
	ip, err := f.DiscoverFunc(ctx)
	if err == nil {
		f.mu.Lock()
		f.ip = ip
		f.mu.Unlock()
	}
	return ip, err
}

func (f *fakeTransport) IP() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ip
}

func (f *fakeTransport) WireID(id int64) byte      { return f.mapper(id) }
func (f *fakeTransport) Mapper() transport.IDMapper { return f.mapper }

func (f *fakeTransport) sends() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type recorder struct {
	mu     sync.Mutex
	states []model.Device
	events []model.Event
}

func (r *recorder) OnStateChange(_ context.Context, d model.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, d)
}

func (r *recorder) OnEvent(_ context.Context, e model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) eventsOf(t model.EventType) []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Filter(r.events, func(e model.Event, _ int) bool { return e.Type == t })
}

func (r *recorder) stateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

type scheduled struct {
	delay time.Duration
	fn    func()
}

type fakeScheduler struct {
	mu    sync.Mutex
	tasks []scheduled
}

func (s *fakeScheduler) Schedule(delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, scheduled{delay: delay, fn: fn})
}

func (s *fakeScheduler) pending() []scheduled {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduled(nil), s.tasks...)
}

func blob(t *testing.T, plaintext string) string {
	t.Helper()
	key, err := codec.ParseKey(testKey)
	require.NoError(t, err)
	b, err := codec.Encrypt([]byte(plaintext), key)
	require.NoError(t, err)
	return b
}

func module(t *testing.T, id int64, data, status string, versionStatus int64) model.ModuleRecord {
	rec := model.ModuleRecord{ID: model.FlexInt(id), VersionData: 1, VersionStatus: model.FlexInt(versionStatus)}
	if data != "" {
		rec.Data = blob(t, data)
	}
	if status != "" {
		rec.Status = blob(t, status)
	}
	return rec
}

func session(t *testing.T) *cloud.Session {
	key, err := codec.ParseKey(testKey)
	require.NoError(t, err)
	return &cloud.Session{Email: "user@example.com", HomeID: "77", MAC: "001122334455", AESKey: testKey, Key: key}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type fixture struct {
	hub       *Hub
	cloud     *fakeCloud
	transport *fakeTransport
	tracker   *state.Tracker
	clock     *testClock
	scheduler *fakeScheduler
	events    *recorder
}

func newFixture(t *testing.T, cfg Config, records func() []model.ModuleRecord, opts ...Option) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	s := session(t)
	fc := &fakeCloud{
		AuthenticateFunc: func(context.Context) (*cloud.Session, error) { return s, nil },
		SyncFunc: func(context.Context, *cloud.Session) ([]model.ModuleRecord, error) {
			return records(), nil
		},
	}
	ft := newFakeTransport(t)
	clock := &testClock{now: epoch}
	tracker := state.New(nil, state.WithClock(clock.Now), state.WithLogger(logger))
	sched := &fakeScheduler{}
	rec := &recorder{}

	opts = append([]Option{
		WithLogger(logger),
		WithScheduler(sched.Schedule),
		WithClock(func() time.Time { return epoch }),
		WithObserver(rec),
	}, opts...)
	if cfg.CloudOnlyAbove == 0 {
		cfg.CloudOnlyAbove = DefaultCloudOnlyAbove
	}
	return &fixture{
		hub:       New(cfg, fc, ft, tracker, opts...),
		cloud:     fc,
		transport: ft,
		tracker:   tracker,
		clock:     clock,
		scheduler: sched,
		events:    rec,
	}
}

func threeModules(t *testing.T) func() []model.ModuleRecord {
	records := []model.ModuleRecord{
		module(t, 1, `{"module":{"name":"Kitchen Lamp","device":"1"}}`, `{"module":{"functions":[1,0]}}`, 3),
		module(t, 2, `{"module":{"name":"Hall Dimmer"}}`, `{"module":{"functions":[0]}}`, 2),
		module(t, 3, `{"module":{"name":"Garage Plug"}}`, "", 4),
	}
	records[2].Status = "bm90IGEgYmxvY2s="
	return func() []model.ModuleRecord { return records }
}

func TestDiscoverDevices_OneStatusFailsToDecode(t *testing.T) {
	f := newFixture(t, Config{}, threeModules(t))
	ctx := context.Background()

	require.NoError(t, f.hub.Connect(ctx))
	devices, err := f.hub.DiscoverDevices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 3)

	lamp, hall, garage := devices[0], devices[1], devices[2]

	assert.Equal(t, "Kitchen Lamp", lamp.Name)
	assert.Equal(t, model.DeviceTypeLight, lamp.Type)
	assert.True(t, lamp.State.On)
	assert.Equal(t, model.ConfidenceHigh, lamp.State.Confidence)
	assert.False(t, lamp.AssumedState)

	assert.Equal(t, model.DeviceTypeDimmer, hall.Type)
	assert.True(t, hall.Dimmable)
	assert.False(t, hall.State.On)
	require.NotNil(t, hall.State.Brightness)
	assert.Equal(t, 50, *hall.State.Brightness)

	assert.Equal(t, "Garage Plug", garage.Name)
	assert.False(t, garage.State.On)
	assert.Equal(t, model.ConfidenceUncertain, garage.State.Confidence)
	assert.True(t, garage.AssumedState)

	discovered := f.events.eventsOf(model.EventDeviceDiscovered)
	require.Len(t, discovered, 1)
	assert.Equal(t, 3, discovered[0].DeviceCount)
	assert.Equal(t, "001122334455", discovered[0].Hub)
	assert.Len(t, f.events.eventsOf(model.EventHubConnected), 1)
}

func TestDiscoverDevices_FallbackNameWhenNothingDecodes(t *testing.T) {
	records := []model.ModuleRecord{{ID: 12, Data: "%%%", Status: "also broken", VersionStatus: 1}}
	f := newFixture(t, Config{}, func() []model.ModuleRecord { return records })

	devices, err := f.hub.DiscoverDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "Device 12", devices[0].Name)
	assert.Equal(t, model.DeviceTypeSwitch, devices[0].Type)
	// odd version_status is a guess at on, capped at uncertain
	assert.True(t, devices[0].State.On)
	assert.Equal(t, model.ConfidenceUncertain, devices[0].State.Confidence)
}

func TestDiscoverDevices_Idempotent(t *testing.T) {
	f := newFixture(t, Config{}, threeModules(t))
	ctx := context.Background()

	first, err := f.hub.DiscoverDevices(ctx)
	require.NoError(t, err)
	notified := f.events.stateCount()

	second, err := f.hub.DiscoverDevices(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, notified, f.events.stateCount())
	assert.Empty(t, f.events.eventsOf(model.EventDeviceUpdated))
	assert.Equal(t, 2, f.cloud.syncCount())
}

func TestDiscoverDevices_ReconcilesChangedState(t *testing.T) {
	status := `{"module":{"functions":[1]}}`
	f := newFixture(t, Config{}, func() []model.ModuleRecord {
		return []model.ModuleRecord{module(t, 1, `{"module":{"name":"Porch Light"}}`, status, 1)}
	})
	ctx := context.Background()

	_, err := f.hub.DiscoverDevices(ctx)
	require.NoError(t, err)

	status = `{"module":{"functions":[0]}}`
	devices, err := f.hub.DiscoverDevices(ctx)
	require.NoError(t, err)
	assert.False(t, devices[0].State.On)
	assert.Equal(t, "cloud_sync", devices[0].State.LastCommand)

	updated := f.events.eventsOf(model.EventDeviceUpdated)
	require.Len(t, updated, 1)
	assert.Equal(t, int64(1), updated[0].DeviceID)
}

func TestDiscoverDevices_InferredStateDoesNotOverwrite(t *testing.T) {
	f := newFixture(t, Config{}, func() []model.ModuleRecord {
		return []model.ModuleRecord{module(t, 5, `{"module":{"name":"Shed Socket"}}`, "", 2)}
	})
	ctx := context.Background()

	_, err := f.hub.DiscoverDevices(ctx)
	require.NoError(t, err)
	_, err = f.hub.TurnOn(ctx, 5)
	require.NoError(t, err)

	devices, err := f.hub.DiscoverDevices(ctx)
	require.NoError(t, err)
	assert.True(t, devices[0].State.On)
	assert.Equal(t, "turn_on", devices[0].State.LastCommand)
}

func TestDiscoverDevices_SyncErrorKeepsRegistry(t *testing.T) {
	fail := false
	records := threeModules(t)
	f := newFixture(t, Config{}, records)
	f.cloud.SyncFunc = func(context.Context, *cloud.Session) ([]model.ModuleRecord, error) {
		if fail {
			return nil, &cloud.SyncError{StatusCode: 500, Err: errors.New("boom")}
		}
		return records(), nil
	}
	ctx := context.Background()

	_, err := f.hub.DiscoverDevices(ctx)
	require.NoError(t, err)

	fail = true
	_, err = f.hub.DiscoverDevices(ctx)
	var syncErr *cloud.SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Len(t, f.hub.Devices(ctx), 3)
}

func TestDiscoverDevices_JoinedCallerSurvivesFirstCallerCancel(t *testing.T) {
	records := threeModules(t)
	f := newFixture(t, Config{}, records)
	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	f.cloud.SyncFunc = func(ctx context.Context, _ *cloud.Session) ([]model.ModuleRecord, error) {
		once.Do(func() { close(started) })
		select {
		case <-release:
			return records(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	first, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.hub.DiscoverDevices(first)
		firstErr <- err
	}()
	<-started

	second, cancelSecond := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelSecond()
	type result struct {
		devices []model.Device
		err     error
	}
	secondRes := make(chan result, 1)
	go func() {
		devices, err := f.hub.DiscoverDevices(second)
		secondRes <- result{devices: devices, err: err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	res := <-secondRes
	require.NoError(t, res.err)
	assert.Len(t, res.devices, 3)
	assert.Equal(t, 1, f.cloud.syncCount())
}

func TestDiscoverDevices_BlacklistAndOverrides(t *testing.T) {
	cfg := Config{
		Blacklist: []int64{2},
		Overrides: map[int64]Override{
			1: {Name: "Patio", Type: model.DeviceTypeCover},
			3: {Type: model.DeviceTypeDimmer},
		},
	}
	f := newFixture(t, cfg, threeModules(t))

	devices, err := f.hub.DiscoverDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)

	assert.Equal(t, "Patio", devices[0].Name)
	assert.Equal(t, model.DeviceTypeCover, devices[0].Type)
	assert.True(t, devices[0].Dimmable)
	assert.Equal(t, int64(3), devices[1].ID)
	assert.Equal(t, model.DeviceTypeDimmer, devices[1].Type)
	require.NotNil(t, devices[1].State.Brightness)
}

func TestDiscoverDevices_LargeIDs(t *testing.T) {
	f := newFixture(t, Config{}, func() []model.ModuleRecord {
		return []model.ModuleRecord{
			module(t, 26087308, `{"module":{"name":"Attic Switch"}}`, `{"module":{"functions":[0]}}`, 1),
			module(t, 140, `{"module":{"name":"Desk Switch"}}`, `{"module":{"functions":[0]}}`, 1),
		}
	})
	ctx := context.Background()

	_, err := f.hub.DiscoverDevices(ctx)
	require.NoError(t, err)

	attic, err := f.hub.Device(ctx, 26087308)
	require.NoError(t, err)
	assert.Equal(t, byte(26087308%256), attic.WireID)
	assert.True(t, attic.CloudOnly)

	// cloud-only devices are never sent over UDP but still update state
	attic, err = f.hub.TurnOn(ctx, 26087308)
	require.NoError(t, err)
	assert.True(t, attic.State.On)
	assert.Empty(t, f.transport.sends())

	_, err = f.hub.TurnOn(ctx, 140)
	require.NoError(t, err)
	assert.Equal(t, []sent{{id: 140, cmd: model.CommandOn}}, f.transport.sends())
}

func TestDiscoverDevices_ReportsCollisionsOnce(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := newFixture(t, Config{}, func() []model.ModuleRecord {
		return []model.ModuleRecord{
			module(t, 1, `{"module":{"name":"A"}}`, `{"module":{"functions":[0]}}`, 1),
			module(t, 257, `{"module":{"name":"B"}}`, `{"module":{"functions":[0]}}`, 1),
		}
	}, WithLogger(zap.New(core)))
	ctx := context.Background()

	_, err := f.hub.DiscoverDevices(ctx)
	require.NoError(t, err)
	_, err = f.hub.DiscoverDevices(ctx)
	require.NoError(t, err)

	collisions := logs.FilterMessage("device ids share a wire id, commands reach all of them").All()
	require.Len(t, collisions, 1)
	assert.Equal(t, []any{int64(1), int64(257)}, collisions[0].ContextMap()["device_ids"])
}

func TestTurnOn_WithoutLocalIP(t *testing.T) {
	logger := zaptest.NewLogger(t)
	udp, err := transport.New(transport.Config{MAC: "00:11:22:33:44:55"}, transport.WithLogger(logger))
	require.NoError(t, err)

	f := newFixture(t, Config{}, func() []model.ModuleRecord {
		return []model.ModuleRecord{module(t, 42, `{"module":{"name":"Lounge Switch"}}`, `{"module":{"functions":[0]}}`, 2)}
	})
	f.hub.transport = udp
	ctx := context.Background()

	_, err = f.hub.DiscoverDevices(ctx)
	require.NoError(t, err)

	d, err := f.hub.TurnOn(ctx, 42)
	require.NoError(t, err)
	assert.True(t, d.State.On)
	assert.Equal(t, model.ConfidenceHigh, d.State.Confidence)
	assert.Equal(t, "turn_on", d.State.LastCommand)

	tasks := f.scheduler.pending()
	require.Len(t, tasks, 1)
	assert.Equal(t, DefaultResyncDelay, tasks[0].delay)

	sentEvents := f.events.eventsOf(model.EventCommandSent)
	require.Len(t, sentEvents, 1)
	assert.Equal(t, int64(42), sentEvents[0].DeviceID)
	assert.True(t, sentEvents[0].Success)

	syncs := f.cloud.syncCount()
	tasks[0].fn()
	assert.Equal(t, syncs+1, f.cloud.syncCount())
}

func TestTurnOff_TransportFailure(t *testing.T) {
	f := newFixture(t, Config{}, threeModules(t))
	ctx := context.Background()
	_, err := f.hub.DiscoverDevices(ctx)
	require.NoError(t, err)

	f.transport.SendFunc = func(context.Context, int64, model.Command, byte) error {
		return &transport.TransportError{Attempt: 1, Err: errors.New("network unreachable")}
	}
	d, err := f.hub.TurnOff(ctx, 1)
	var tErr *transport.TransportError
	require.ErrorAs(t, err, &tErr)
	assert.True(t, d.State.On)
	assert.Empty(t, f.scheduler.pending())

	failed := f.events.eventsOf(model.EventCommandFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "turn_off", failed[0].Command)
	assert.False(t, failed[0].Success)
}

func TestCommands_UnknownDevice(t *testing.T) {
	f := newFixture(t, Config{}, threeModules(t))
	_, err := f.hub.TurnOn(context.Background(), 99)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	_, err = f.hub.Device(context.Background(), 99)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestSetBrightness(t *testing.T) {
	tests := map[string]struct {
		id         int64
		pct        int
		expected   sent
		on         bool
		brightness *int
		err        error
	}{
		"dimmer half": {
			id:         2,
			pct:        50,
			expected:   sent{id: 2, cmd: model.CommandDim, value: 128},
			on:         true,
			brightness: lo.ToPtr(50),
		},
		"dimmer full": {
			id:         2,
			pct:        100,
			expected:   sent{id: 2, cmd: model.CommandDim, value: 255},
			on:         true,
			brightness: lo.ToPtr(100),
		},
		"dimmer zero is off": {
			id:         2,
			pct:        0,
			expected:   sent{id: 2, cmd: model.CommandDim, value: 0},
			brightness: lo.ToPtr(0),
		},
		"switch degrades to on": {
			id:       3,
			pct:      30,
			expected: sent{id: 3, cmd: model.CommandOn},
			on:       true,
		},
		"switch degrades to off": {
			id:       3,
			pct:      0,
			expected: sent{id: 3, cmd: model.CommandOff},
		},
		"out of range": {
			id:  2,
			pct: 101,
			err: ErrInvalidValue,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, Config{}, threeModules(t))
			ctx := context.Background()
			_, err := f.hub.DiscoverDevices(ctx)
			require.NoError(t, err)

			d, err := f.hub.SetBrightness(ctx, test.id, test.pct)
			if test.err != nil {
				assert.ErrorIs(t, err, test.err)
				assert.Empty(t, f.transport.sends())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []sent{test.expected}, f.transport.sends())
			assert.Equal(t, test.on, d.State.On)
			if test.brightness != nil {
				assert.Equal(t, *test.brightness, *d.State.Brightness)
			}
		})
	}
}

func TestSetCoverPosition(t *testing.T) {
	tests := map[string]struct {
		position int
		cmd      model.Command
		on       bool
	}{
		"open":      {position: 75, cmd: model.CommandOn, on: true},
		"half":      {position: 50, cmd: model.CommandOff},
		"closed":    {position: 0, cmd: model.CommandOff},
		"fully up":  {position: 100, cmd: model.CommandOn, on: true},
		"just open": {position: 51, cmd: model.CommandOn, on: true},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, Config{}, func() []model.ModuleRecord {
				return []model.ModuleRecord{module(t, 8, `{"module":{"name":"Bedroom Blind"}}`, `{"module":{"functions":[0]}}`, 1)}
			})
			ctx := context.Background()
			_, err := f.hub.DiscoverDevices(ctx)
			require.NoError(t, err)

			d, err := f.hub.SetCoverPosition(ctx, 8, test.position)
			require.NoError(t, err)
			assert.Equal(t, model.DeviceTypeCover, d.Type)
			assert.Equal(t, []sent{{id: 8, cmd: test.cmd}}, f.transport.sends())
			assert.Equal(t, test.on, d.State.On)
			assert.Equal(t, test.position, *d.State.Position)
		})
	}
}

func TestIdentify(t *testing.T) {
	f := newFixture(t, Config{IdentifyDelay: time.Millisecond}, threeModules(t))
	ctx := context.Background()
	_, err := f.hub.DiscoverDevices(ctx)
	require.NoError(t, err)

	d, err := f.hub.Identify(ctx, 1)
	require.NoError(t, err)
	assert.True(t, d.State.On)

	sends := f.transport.sends()
	require.Len(t, sends, 7)
	for i := 0; i < 6; i += 2 {
		assert.Equal(t, model.CommandOn, sends[i].cmd)
		assert.Equal(t, model.CommandOff, sends[i+1].cmd)
	}
	assert.Equal(t, model.CommandOn, sends[6].cmd)
	assert.Len(t, f.events.eventsOf(model.EventCommandSent), 1)
}

func TestIdentify_Cancelled(t *testing.T) {
	f := newFixture(t, Config{IdentifyDelay: time.Hour}, threeModules(t))
	_, err := f.hub.DiscoverDevices(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.hub.Identify(ctx, 2)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, f.events.eventsOf(model.EventCommandFailed), 1)
}

func TestScenes(t *testing.T) {
	f := newFixture(t, Config{}, func() []model.ModuleRecord {
		return []model.ModuleRecord{
			module(t, 1, `{"module":{"name":"Lamp"},"scenes":[{"id":9,"name":"Evening","devices":[1,"2"]}]}`, `{"module":{"functions":[0]}}`, 1),
		}
	})
	ctx := context.Background()
	_, err := f.hub.DiscoverDevices(ctx)
	require.NoError(t, err)

	scenes := f.hub.Scenes()
	require.Len(t, scenes, 1)
	assert.Equal(t, model.Scene{ID: 9, Name: "Evening", Devices: []int64{1, 2}}, scenes[0])

	assert.ErrorIs(t, f.hub.ExecuteScene(ctx, 9), ErrSceneUnsupported)
	assert.ErrorIs(t, f.hub.ExecuteScene(ctx, 10), ErrSceneNotFound)
}

func TestConnect(t *testing.T) {
	t.Run("invalid credentials", func(t *testing.T) {
		f := newFixture(t, Config{}, threeModules(t))
		f.cloud.AuthenticateFunc = func(context.Context) (*cloud.Session, error) {
			return nil, &cloud.AuthError{Reason: cloud.AuthInvalidCredentials, StatusCode: 401}
		}
		err := f.hub.Connect(context.Background())
		assert.True(t, cloud.IsInvalidCredentials(err))
		assert.Equal(t, model.HubError, f.hub.State())
		assert.Empty(t, f.events.eventsOf(model.EventHubConnected))
	})

	t.Run("discovers local ip", func(t *testing.T) {
		f := newFixture(t, Config{MAC: "AABBCCDDEEFF", DiscoverLocal: true}, threeModules(t))
		f.transport.DiscoverFunc = func(context.Context) (string, error) { return "192.168.1.20", nil }

		assert.Equal(t, "AABBCCDDEEFF", f.hub.ID())
		require.NoError(t, f.hub.Connect(context.Background()))
		assert.Equal(t, model.HubConnected, f.hub.State())
		assert.Equal(t, "001122334455", f.hub.ID())
		assert.Equal(t, "192.168.1.20", f.transport.IP())
	})

	t.Run("local discovery failure is not fatal", func(t *testing.T) {
		f := newFixture(t, Config{DiscoverLocal: true}, threeModules(t))
		f.transport.DiscoverFunc = func(context.Context) (string, error) { return "", transport.ErrGatewayNotFound }
		require.NoError(t, f.hub.Connect(context.Background()))
		assert.True(t, f.hub.Connected())
	})
}

func TestReload(t *testing.T) {
	f := newFixture(t, Config{}, threeModules(t))
	require.NoError(t, f.hub.Reload(context.Background()))
	assert.Equal(t, 1, f.cloud.auths)
	assert.Equal(t, 1, f.cloud.syncCount())
}

func TestDisconnect_DropsPendingResync(t *testing.T) {
	f := newFixture(t, Config{}, threeModules(t))
	ctx := context.Background()
	_, err := f.hub.DiscoverDevices(ctx)
	require.NoError(t, err)
	_, err = f.hub.TurnOn(ctx, 2)
	require.NoError(t, err)

	require.NoError(t, f.hub.Disconnect(ctx))
	assert.Equal(t, model.HubDisconnected, f.hub.State())

	syncs := f.cloud.syncCount()
	f.scheduler.pending()[0].fn()
	assert.Equal(t, syncs, f.cloud.syncCount())
}

func TestResetState(t *testing.T) {
	f := newFixture(t, Config{}, threeModules(t))
	ctx := context.Background()
	_, err := f.hub.DiscoverDevices(ctx)
	require.NoError(t, err)

	require.NoError(t, f.hub.ResetState(ctx, 1))
	d, err := f.hub.Device(ctx, 1)
	require.NoError(t, err)
	assert.False(t, d.State.On)
	assert.Equal(t, model.ConfidenceUncertain, d.State.Confidence)

	require.NoError(t, f.hub.ResetAllStates(ctx))
	assert.Empty(t, f.tracker.IDs(ctx))
	assert.Len(t, f.hub.Devices(ctx), 3)
}

func TestDiagnostics(t *testing.T) {
	f := newFixture(t, Config{}, threeModules(t))
	ctx := context.Background()
	require.NoError(t, f.hub.Connect(ctx))
	_, err := f.hub.DiscoverDevices(ctx)
	require.NoError(t, err)

	diag := f.hub.Diagnostics(ctx)
	assert.True(t, diag.Connected)
	assert.Equal(t, 3, diag.DeviceCount)
	assert.Equal(t, map[model.DeviceType]int{
		model.DeviceTypeLight:  1,
		model.DeviceTypeDimmer: 1,
		model.DeviceTypeSwitch: 1,
	}, diag.DevicesByType)
	assert.Equal(t, 2, diag.HighConfidence)
	assert.Equal(t, 0, diag.MediumConfidence)
	assert.Equal(t, 0, diag.LowConfidence)
	assert.Equal(t, 1, diag.UncertainConfidence)
	assert.InDelta(t, 80.0, diag.AverageConfidence, 0.001)
	require.NotNil(t, diag.LastSync)
	assert.True(t, epoch.Equal(*diag.LastSync))
}

func TestDiagnostics_ConfidenceBuckets(t *testing.T) {
	f := newFixture(t, Config{}, threeModules(t))
	ctx := context.Background()
	_, err := f.hub.DiscoverDevices(ctx)
	require.NoError(t, err)

	f.clock.Set(epoch.Add(10 * time.Minute))
	diag := f.hub.Diagnostics(ctx)
	assert.Equal(t, 0, diag.HighConfidence)
	assert.Equal(t, 0, diag.MediumConfidence)
	assert.Equal(t, 2, diag.LowConfidence)
	assert.Equal(t, 1, diag.UncertainConfidence)

	_, err = f.hub.TurnOn(ctx, 3)
	require.NoError(t, err)
	f.clock.Set(epoch.Add(12 * time.Minute))
	diag = f.hub.Diagnostics(ctx)
	assert.Equal(t, 0, diag.HighConfidence)
	assert.Equal(t, 1, diag.MediumConfidence)
	assert.Equal(t, 2, diag.LowConfidence)
	assert.Equal(t, 0, diag.UncertainConfidence)
	assert.InDelta(t, (60.0+60.0+80.0)/3, diag.AverageConfidence, 0.001)
}

func TestDimValue(t *testing.T) {
	tests := map[string]struct {
		pct      int
		expected byte
	}{
		"zero": {pct: 0, expected: 0},
		"one":  {pct: 1, expected: 3},
		"half": {pct: 50, expected: 128},
		"full": {pct: 100, expected: 255},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, DimValue(test.pct))
		})
	}
}
