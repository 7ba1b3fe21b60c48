package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSink struct {
	mu     sync.Mutex
	states []model.Device
	events []model.Event
	err    error
}

func (f *fakeSink) PublishState(_ context.Context, d model.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, d)
	return f.err
}

func (f *fakeSink) PublishEvent(_ context.Context, e model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return f.err
}

func TestRegister(t *testing.T) {
	p := New(WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, p.Register("mqtt", &fakeSink{}))
	require.NoError(t, p.Register("influx", &fakeSink{}))
	assert.ErrorIs(t, p.Register("mqtt", &fakeSink{}), errAlreadyRegistered)
	assert.Equal(t, []string{"influx", "mqtt"}, p.Names())
}

func TestOnStateChange_Dedupes(t *testing.T) {
	p := New(WithLogger(zaptest.NewLogger(t)))
	sink := &fakeSink{}
	require.NoError(t, p.Register("sink", sink))
	ctx := context.Background()

	d := model.Device{ID: 1, Name: "Lamp", Type: model.DeviceTypeLight, State: model.State{On: true, Confidence: model.ConfidenceHigh}}
	p.OnStateChange(ctx, d)
	p.OnStateChange(ctx, d)
	assert.Len(t, sink.states, 1)

	d.State.Brightness = lo.ToPtr(40)
	p.OnStateChange(ctx, d)
	d.State.Confidence = model.ConfidenceMedium
	p.OnStateChange(ctx, d)
	assert.Len(t, sink.states, 3)

	p.Forget()
	p.OnStateChange(ctx, d)
	assert.Len(t, sink.states, 4)
}

func TestOnEvent_FailingSinkDoesNotStopOthers(t *testing.T) {
	p := New(WithLogger(zaptest.NewLogger(t)))
	broken := &fakeSink{err: errors.New("offline")}
	ok := &fakeSink{}
	require.NoError(t, p.Register("broken", broken))
	require.NoError(t, p.Register("ok", ok))

	e := model.NewEvent(model.EventCommandSent, "001122334455")
	p.OnEvent(context.Background(), e)
	p.OnStateChange(context.Background(), model.Device{ID: 2})

	assert.Equal(t, []model.Event{e}, ok.events)
	assert.Len(t, ok.states, 1)
	assert.Len(t, broken.events, 1)
}
