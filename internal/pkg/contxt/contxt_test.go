package contxt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewContext(t *testing.T) {
	ctx, cancel := NewContext(context.Background(), time.Minute)
	defer cancel()

	deadline, ok := ctx.Deadline()
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestNewContext_NoDeadlineUnderTest(t *testing.T) {
	t.Setenv("CONTEXT_TEST", "1")
	ctx, cancel := NewContext(context.Background(), time.Minute)

	_, ok := ctx.Deadline()
	assert.False(t, ok)
	cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestNewContext_FollowsParent(t *testing.T) {
	parent, stop := context.WithCancel(context.Background())
	ctx, cancel := NewContext(parent, time.Minute)
	defer cancel()

	stop()
	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
