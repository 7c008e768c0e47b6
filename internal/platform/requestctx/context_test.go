package requestctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type otherKey struct{}

func TestActorSetBelowIsVisibleAbove(t *testing.T) {
	outer := WithActorSlot(context.Background())
	inner := context.WithValue(outer, otherKey{}, "x")

	_, ok := ActorFrom(outer)
	require.False(t, ok)

	SetActor(inner, Actor{UID: "u-41", Role: "manager"})

	actor, ok := ActorFrom(outer)
	require.True(t, ok)
	assert.Equal(t, Actor{UID: "u-41", Role: "manager"}, actor)
}

func TestSetActorWithoutSlot(t *testing.T) {
	ctx := context.Background()
	SetActor(ctx, Actor{UID: "u-41"})
	_, ok := ActorFrom(ctx)
	assert.False(t, ok)
}

func TestLogger(t *testing.T) {
	logger, ok := LoggerOK(context.Background())
	assert.False(t, ok)
	assert.NotNil(t, logger)

	attached := zap.NewExample()
	logger, ok = LoggerOK(WithLogger(context.Background(), attached))
	assert.True(t, ok)
	assert.Same(t, attached, logger)

	assert.NotNil(t, Logger(WithLogger(context.Background(), nil)))
}

func TestTrace(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))

	ctx := WithTrace(context.Background(), TraceInfo{TraceID: "4bf92f3577b34da6a3ce929d0e0e4736", Sampled: true})
	info, ok := Trace(ctx)
	require.True(t, ok)
	assert.True(t, info.Sampled)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", TraceID(ctx))
}
