// Package requestctx carries per-request values between middleware and handlers.
package requestctx

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type key int

const (
	loggerKey key = iota
	traceKey
	actorKey
)

var nop = zap.NewNop()

type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// Actor is whoever authenticated the request: a Firebase user, or an OIDC service account
// on internal routes.
type Actor struct {
	UID     string
	Role    string
	Service bool
}

// actorBox is written by auth middleware deep in the chain and read by the access log
// wrapped around it, so it is shared by pointer.
type actorBox struct {
	mu    sync.Mutex
	actor *Actor
}

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = nop
	}
	return context.WithValue(orBackground(ctx), loggerKey, logger)
}

// LoggerOK reports the request logger and whether one was attached.
func LoggerOK(ctx context.Context) (*zap.Logger, bool) {
	if ctx == nil {
		return nop, false
	}
	logger, ok := ctx.Value(loggerKey).(*zap.Logger)
	if !ok || logger == nil {
		return nop, false
	}
	return logger, true
}

// Logger never returns nil.
func Logger(ctx context.Context) *zap.Logger {
	logger, _ := LoggerOK(ctx)
	return logger
}

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return context.WithValue(orBackground(ctx), traceKey, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey).(TraceInfo)
	return info, ok
}

func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithActorSlot makes room for SetActor calls further down the chain.
func WithActorSlot(ctx context.Context) context.Context {
	return context.WithValue(orBackground(ctx), actorKey, &actorBox{})
}

// SetActor is a no-op when ctx has no slot.
func SetActor(ctx context.Context, actor Actor) {
	if box := boxFrom(ctx); box != nil {
		box.mu.Lock()
		box.actor = &actor
		box.mu.Unlock()
	}
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	box := boxFrom(ctx)
	if box == nil {
		return Actor{}, false
	}
	box.mu.Lock()
	defer box.mu.Unlock()
	if box.actor == nil {
		return Actor{}, false
	}
	return *box.actor, true
}

func boxFrom(ctx context.Context) *actorBox {
	if ctx == nil {
		return nil
	}
	box, _ := ctx.Value(actorKey).(*actorBox)
	return box
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
