// Package requestcontext carries request-scoped values (request ID, request
// time, client metadata, authenticated actor) through context.Context.
package requestcontext

import (
	"context"
	"time"

	id "compliance/pkg/domain"
)

type (
	requestIDKey struct{}
	timeKey      struct{}
	clientIPKey  struct{}
	userAgentKey struct{}
	actorKey     struct{}
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the request ID or an empty string outside HTTP flows.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// WithTime injects a fixed "now" so a whole request (or a CLI batch, or a
// test) shares one timestamp.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, timeKey{}, t)
}

// Now returns the request-scoped time, falling back to time.Now().
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(timeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	return context.WithValue(ctx, userAgentKey{}, userAgent)
}

func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey{}).(string)
	return v
}

func UserAgent(ctx context.Context) string {
	v, _ := ctx.Value(userAgentKey{}).(string)
	return v
}

// WithActor stores the authenticated actor. Only the auth middleware should
// call this; handlers read it back with Actor and pass it on explicitly.
func WithActor(ctx context.Context, actor id.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// Actor returns the authenticated actor, or the zero Actor when absent.
func Actor(ctx context.Context) id.Actor {
	v, _ := ctx.Value(actorKey{}).(id.Actor)
	return v
}
