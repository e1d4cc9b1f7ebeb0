package model

import (
	"context"
	"errors"
)

// RequestContext carries request correlation data through the service layer.
// There is no authentication; ActorID is whatever the caller declared in the
// X-Actor-Id header and is used for logging only.
type RequestContext struct {
	ActorID       string
	CorrelationID string
	TraceID       string
	SpanID        string
}

// Validate checks that the correlation id is present.
func (rc *RequestContext) Validate() error {
	if rc.CorrelationID == "" {
		return errors.New("CorrelationID is required")
	}
	return nil
}

type contextKey struct{}

// WithRequestContext attaches a RequestContext to the given context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom extracts the RequestContext from the context, or returns nil
// if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}
