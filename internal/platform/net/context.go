// Package net holds what every transport shares: the request id and the response envelope
package net

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// RequestID returns the id chi's RequestID middleware put on ctx
func RequestID(ctx context.Context) string { return chimw.GetReqID(ctx) }

// WithRequestID stores id where RequestID finds it; for callers outside the middleware chain
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, chimw.RequestIDKey, id)
}
