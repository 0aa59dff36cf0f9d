// Package middleware contains the HTTP middleware of the sale daemon.
package middleware

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

type contextKey string

// Context keys.
const (
	// CallerContextKey is the context key for the authenticated caller address.
	CallerContextKey contextKey = "caller"
)

// WithCaller returns a copy of ctx carrying the caller address.
func WithCaller(ctx context.Context, caller common.Address) context.Context {
	return context.WithValue(ctx, CallerContextKey, caller)
}

// GetCallerFromContext retrieves the authenticated caller.
// ok is false when the request was not signed.
func GetCallerFromContext(ctx context.Context) (common.Address, bool) {
	if v := ctx.Value(CallerContextKey); v != nil {
		if caller, ok := v.(common.Address); ok {
			return caller, true
		}
	}
	return common.Address{}, false
}
