// Package shield provides the HTTP middleware every fluidframe server runs:
// security headers, body limits, request tracing, per-client rate limiting
// of event routes and HEAD method handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack() {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

const headKey contextKey = "shield_head"

// DefaultStack returns the standard middleware stack, ordered:
// HeadToGet → SecurityHeaders → MaxFormBody → TraceID.
// Rate limiting is not part of it; it applies to event routes only.
func DefaultStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxFormBody(64 * 1024),
		TraceID,
	}
}

// HeadToGet converts HEAD requests to GET so that routes registered with
// r.Get() answer 200 instead of 405. net/http strips the body for HEAD.
// The original method stays visible through IsHead.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
			r = r.WithContext(context.WithValue(r.Context(), headKey, true))
		}
		next.ServeHTTP(w, r)
	})
}

// IsHead reports whether r was sent as HEAD, before or after HeadToGet.
func IsHead(r *http.Request) bool {
	if r.Method == http.MethodHead {
		return true
	}
	v, _ := r.Context().Value(headKey).(bool)
	return v
}
