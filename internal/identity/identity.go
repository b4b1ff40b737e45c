// Package identity resolves bearer tokens to callers.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/zhouzirui/companion-academy/backend/internal/model/caller"
)

var (
	// ErrMissingToken is returned when no bearer token was supplied.
	ErrMissingToken = errors.New("missing authentication token")
	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = errors.New("invalid authentication token")
)

// Provider authenticates a bearer token.
type Provider interface {
	Authenticate(ctx context.Context, token string) (caller.Caller, error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

type contextKey struct{}

// WithCaller returns a copy of ctx carrying c.
func WithCaller(ctx context.Context, c caller.Caller) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the caller stored by WithCaller.
func FromContext(ctx context.Context) (caller.Caller, bool) {
	c, ok := ctx.Value(contextKey{}).(caller.Caller)
	if !ok || c.Anonymous() {
		return caller.Caller{}, false
	}
	return c, true
}

// entitlements reads plan and feature claims from a metadata map.
func entitlements(metadata map[string]interface{}) (string, []string) {
	var plan string
	if raw, ok := metadata["plan"].(string); ok {
		plan = strings.TrimSpace(raw)
	}

	var features []string
	switch raw := metadata["features"].(type) {
	case []interface{}:
		for _, item := range raw {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				features = append(features, strings.TrimSpace(s))
			}
		}
	case []string:
		for _, s := range raw {
			if strings.TrimSpace(s) != "" {
				features = append(features, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(raw, ",") {
			if strings.TrimSpace(s) != "" {
				features = append(features, strings.TrimSpace(s))
			}
		}
	}
	return plan, features
}
