// Package credentials abstracts the optional host capability that lets a
// person pick or refresh the generation service credential.
package credentials

import (
	"context"
	"strings"

	"shivuk/internal/services"
)

// Provider is implemented by hosts that can supply a generation credential
// interactively.
type Provider interface {
	HasCredential(ctx context.Context) bool
	RequestCredential(ctx context.Context) error
}

// Noop is used when the host offers no credential picker.
type Noop struct{}

func (Noop) HasCredential(context.Context) bool { return false }

func (Noop) RequestCredential(context.Context) error {
	return services.Wrap(services.ErrConfiguration, "credentials", "request", "no credential picker available", nil)
}

// Static reports a credential resolved from configuration or the environment.
type Static struct {
	Key string
}

func (s Static) HasCredential(context.Context) bool {
	return strings.TrimSpace(s.Key) != ""
}

// RequestCredential cannot prompt; it only confirms a key is configured.
func (s Static) RequestCredential(ctx context.Context) error {
	if s.HasCredential(ctx) {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "credentials", "request", "set generation.api_key or GEMINI_API_KEY", nil)
}

// Interactive reports whether p can prompt for a new credential.
func Interactive(p Provider) bool {
	switch p.(type) {
	case nil, Noop, *Noop, Static, *Static:
		return false
	default:
		return true
	}
}
