package credentials_test

import (
	"context"
	"errors"
	"testing"

	"shivuk/internal/credentials"
	"shivuk/internal/services"
)

func TestProviders(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		provider credentials.Provider
		has      bool
		wantErr  bool
	}{
		{name: "noop", provider: credentials.Noop{}, has: false, wantErr: true},
		{name: "static with key", provider: credentials.Static{Key: "abc"}, has: true},
		{name: "static blank", provider: credentials.Static{Key: "  "}, has: false, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.provider.HasCredential(ctx); got != tc.has {
				t.Fatalf("HasCredential = %v, want %v", got, tc.has)
			}
			err := tc.provider.RequestCredential(ctx)
			if tc.wantErr != (err != nil) {
				t.Fatalf("RequestCredential error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

type picker struct{}

func (picker) HasCredential(context.Context) bool      { return true }
func (picker) RequestCredential(context.Context) error { return nil }

func TestInteractive(t *testing.T) {
	if credentials.Interactive(credentials.Noop{}) || credentials.Interactive(credentials.Static{Key: "k"}) || credentials.Interactive(nil) {
		t.Fatal("built-in providers cannot prompt")
	}
	if !credentials.Interactive(picker{}) {
		t.Fatal("expected custom provider to be interactive")
	}
}
