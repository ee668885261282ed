package session

import (
	"context"
	"errors"

	"github.com/stridehq/sportiva-adapter/pkg/model"
)

// Fixed storage keys for the single adapter session.
const (
	AccessTokenKey  = "sportiva:session:access_token"
	RefreshTokenKey = "sportiva:session:refresh_token"
)

// ErrNoSession indicates no session is currently stored.
var ErrNoSession = errors.New("no session stored")

// Store persists the single Sportiva session for this adapter instance.
// Exactly one session exists at a time: Save replaces both tokens,
// Clear removes them.
type Store interface {
	// Tokens returns the stored token pair, or ErrNoSession if absent.
	Tokens(ctx context.Context) (model.TokenPair, error)
	// Save replaces the stored session with the given pair.
	Save(ctx context.Context, pair model.TokenPair) error
	// Clear deletes the stored session. Clearing an empty store is a no-op.
	Clear(ctx context.Context) error
}
