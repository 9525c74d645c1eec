// Package pairing manages one-shot tokens that link a mobile device to a
// web client already present in a room. Tokens are minted by the web side,
// expire after a short TTL, and are consumed on first successful claim.
package pairing

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openboard/realtime/internal/v1/logging"
	"github.com/openboard/realtime/internal/v1/types"
)

const (
	// DefaultTTL is how long a token stays claimable.
	DefaultTTL = 120 * time.Second
	// ReapInterval is how often expired tokens are swept out.
	ReapInterval = 10 * time.Second
	// TokenLength is the length of minted token strings.
	TokenLength = 16
)

// Claim errors. The reason strings sent to clients are derived from these.
var (
	ErrNotFound     = errors.New("invalid or expired token")
	ErrRoomMismatch = errors.New("token is for a different room")
)

// Token is one pending pairing offer.
type Token struct {
	Value     string
	RoomID    types.RoomIdType
	WebUserID types.ClientIdType
	ExpiresAt time.Time
}

// Registry holds pending tokens. Safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	tokens map[string]Token
	ttl    time.Duration
	now    func() time.Time
}

// NewRegistry returns a registry with the given TTL. A zero ttl uses
// DefaultTTL.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		tokens: make(map[string]Token),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL returns the configured token lifetime.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// Create mints a new token binding roomID to the requesting web client.
// Creating again before the previous token is claimed simply adds another
// valid token; old ones age out on their own.
func (r *Registry) Create(roomID types.RoomIdType, webUserID types.ClientIdType) Token {
	t := Token{
		Value:     types.RandomID(TokenLength),
		RoomID:    roomID,
		WebUserID: webUserID,
		ExpiresAt: r.now().Add(r.ttl),
	}
	r.mu.Lock()
	r.tokens[t.Value] = t
	r.mu.Unlock()
	return t
}

// Claim consumes a token for the given room. A successful claim deletes the
// token, so a second claim with the same value fails with ErrNotFound.
// Claiming a live token against the wrong room fails without consuming it.
func (r *Registry) Claim(value string, roomID types.RoomIdType) (Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[value]
	if !ok || r.now().After(t.ExpiresAt) {
		delete(r.tokens, value)
		return Token{}, ErrNotFound
	}
	if t.RoomID != roomID {
		return Token{}, ErrRoomMismatch
	}
	delete(r.tokens, value)
	return t, nil
}

// Len returns the number of pending tokens, expired or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

// RunReaper sweeps expired tokens every ReapInterval until ctx is done.
// Expiry is already enforced at claim time; the reaper only bounds memory.
func (r *Registry) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.reap(); n > 0 {
				logging.Debug(ctx, "reaped expired pairing tokens", zap.Int("count", n))
			}
		}
	}
}

func (r *Registry) reap() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	n := 0
	for v, t := range r.tokens {
		if now.After(t.ExpiresAt) {
			delete(r.tokens, v)
			n++
		}
	}
	return n
}
